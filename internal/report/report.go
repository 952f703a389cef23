// Package report renders pipeline results as Markdown, JSON or YAML.
package report

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/tabaudit-cli/internal/analysis"
	"github.com/KaramelBytes/tabaudit-cli/internal/coerce"
	"github.com/KaramelBytes/tabaudit-cli/internal/dataset"
	"github.com/KaramelBytes/tabaudit-cli/internal/outlier"
	"github.com/KaramelBytes/tabaudit-cli/internal/pipeline"
	"github.com/KaramelBytes/tabaudit-cli/internal/quality"
	"github.com/KaramelBytes/tabaudit-cli/internal/utils"
	"github.com/KaramelBytes/tabaudit-cli/internal/validate"
)

// Format is an output encoding.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// ParseFormat accepts md, markdown, json, yaml and yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported format %q (use md, json or yaml)", s)
}

// Ext returns the file extension for f.
func (f Format) Ext() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatYAML:
		return ".yaml"
	}
	return ".md"
}

// Render encodes res in the named format.
func Render(format string, res *pipeline.Result) ([]byte, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	switch f {
	case FormatJSON:
		return JSON(res)
	case FormatYAML:
		return YAML(res)
	}
	return []byte(Markdown(res)), nil
}

// RenderProfile encodes a descriptive profile in the named format.
func RenderProfile(format string, p *analysis.Profile) ([]byte, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	switch f {
	case FormatJSON:
		return marshalJSON(p)
	case FormatYAML:
		return marshalYAML(p)
	}
	return []byte(p.Markdown()), nil
}

// RenderOutliers encodes a standalone outlier report in the named format.
func RenderOutliers(format, name string, rep *outlier.Report) ([]byte, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	switch f {
	case FormatJSON:
		return marshalJSON(newOutlierDoc(rep))
	case FormatYAML:
		return marshalYAML(newOutlierDoc(rep))
	}
	var b strings.Builder
	b.WriteString("[OUTLIERS]\n")
	if name != "" {
		b.WriteString(fmt.Sprintf("Source: %s\n", name))
	}
	writeOutliers(&b, rep)
	return []byte(b.String()), nil
}

// JSON encodes res as indented JSON. Undefined statistics become null.
func JSON(res *pipeline.Result) ([]byte, error) {
	return marshalJSON(newDocument(res))
}

// YAML encodes res as YAML. Undefined statistics become null.
func YAML(res *pipeline.Result) ([]byte, error) {
	return marshalYAML(newDocument(res))
}

func marshalJSON(v any) ([]byte, error) {
	b, err := utils.PrettyJSON(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func marshalYAML(v any) ([]byte, error) {
	b, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}
	return b, nil
}

type document struct {
	RunID      string               `json:"run_id" yaml:"run_id"`
	Name       string               `json:"name" yaml:"name"`
	StartedAt  time.Time            `json:"started_at" yaml:"started_at"`
	DurationMS int64                `json:"duration_ms" yaml:"duration_ms"`
	RowsIn     int                  `json:"rows_in" yaml:"rows_in"`
	RowsOut    int                  `json:"rows_out" yaml:"rows_out"`
	Dropped    int                  `json:"dropped" yaml:"dropped"`
	Config     pipeline.Config      `json:"config" yaml:"config"`
	Columns    []dataset.ColumnSpec `json:"columns" yaml:"columns"`
	Quality    *quality.Report      `json:"quality,omitempty" yaml:"quality,omitempty"`
	Coercion   *coerce.Report       `json:"coercion,omitempty" yaml:"coercion,omitempty"`
	Validation *validate.Report     `json:"validation,omitempty" yaml:"validation,omitempty"`
	Outliers   *outlierDoc          `json:"outliers,omitempty" yaml:"outliers,omitempty"`
}

type outlierDoc struct {
	ZThreshold    float64            `json:"z_threshold" yaml:"z_threshold"`
	IQRMultiplier float64            `json:"iqr_multiplier" yaml:"iqr_multiplier"`
	Columns       []outlierColumnDoc `json:"columns" yaml:"columns"`
}

type outlierColumnDoc struct {
	Column string    `json:"column" yaml:"column"`
	ZScore zScoreDoc `json:"zscore" yaml:"zscore"`
	IQR    iqrDoc    `json:"iqr" yaml:"iqr"`
	Rows   []int     `json:"rows" yaml:"rows"`
	Agreed []int     `json:"agreed" yaml:"agreed"`
}

type zScoreDoc struct {
	Mean      *float64 `json:"mean" yaml:"mean"`
	Std       *float64 `json:"std" yaml:"std"`
	MaxAbsZ   *float64 `json:"max_abs_z" yaml:"max_abs_z"`
	Threshold float64  `json:"threshold" yaml:"threshold"`
	NonNull   int      `json:"non_null" yaml:"non_null"`
	Rows      []int    `json:"rows" yaml:"rows"`
	Empty     bool     `json:"empty" yaml:"empty"`
}

type iqrDoc struct {
	Q1         *float64 `json:"q1" yaml:"q1"`
	Median     *float64 `json:"median" yaml:"median"`
	Q3         *float64 `json:"q3" yaml:"q3"`
	IQR        *float64 `json:"iqr" yaml:"iqr"`
	Lower      *float64 `json:"lower" yaml:"lower"`
	Upper      *float64 `json:"upper" yaml:"upper"`
	Multiplier float64  `json:"multiplier" yaml:"multiplier"`
	NonNull    int      `json:"non_null" yaml:"non_null"`
	Percent    *float64 `json:"percent" yaml:"percent"`
	Rows       []int    `json:"rows" yaml:"rows"`
	Empty      bool     `json:"empty" yaml:"empty"`
}

func newDocument(res *pipeline.Result) document {
	d := document{
		RunID:      res.RunID,
		Name:       res.Name,
		StartedAt:  res.StartedAt,
		DurationMS: res.Duration.Milliseconds(),
		RowsIn:     res.RowsIn,
		RowsOut:    res.RowsOut,
		Dropped:    res.Dropped(),
		Config:     res.Config,
		Columns:    res.Columns,
		Quality:    res.Quality,
		Coercion:   res.Coercion,
		Validation: res.Validation,
	}
	if res.Outliers != nil {
		o := newOutlierDoc(res.Outliers)
		d.Outliers = &o
	}
	return d
}

func newOutlierDoc(rep *outlier.Report) outlierDoc {
	out := outlierDoc{ZThreshold: rep.ZThreshold, IQRMultiplier: rep.IQRMultiplier, Columns: []outlierColumnDoc{}}
	for _, c := range rep.Columns {
		z, q := c.ZScore, c.IQR
		out.Columns = append(out.Columns, outlierColumnDoc{
			Column: c.Column,
			ZScore: zScoreDoc{
				Mean: num(z.Mean), Std: num(z.Std), MaxAbsZ: num(z.MaxAbsZ),
				Threshold: z.Threshold, NonNull: z.NonNull, Rows: z.Rows, Empty: z.Empty,
			},
			IQR: iqrDoc{
				Q1: num(q.Q1), Median: num(q.Median), Q3: num(q.Q3), IQR: num(q.IQR),
				Lower: num(q.Lower), Upper: num(q.Upper), Multiplier: q.Multiplier,
				NonNull: q.NonNull, Percent: num(q.Percent), Rows: q.Rows, Empty: q.Empty,
			},
			Rows:   c.Rows,
			Agreed: c.Agreed(),
		})
	}
	return out
}

// num maps NaN and infinities to nil.
func num(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Markdown renders res as a plain-text report with bracketed sections.
func Markdown(res *pipeline.Result) string {
	var b strings.Builder
	b.WriteString("[RUN SUMMARY]\n")
	b.WriteString(fmt.Sprintf("Dataset: %s\n", res.Name))
	b.WriteString(fmt.Sprintf("Run: %s\n", res.RunID))
	if !res.StartedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Started: %s (took %s)\n", res.StartedAt.Format(time.RFC3339), res.Duration.Round(time.Millisecond)))
	}
	b.WriteString(fmt.Sprintf("Rows: %d in, %d out, %d dropped\n", res.RowsIn, res.RowsOut, res.Dropped()))

	if q := res.Quality; q != nil {
		b.WriteString("\n[QUALITY]\n")
		rows := [][]string{}
		for _, col := range sortedKeys(q.MissingCounts) {
			n := q.MissingCounts[col]
			rows = append(rows, []string{col, strconv.Itoa(n), pct(n, q.RowsBefore)})
		}
		if len(rows) > 0 {
			b.WriteString(analysis.TableMarkdown([]string{"column", "missing", "missing %"}, rows))
		}
		if len(res.Config.RequiredColumns) > 0 {
			b.WriteString(fmt.Sprintf("- rows dropped for missing %s: %d\n", strings.Join(res.Config.RequiredColumns, ", "), q.MissingDropped))
		}
		b.WriteString(fmt.Sprintf("- duplicate rows: %d found, %d dropped\n", q.DuplicateCount, q.DuplicateDropped))
	}

	if c := res.Coercion; c != nil && len(c.Converted) > 0 {
		b.WriteString("\n[COERCION]\n")
		rows := [][]string{}
		for _, col := range sortedKeys(c.Converted) {
			rows = append(rows, []string{col, string(c.Converted[col]), strconv.Itoa(c.Failures[col])})
		}
		b.WriteString(analysis.TableMarkdown([]string{"column", "target", "failures"}, rows))
	}

	if v := res.Validation; v != nil && len(v.Rules) > 0 {
		b.WriteString("\n[VALIDATION]\n")
		rows := make([][]string, 0, len(v.Rules))
		for _, r := range v.Rules {
			rows = append(rows, []string{r.Name, string(r.Type), strconv.Itoa(r.Dropped)})
		}
		b.WriteString(analysis.TableMarkdown([]string{"rule", "type", "dropped"}, rows))
		b.WriteString(fmt.Sprintf("- rows: %d before, %d after\n", v.RowsBefore, v.RowsAfter))
	}

	if res.Outliers != nil {
		b.WriteString("\n[OUTLIERS]\n")
		writeOutliers(&b, res.Outliers)
	}

	if len(res.Columns) > 0 {
		b.WriteString("\n[SCHEMA]\n")
		for _, c := range res.Columns {
			b.WriteString(fmt.Sprintf("- %s: %s\n", c.Name, c.Kind))
		}
	}
	return b.String()
}

func writeOutliers(b *strings.Builder, rep *outlier.Report) {
	b.WriteString(fmt.Sprintf("z-score threshold %s, IQR multiplier %s\n", fnum(rep.ZThreshold), fnum(rep.IQRMultiplier)))
	if len(rep.Columns) == 0 {
		b.WriteString("- no numeric columns\n")
		return
	}
	rows := make([][]string, 0, len(rep.Columns))
	for _, c := range rep.Columns {
		z, q := c.ZScore, c.IQR
		rows = append(rows, []string{
			c.Column,
			strconv.Itoa(z.NonNull),
			fnum(z.Mean),
			fnum(z.Std),
			fnum(z.MaxAbsZ),
			strconv.Itoa(z.Count()),
			fnum(q.Lower) + " .. " + fnum(q.Upper),
			strconv.Itoa(q.Count()),
			fnum(q.Percent),
			strconv.Itoa(len(c.Agreed())),
		})
	}
	b.WriteString(analysis.TableMarkdown(
		[]string{"column", "n", "mean", "std", "max |z|", "z flagged", "IQR fences", "IQR flagged", "IQR %", "both"},
		rows,
	))
	for _, c := range rep.Columns {
		if len(c.Rows) == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("- %s rows: %s\n", c.Column, joinInts(c.Rows, 20)))
	}
}

// fnum formats f compactly and renders undefined values as n/a.
func fnum(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "n/a"
	}
	return strconv.FormatFloat(f, 'g', 6, 64)
}

func pct(n, total int) string {
	if total == 0 {
		return "0.0"
	}
	return strconv.FormatFloat(float64(n)*100/float64(total), 'f', 1, 64)
}

func joinInts(v []int, limit int) string {
	parts := make([]string, 0, len(v))
	for i, x := range v {
		if i == limit {
			parts = append(parts, fmt.Sprintf("... (+%d more)", len(v)-limit))
			break
		}
		parts = append(parts, strconv.Itoa(x))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
