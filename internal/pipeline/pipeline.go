// Package pipeline chains the audit, coercion, validation and outlier stages over one dataset.
// Every stage takes the previous stage's dataset and returns a new one with a report; the input
// is never modified and the row count never grows.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/tabaudit-cli/internal/coerce"
	"github.com/KaramelBytes/tabaudit-cli/internal/dataset"
	"github.com/KaramelBytes/tabaudit-cli/internal/outlier"
	"github.com/KaramelBytes/tabaudit-cli/internal/quality"
	"github.com/KaramelBytes/tabaudit-cli/internal/validate"
)

// Stage names used in logs and errors.
const (
	StageQuality  = "quality"
	StageCoerce   = "coerce"
	StageValidate = "validate"
	StageOutliers = "outliers"
)

// Config is the full set of cleaning decisions for one dataset.
type Config struct {
	RequiredColumns  []string        `mapstructure:"required_columns" yaml:"required_columns,omitempty" json:"required_columns,omitempty"`
	DuplicateColumns []string        `mapstructure:"duplicate_columns" yaml:"duplicate_columns,omitempty" json:"duplicate_columns,omitempty"`
	KeepDuplicates   bool            `mapstructure:"keep_duplicates" yaml:"keep_duplicates,omitempty" json:"keep_duplicates,omitempty"`
	Coercions        []coerce.Spec   `mapstructure:"coercions" yaml:"coercions,omitempty" json:"coercions,omitempty"`
	Rules            []validate.Rule `mapstructure:"rules" yaml:"rules,omitempty" json:"rules,omitempty"`
	// OutlierColumns selects columns for outlier detection; empty means every numeric column.
	OutlierColumns []string `mapstructure:"outlier_columns" yaml:"outlier_columns,omitempty" json:"outlier_columns,omitempty"`
	// Outlier parameters are pointers so an explicit 0 survives Merge; nil means unset.
	ZScoreThreshold *float64 `mapstructure:"z_threshold" yaml:"z_threshold,omitempty" json:"z_threshold,omitempty"`
	IQRMultiplier   *float64 `mapstructure:"iqr_multiplier" yaml:"iqr_multiplier,omitempty" json:"iqr_multiplier,omitempty"`
	// SkipOutliers disables the outlier stage.
	SkipOutliers bool `mapstructure:"skip_outliers" yaml:"skip_outliers,omitempty" json:"skip_outliers,omitempty"`
}

// DefaultConfig returns a configuration with no cleaning rules and the default outlier parameters.
func DefaultConfig() Config {
	return Config{ZScoreThreshold: Float(outlier.DefaultZThreshold), IQRMultiplier: Float(outlier.DefaultIQRMultiplier)}
}

// Float returns a pointer to v, for setting outlier parameters.
func Float(v float64) *float64 { return &v }

// ZScore returns the z-score threshold, or the default when unset.
func (c Config) ZScore() float64 {
	if c.ZScoreThreshold == nil {
		return outlier.DefaultZThreshold
	}
	return *c.ZScoreThreshold
}

// IQR returns the IQR fence multiplier, or the default when unset.
func (c Config) IQR() float64 {
	if c.IQRMultiplier == nil {
		return outlier.DefaultIQRMultiplier
	}
	return *c.IQRMultiplier
}

// Validate checks the configuration without looking at data.
func (c Config) Validate() error {
	if z := c.ZScore(); z < 0 {
		return fmt.Errorf("z_threshold must be >= 0 (got %v)", z)
	}
	if m := c.IQR(); m < 0 {
		return fmt.Errorf("iqr_multiplier must be >= 0 (got %v)", m)
	}
	for _, s := range c.Coercions {
		if err := s.Check(); err != nil {
			return err
		}
	}
	for _, r := range c.Rules {
		if err := r.Check(); err != nil {
			return err
		}
	}
	return nil
}

// Merge overlays over on top of c. Non-empty lists replace, parameters that are set (including
// an explicit 0) replace, and boolean switches turn on.
func (c Config) Merge(over Config) Config {
	out := c
	if len(over.RequiredColumns) > 0 {
		out.RequiredColumns = over.RequiredColumns
	}
	if len(over.DuplicateColumns) > 0 {
		out.DuplicateColumns = over.DuplicateColumns
	}
	if len(over.Coercions) > 0 {
		out.Coercions = over.Coercions
	}
	if len(over.Rules) > 0 {
		out.Rules = over.Rules
	}
	if len(over.OutlierColumns) > 0 {
		out.OutlierColumns = over.OutlierColumns
	}
	if over.ZScoreThreshold != nil {
		out.ZScoreThreshold = Float(*over.ZScoreThreshold)
	}
	if over.IQRMultiplier != nil {
		out.IQRMultiplier = Float(*over.IQRMultiplier)
	}
	out.KeepDuplicates = out.KeepDuplicates || over.KeepDuplicates
	out.SkipOutliers = out.SkipOutliers || over.SkipOutliers
	return out
}

// StageError reports the stage a structural error came from.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Result carries the cleaned dataset and every stage report.
type Result struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Name      string        `json:"name" yaml:"name"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	RowsIn    int           `json:"rows_in" yaml:"rows_in"`
	RowsOut   int           `json:"rows_out" yaml:"rows_out"`
	Config    Config        `json:"config" yaml:"config"`

	Columns    []dataset.ColumnSpec `json:"columns" yaml:"columns"`
	Quality    *quality.Report      `json:"quality" yaml:"quality"`
	Coercion   *coerce.Report       `json:"coercion" yaml:"coercion"`
	Validation *validate.Report     `json:"validation" yaml:"validation"`
	Outliers   *outlier.Report      `json:"outliers,omitempty" yaml:"outliers,omitempty"`

	Input  *dataset.Dataset `json:"-" yaml:"-"`
	Output *dataset.Dataset `json:"-" yaml:"-"`
}

// Dropped returns the rows removed by all stages.
func (r *Result) Dropped() int { return r.RowsIn - r.RowsOut }

// Run applies the stages to ds in order. Structural errors (unknown columns, wrong column types,
// invalid parameters) abort the run; data-quality findings only land in the reports.
func Run(ctx context.Context, name string, ds *dataset.Dataset, cfg Config, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	res := &Result{
		RunID:     uuid.NewString(),
		Name:      name,
		StartedAt: time.Now(),
		RowsIn:    ds.Len(),
		Config:    cfg,
		Input:     ds,
	}
	log = log.With(zap.String("run_id", res.RunID), zap.String("dataset", name))
	log.Info("pipeline started", zap.Int("rows", ds.Len()), zap.Int("columns", len(ds.Columns())))

	cur := ds
	step := func(stage string, fn func(*dataset.Dataset) (*dataset.Dataset, error)) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		t0 := time.Now()
		out, err := fn(cur)
		if err != nil {
			log.Error("stage failed", zap.String("stage", stage), zap.Error(err))
			return &StageError{Stage: stage, Err: err}
		}
		log.Info("stage finished",
			zap.String("stage", stage),
			zap.Int("rows_before", cur.Len()),
			zap.Int("rows_after", out.Len()),
			zap.Duration("took", time.Since(t0)),
		)
		cur = out
		return nil
	}

	err := step(StageQuality, func(in *dataset.Dataset) (*dataset.Dataset, error) {
		out, rep, err := quality.Audit(in, quality.Options{
			Required:         cfg.RequiredColumns,
			DuplicateColumns: cfg.DuplicateColumns,
			KeepDuplicates:   cfg.KeepDuplicates,
		})
		if err != nil {
			return nil, err
		}
		if rep.DuplicateCount > 0 {
			log.Info("duplicates found", zap.Int("count", rep.DuplicateCount), zap.Int("dropped", rep.DuplicateDropped))
		}
		res.Quality = rep
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	err = step(StageCoerce, func(in *dataset.Dataset) (*dataset.Dataset, error) {
		out, rep, err := coerce.Apply(in, cfg.Coercions)
		if err != nil {
			return nil, err
		}
		for col, n := range rep.Failures {
			if n > 0 {
				log.Warn("coercion failures", zap.String("column", col), zap.String("target", string(rep.Converted[col])), zap.Int("failures", n))
			}
		}
		res.Coercion = rep
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	err = step(StageValidate, func(in *dataset.Dataset) (*dataset.Dataset, error) {
		out, rep, err := validate.Apply(in, cfg.Rules)
		if err != nil {
			return nil, err
		}
		res.Validation = rep
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	if !cfg.SkipOutliers {
		err = step(StageOutliers, func(in *dataset.Dataset) (*dataset.Dataset, error) {
			rep, err := outlier.Detect(in, outlier.Options{
				Columns:       cfg.OutlierColumns,
				ZThreshold:    cfg.ZScore(),
				IQRMultiplier: cfg.IQR(),
			})
			if err != nil {
				return nil, err
			}
			for _, c := range rep.Columns {
				log.Debug("outliers",
					zap.String("column", c.Column),
					zap.Int("zscore", c.ZScoreCount()),
					zap.Int("iqr", c.IQRCount()),
				)
			}
			res.Outliers = rep
			return in, nil
		})
		if err != nil {
			return nil, err
		}
	}

	res.Output = cur
	res.RowsOut = cur.Len()
	res.Columns = cur.Columns()
	res.Duration = time.Since(res.StartedAt)
	log.Info("pipeline finished", zap.Int("rows_in", res.RowsIn), zap.Int("rows_out", res.RowsOut), zap.Duration("took", res.Duration))
	return res, nil
}
