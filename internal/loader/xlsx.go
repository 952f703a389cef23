package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/KaramelBytes/tabaudit-cli/internal/dataset"
)

// LoadXLSX reads the selected sheet of a .xlsx workbook; the first row is the header.
// If sheet is empty and index <= 0, it defaults to the first sheet. index is 1-based (Sheet1 == 1).
func LoadXLSX(file, sheet string, index int, opt CSVOptions) (*dataset.Dataset, error) {
	wb, err := openWorkbook(file)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	part, err := wb.sheetPart(sheet, index)
	if err != nil {
		return nil, fmt.Errorf("%w in workbook '%s'", err, filepath.Base(file))
	}
	data, err := wb.read(part)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("sheet part %s missing from workbook '%s'", part, filepath.Base(file))
	}
	shared, err := wb.sharedStrings()
	if err != nil {
		return nil, err
	}

	rows := newRowReader(data, shared)
	header, err := rows.next()
	if errors.Is(err, io.EOF) || (err == nil && len(header) == 0) {
		return dataset.New(nil, nil)
	}
	if err != nil {
		return nil, err
	}
	var records [][]string
	for opt.MaxRows <= 0 || len(records) < opt.MaxRows {
		rec, err := rows.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return fromRecords(header, records, opt)
}

type workbook struct {
	zc     *zip.ReadCloser
	sheets []wbSheet
	rels   map[string]string
}

type wbSheet struct {
	Name    string `xml:"name,attr"`
	SheetID int    `xml:"sheetId,attr"`
	// RID is the r:id relationship attribute.
	RID string `xml:"id,attr"`
}

func openWorkbook(file string) (*workbook, error) {
	zc, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	wb := &workbook{zc: zc, rels: map[string]string{}}

	var book struct {
		Sheets []wbSheet `xml:"sheets>sheet"`
	}
	if err := wb.decode("xl/workbook.xml", &book); err != nil {
		zc.Close()
		return nil, err
	}
	wb.sheets = book.Sheets

	var rels struct {
		Items []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := wb.decode("xl/_rels/workbook.xml.rels", &rels); err != nil {
		zc.Close()
		return nil, err
	}
	for _, r := range rels.Items {
		if r.ID != "" && r.Target != "" {
			wb.rels[r.ID] = r.Target
		}
	}
	return wb, nil
}

func (wb *workbook) Close() error { return wb.zc.Close() }

// read returns the bytes of an archive member, or nil when it does not exist.
func (wb *workbook) read(name string) ([]byte, error) {
	for _, f := range wb.zc.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return b, nil
	}
	return nil, nil
}

// decode unmarshals an optional XML member into v; a missing member leaves v untouched.
func (wb *workbook) decode(name string, v any) error {
	b, err := wb.read(name)
	if err != nil || len(b) == 0 {
		return err
	}
	if err := xml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func (wb *workbook) sheetNames() []string {
	out := make([]string, len(wb.sheets))
	for i, s := range wb.sheets {
		out[i] = s.Name
	}
	return out
}

// sheetPart maps a sheet name or 1-based sheet id to its member path inside the archive.
func (wb *workbook) sheetPart(name string, index int) (string, error) {
	if name != "" {
		for _, s := range wb.sheets {
			if strings.EqualFold(s.Name, name) {
				if rel, ok := wb.rels[s.RID]; ok {
					return partPath(rel), nil
				}
				break
			}
		}
		return "", fmt.Errorf("sheet '%s' not found (available sheets: %s)", name, strings.Join(wb.sheetNames(), ", "))
	}
	if index <= 0 {
		index = 1
	}
	for _, s := range wb.sheets {
		if s.SheetID == index {
			if rel, ok := wb.rels[s.RID]; ok {
				return partPath(rel), nil
			}
		}
	}
	return fmt.Sprintf("xl/worksheets/sheet%d.xml", index), nil
}

type richText struct {
	T    string `xml:"t"`
	Runs []struct {
		T string `xml:"t"`
	} `xml:"r"`
}

func (r richText) String() string {
	if len(r.Runs) == 0 {
		return r.T
	}
	var b strings.Builder
	b.WriteString(r.T)
	for _, run := range r.Runs {
		b.WriteString(run.T)
	}
	return b.String()
}

func (wb *workbook) sharedStrings() ([]string, error) {
	b, err := wb.read("xl/sharedStrings.xml")
	if err != nil || len(b) == 0 {
		return nil, err
	}
	return parseSharedStrings(b)
}

func parseSharedStrings(data []byte) ([]string, error) {
	var sst struct {
		Items []richText `xml:"si"`
	}
	if err := xml.Unmarshal(data, &sst); err != nil {
		return nil, fmt.Errorf("parse shared strings: %w", err)
	}
	out := make([]string, len(sst.Items))
	for i, si := range sst.Items {
		out[i] = si.String()
	}
	return out, nil
}

type sheetCell struct {
	Ref    string   `xml:"r,attr"`
	Type   string   `xml:"t,attr"`
	Value  string   `xml:"v"`
	Inline richText `xml:"is"`
}

// rowReader streams <row> elements of a worksheet one at a time.
type rowReader struct {
	dec    *xml.Decoder
	shared []string
}

func newRowReader(data []byte, shared []string) *rowReader {
	return &rowReader{dec: xml.NewDecoder(bytes.NewReader(data)), shared: shared}
}

// next returns the cell texts of the next row, placed by their column reference. It returns
// io.EOF after the last row.
func (r *rowReader) next() ([]string, error) {
	for {
		tok, err := r.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("parse sheet: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "row" {
			continue
		}
		var row struct {
			Cells []sheetCell `xml:"c"`
		}
		if err := r.dec.DecodeElement(&row, &start); err != nil {
			return nil, fmt.Errorf("parse sheet row: %w", err)
		}
		var out []string
		col := -1
		for _, c := range row.Cells {
			if i := colIndexFromRef(c.Ref); i >= 0 {
				col = i
			} else {
				col++
			}
			for len(out) <= col {
				out = append(out, "")
			}
			out[col] = r.cellText(c)
		}
		return out, nil
	}
}

func (r *rowReader) cellText(c sheetCell) string {
	switch c.Type {
	case "s":
		i, err := strconv.Atoi(strings.TrimSpace(c.Value))
		if err != nil || i < 0 || i >= len(r.shared) {
			return ""
		}
		return r.shared[i]
	case "inlineStr":
		return c.Inline.String()
	}
	return c.Value
}

// colIndexFromRef maps a cell reference such as "C12" to its 0-based column, or -1 when the
// reference has no column letters.
func colIndexFromRef(ref string) int {
	idx := 0
	n := 0
	for ; n < len(ref); n++ {
		c := ref[n] | 0x20
		if c < 'a' || c > 'z' {
			break
		}
		idx = idx*26 + int(c-'a'+1)
	}
	return idx - 1
}

// partPath turns a workbook relationship target into an archive member path. Targets are
// relative to xl/ unless they carry a leading slash.
func partPath(target string) string {
	target = strings.TrimPrefix(target, "/")
	if strings.HasPrefix(target, "xl/") {
		return target
	}
	return path.Join("xl", target)
}
