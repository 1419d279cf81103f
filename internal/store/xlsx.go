package store

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/bill-extract/internal/model"
)

const xlsxSheet = "Bills"

// XLSXSink keeps a workbook in memory and rewrites it after every chunk via
// a temp file and rename, so the file on disk is always a complete workbook.
type XLSXSink struct {
	path  string
	file  *xlsx.File
	sheet *xlsx.Sheet
}

// OpenXLSX loads path if it exists, otherwise starts a workbook with a header row.
func OpenXLSX(path string) (*XLSXSink, error) {
	s := &XLSXSink{path: path}

	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, err
		}
		return s, nil
	}

	s.file = xlsx.NewFile()
	sheet, err := s.file.AddSheet(xlsxSheet)
	if err != nil {
		return nil, eris.Wrap(err, "store: add xlsx sheet")
	}
	s.sheet = sheet
	row := sheet.AddRow()
	for _, c := range model.Columns() {
		row.AddCell().SetString(c)
	}
	if err := s.save(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *XLSXSink) load() error {
	f, err := xlsx.OpenFile(s.path)
	if err != nil {
		return eris.Wrapf(err, "store: open xlsx %s", s.path)
	}
	sheet, ok := f.Sheet[xlsxSheet]
	if !ok {
		if len(f.Sheets) == 0 {
			return eris.Errorf("store: xlsx %s has no sheets", s.path)
		}
		sheet = f.Sheets[0]
	}
	s.file, s.sheet = f, sheet
	return nil
}

// Append implements Sink.
func (s *XLSXSink) Append(_ context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		row := s.sheet.AddRow()
		for i, v := range r.Row() {
			cell := row.AddCell()
			if amountColumn(i) {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					cell.SetFloatWithFormat(f, "0.00")
					continue
				}
			}
			cell.SetString(v)
		}
	}

	if err := s.save(); err != nil {
		// Forget the unsaved rows.
		if lerr := s.load(); lerr != nil {
			return eris.Wrap(lerr, err.Error())
		}
		return err
	}
	return nil
}

func (s *XLSXSink) save() error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".bills-*.xlsx")
	if err != nil {
		return eris.Wrap(err, "store: create xlsx temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	if err := s.file.Write(tmp); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "store: write xlsx %s", s.path)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "store: sync xlsx %s", s.path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "store: close xlsx %s", s.path)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return eris.Wrapf(err, "store: replace xlsx %s", s.path)
	}
	return nil
}

// Processed implements Sink.
func (s *XLSXSink) Processed(_ context.Context) (map[string]bool, error) {
	seen := map[string]bool{}
	for i, row := range s.sheet.Rows {
		if i == 0 || row == nil || len(row.Cells) == 0 {
			continue
		}
		if name := row.Cells[0].String(); name != "" {
			seen[name] = true
		}
	}
	return seen, nil
}

// Close implements Sink. Every chunk is already on disk.
func (s *XLSXSink) Close() error { return nil }
