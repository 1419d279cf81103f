package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bill-extract/internal/model"
)

// CSVSink appends records to a CSV file. The header is written only when
// the file is created, and every chunk is written and synced in one call.
type CSVSink struct {
	path string
	f    *os.File
	size int64
}

// OpenCSV opens or creates path. A trailing partial line left by an
// interrupted write is cut off so the file ends on a row boundary.
func OpenCSV(path string) (*CSVSink, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open csv %s", path)
	}
	s := &CSVSink{path: path, f: f}

	info, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "store: stat csv %s", path)
	}
	s.size = info.Size()

	if s.size > 0 {
		if s.size, err = cutPartialLine(f, s.size); err != nil {
			f.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "store: repair csv %s", path)
		}
	}
	if s.size == 0 {
		if err := s.write([][]string{model.Columns()}); err != nil {
			f.Close() //nolint:errcheck
			return nil, err
		}
	}
	return s, nil
}

// Append implements Sink.
func (s *CSVSink) Append(_ context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = r.Row()
	}
	return s.write(rows)
}

func (s *CSVSink) write(rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return eris.Wrap(err, "store: encode csv rows")
	}

	if _, err := s.f.WriteAt(buf.Bytes(), s.size); err != nil {
		// Drop whatever part of the chunk made it to disk.
		_ = s.f.Truncate(s.size)
		return eris.Wrapf(err, "store: write csv %s", s.path)
	}
	if err := s.f.Sync(); err != nil {
		_ = s.f.Truncate(s.size)
		return eris.Wrapf(err, "store: sync csv %s", s.path)
	}
	s.size += int64(buf.Len())
	return nil
}

// Processed implements Sink.
func (s *CSVSink) Processed(_ context.Context) (map[string]bool, error) {
	return readCSVSources(s.path)
}

// Close implements Sink.
func (s *CSVSink) Close() error {
	return s.f.Close()
}

func readCSVSources(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open csv %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	seen := map[string]bool{}
	header := true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "store: read csv %s", path)
		}
		if header {
			header = false
			continue
		}
		if len(rec) > 0 && rec[0] != "" {
			seen[rec[0]] = true
		}
	}
	return seen, nil
}

// cutPartialLine truncates f after its last newline and returns the new size.
func cutPartialLine(f *os.File, size int64) (int64, error) {
	const block = 4096
	buf := make([]byte, block)
	end := size
	for end > 0 {
		start := end - block
		if start < 0 {
			start = 0
		}
		n, err := f.ReadAt(buf[:end-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			keep := start + int64(i) + 1
			if keep != size {
				if err := f.Truncate(keep); err != nil {
					return 0, err
				}
			}
			return keep, nil
		}
		end = start
	}
	if err := f.Truncate(0); err != nil {
		return 0, err
	}
	return 0, nil
}
