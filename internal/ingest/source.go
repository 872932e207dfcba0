package ingest

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// csvSource streams a gzipped CSV file as pgx.CopyFromSource rows.
type csvSource struct {
	table  Table
	closer io.Closer
	gz     *gzip.Reader
	reader *csv.Reader
	rec    *Record
	line   int
	values []interface{}
	err    error
	count  int64
}

func openSource(path string, t Table) (*csvSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", t.File, err)
	}
	src, err := newSource(f, t)
	if err != nil {
		f.Close()
		return nil, err
	}
	src.closer = f
	return src, nil
}

func newSource(r io.Reader, t Table) (*csvSource, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.File, err)
	}
	cr := csv.NewReader(gz)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		gz.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty file", t.File)
		}
		return nil, fmt.Errorf("%s: read header: %w", t.File, err)
	}
	src := &csvSource{
		table:  t,
		gz:     gz,
		reader: cr,
		rec:    newRecord(t.File, header),
		line:   1,
	}
	for _, col := range []string{"stay_id", "subject_id"} {
		if _, ok := src.rec.index[col]; !ok {
			gz.Close()
			return nil, fmt.Errorf("%s: missing column %s", t.File, col)
		}
	}
	return src, nil
}

func (s *csvSource) Next() bool {
	if s.err != nil {
		return false
	}
	fields, err := s.reader.Read()
	if errors.Is(err, io.EOF) {
		return false
	}
	s.line++
	if err != nil {
		s.err = fmt.Errorf("%s line %d: %w", s.table.File, s.line, err)
		return false
	}
	s.rec.reset(s.line, fields)
	s.values = s.table.Row(s.rec)
	if err := s.rec.Err(); err != nil {
		s.err = err
		return false
	}
	s.count++
	return true
}

func (s *csvSource) Values() ([]interface{}, error) {
	return s.values, nil
}

func (s *csvSource) Err() error {
	return s.err
}

func (s *csvSource) Close() error {
	err := s.gz.Close()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
