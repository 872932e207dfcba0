package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Record is one CSV row addressed by header name. The first conversion
// failure on a required field sticks and is reported by Err.
type Record struct {
	file   string
	line   int
	index  map[string]int
	fields []string
	err    error
}

func newRecord(file string, header []string) *Record {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	return &Record{file: file, index: index}
}

func (r *Record) reset(line int, fields []string) {
	r.line = line
	r.fields = fields
	r.err = nil
}

func (r *Record) Err() error { return r.err }

func (r *Record) fail(col, value, reason string) {
	if r.err == nil {
		r.err = fmt.Errorf("%s line %d: column %s: %s %q", r.file, r.line, col, reason, value)
	}
}

// raw returns the trimmed field, or "" when the column is absent.
func (r *Record) raw(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// String returns nil for an empty or absent field.
func (r *Record) String(col string) *string {
	v := r.raw(col)
	if v == "" {
		return nil
	}
	return &v
}

func (r *Record) RequiredString(col string) string {
	v := r.raw(col)
	if v == "" {
		r.fail(col, v, "missing required value")
	}
	return v
}

// Int64 accepts integral floats such as "3.0". Malformed values become nil.
func (r *Record) Int64(col string) *int64 {
	n, ok := parseInt(r.raw(col))
	if !ok {
		return nil
	}
	return &n
}

func (r *Record) RequiredInt64(col string) int64 {
	v := r.raw(col)
	n, ok := parseInt(v)
	if !ok {
		r.fail(col, v, "invalid integer")
	}
	return n
}

func (r *Record) Int32(col string) *int32 {
	p := r.Int64(col)
	if p == nil {
		return nil
	}
	n := int32(*p)
	return &n
}

func (r *Record) RequiredInt32(col string) int32 {
	return int32(r.RequiredInt64(col))
}

func (r *Record) Float(col string) *float64 {
	v := r.raw(col)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

// Time parses a zone-less timestamp as UTC. Malformed values become nil.
func (r *Record) Time(col string) *time.Time {
	t, ok := parseTime(r.raw(col))
	if !ok {
		return nil
	}
	return &t
}

func (r *Record) RequiredTime(col string) time.Time {
	v := r.raw(col)
	t, ok := parseTime(v)
	if !ok {
		r.fail(col, v, "invalid timestamp")
	}
	return t
}

func parseInt(v string) (int64, bool) {
	if v == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

func parseTime(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
