package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordOf(header []string, fields ...string) *Record {
	r := newRecord("test.csv.gz", header)
	r.reset(2, fields)
	return r
}

func TestRecord_EmptyBecomesNil(t *testing.T) {
	r := recordOf([]string{"race", "hadm_id", "sbp", "charttime"}, "", "  ", "", "")

	assert.Nil(t, r.String("race"))
	assert.Nil(t, r.Int64("hadm_id"))
	assert.Nil(t, r.Float("sbp"))
	assert.Nil(t, r.Time("charttime"))
	assert.NoError(t, r.Err())
}

func TestRecord_AbsentColumnIsNil(t *testing.T) {
	r := recordOf([]string{"stay_id"}, "1")
	assert.Nil(t, r.String("arrival_transport"))
	assert.Nil(t, r.Int32("acuity"))
}

func TestRecord_IntegerForms(t *testing.T) {
	r := recordOf([]string{"a", "b", "c", "d"}, "3", "3.0", "3.5", "abc")

	require.NotNil(t, r.Int64("a"))
	assert.Equal(t, int64(3), *r.Int64("a"))
	require.NotNil(t, r.Int64("b"))
	assert.Equal(t, int64(3), *r.Int64("b"))
	assert.Nil(t, r.Int64("c"), "fractional values are not integers")
	assert.Nil(t, r.Int64("d"))

	require.NotNil(t, r.Int32("b"))
	assert.Equal(t, int32(3), *r.Int32("b"))
}

func TestRecord_Timestamps(t *testing.T) {
	r := recordOf([]string{"a", "b", "c", "d"},
		"2110-01-01 10:00:00", "2110-01-01T10:30:00", "2110-01-01 10:00:00.5", "yesterday")

	want := time.Date(2110, 1, 1, 10, 0, 0, 0, time.UTC)
	require.NotNil(t, r.Time("a"))
	assert.True(t, r.Time("a").Equal(want))
	assert.Equal(t, time.UTC, r.Time("a").Location())

	require.NotNil(t, r.Time("b"))
	assert.Equal(t, 30, r.Time("b").Minute())

	require.NotNil(t, r.Time("c"))
	assert.Equal(t, 500*time.Millisecond, time.Duration(r.Time("c").Nanosecond()))

	assert.Nil(t, r.Time("d"))
}

func TestRecord_RequiredFailureSticks(t *testing.T) {
	r := recordOf([]string{"stay_id", "intime", "gender"}, "x", "bad", "")

	r.RequiredInt64("stay_id")
	r.RequiredTime("intime")
	r.RequiredString("gender")

	err := r.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test.csv.gz line 2")
	assert.Contains(t, err.Error(), "column stay_id", "first failure wins")
}

func TestRecord_ResetClearsError(t *testing.T) {
	r := recordOf([]string{"stay_id"}, "x")
	r.RequiredInt64("stay_id")
	require.Error(t, r.Err())

	r.reset(3, []string{"7"})
	assert.Equal(t, int64(7), r.RequiredInt64("stay_id"))
	assert.NoError(t, r.Err())
}

func TestRecord_HeaderBOMAndSpaces(t *testing.T) {
	r := recordOf([]string{"\ufeffstay_id", " subject_id "}, "1", "2")
	assert.Equal(t, int64(1), r.RequiredInt64("stay_id"))
	assert.Equal(t, int64(2), r.RequiredInt64("subject_id"))
	assert.NoError(t, r.Err())
}
