package encounter

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Predicate is one condition of a compiled Filter. The predicates returned by
// Filter.Compile are combined with AND; an empty list matches every visit.
type Predicate interface {
	// SQL renders the condition against the edstays alias "e" and the triage
	// alias "t", numbering placeholders from argIdx.
	SQL(argIdx int) (string, []interface{})
	// Match evaluates the same condition in memory. t is nil when the visit
	// has no triage record.
	Match(v *Visit, t *TriageRecord) bool
}

// Filter holds the optional list filters as received from the caller. Zero
// values contribute no predicate.
type Filter struct {
	Gender         string
	Races          []string
	Dispositions   []string
	DateFrom       string
	DateTo         string
	ChiefComplaint string
}

// Compile turns the filter into independent predicates.
//
// An unparsable DateFrom or DateTo is dropped without error and the remaining
// predicates still apply. This mirrors the behavior of the dashboard API this
// service replaces; see InvalidBounds for the names of the dropped bounds.
func (f Filter) Compile() []Predicate {
	var preds []Predicate
	if f.Gender != "" {
		preds = append(preds, genderIs{value: f.Gender})
	}
	if races := nonEmpty(f.Races); len(races) > 0 {
		preds = append(preds, raceIn{values: races})
	}
	if dispositions := nonEmpty(f.Dispositions); len(dispositions) > 0 {
		preds = append(preds, dispositionIn{values: dispositions})
	}
	if f.DateFrom != "" {
		if at, ok := ParseBound(f.DateFrom); ok {
			preds = append(preds, arrivedFrom{at: at})
		}
	}
	if f.DateTo != "" {
		if at, ok := ParseBound(f.DateTo); ok {
			preds = append(preds, arrivedTo{at: at})
		}
	}
	if f.ChiefComplaint != "" {
		preds = append(preds, chiefComplaintContains{value: f.ChiefComplaint})
	}
	return preds
}

// InvalidBounds reports which date bounds Compile silently dropped.
func (f Filter) InvalidBounds() []string {
	var names []string
	if f.DateFrom != "" {
		if _, ok := ParseBound(f.DateFrom); !ok {
			names = append(names, "date_from")
		}
	}
	if f.DateTo != "" {
		if _, ok := ParseBound(f.DateTo); !ok {
			names = append(names, "date_to")
		}
	}
	return names
}

var boundLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
}

// ParseBound parses an ISO-8601 style date or date-time. Values without a
// zone are taken as UTC, matching how arrival times are stored.
func ParseBound(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range boundLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// MatchAll reports whether every predicate holds for the visit.
func MatchAll(preds []Predicate, v *Visit, t *TriageRecord) bool {
	for _, p := range preds {
		if !p.Match(v, t) {
			return false
		}
	}
	return true
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

type genderIs struct{ value string }

func (p genderIs) SQL(argIdx int) (string, []interface{}) {
	return fmt.Sprintf("e.gender = $%d", argIdx), []interface{}{p.value}
}

func (p genderIs) Match(v *Visit, _ *TriageRecord) bool {
	return v.Gender == p.value
}

type raceIn struct{ values []string }

func (p raceIn) SQL(argIdx int) (string, []interface{}) {
	return fmt.Sprintf("e.race = ANY($%d)", argIdx), []interface{}{p.values}
}

func (p raceIn) Match(v *Visit, _ *TriageRecord) bool {
	return v.Race != nil && slices.Contains(p.values, *v.Race)
}

type dispositionIn struct{ values []string }

func (p dispositionIn) SQL(argIdx int) (string, []interface{}) {
	return fmt.Sprintf("e.disposition = ANY($%d)", argIdx), []interface{}{p.values}
}

func (p dispositionIn) Match(v *Visit, _ *TriageRecord) bool {
	return slices.Contains(p.values, v.Disposition)
}

type arrivedFrom struct{ at time.Time }

func (p arrivedFrom) SQL(argIdx int) (string, []interface{}) {
	return fmt.Sprintf("e.intime >= $%d", argIdx), []interface{}{p.at}
}

func (p arrivedFrom) Match(v *Visit, _ *TriageRecord) bool {
	return !v.InTime.Before(p.at)
}

type arrivedTo struct{ at time.Time }

func (p arrivedTo) SQL(argIdx int) (string, []interface{}) {
	return fmt.Sprintf("e.intime <= $%d", argIdx), []interface{}{p.at}
}

func (p arrivedTo) Match(v *Visit, _ *TriageRecord) bool {
	return !v.InTime.After(p.at)
}

type chiefComplaintContains struct{ value string }

func (p chiefComplaintContains) SQL(argIdx int) (string, []interface{}) {
	return fmt.Sprintf(`t.chiefcomplaint ILIKE $%d ESCAPE '\'`, argIdx), []interface{}{"%" + escapeLike(p.value) + "%"}
}

func (p chiefComplaintContains) Match(_ *Visit, t *TriageRecord) bool {
	if t == nil || t.ChiefComplaint == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*t.ChiefComplaint), strings.ToLower(p.value))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes LIKE metacharacters in s match literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
