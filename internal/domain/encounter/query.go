package encounter

import (
	"fmt"
	"strings"
)

// visitFrom joins each visit with at most one triage row. Triage is expected
// to be 1:1 with edstays but the lateral join keeps a stray duplicate from
// duplicating the visit.
const visitFrom = `edstays e
	LEFT JOIN LATERAL (
		SELECT tr.chiefcomplaint, tr.acuity
		FROM triage tr
		WHERE tr.stay_id = e.stay_id
		ORDER BY tr.id
		LIMIT 1
	) t ON true`

const summaryCols = `e.stay_id, e.subject_id, e.hadm_id, e.intime, e.outtime,
	e.gender, e.race, e.arrival_transport, e.disposition,
	t.chiefcomplaint, t.acuity`

// visitQuery accumulates WHERE clauses and positional arguments for the
// count and page queries of the encounter list.
type visitQuery struct {
	where   []string
	args    []interface{}
	idx     int
	orderBy string
}

func newVisitQuery() *visitQuery {
	return &visitQuery{idx: 1}
}

// Add appends a raw WHERE clause fragment.
func (q *visitQuery) Add(clause string, args ...interface{}) {
	q.where = append(q.where, clause)
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// Apply renders each predicate starting at the next free placeholder.
func (q *visitQuery) Apply(preds []Predicate) {
	for _, p := range preds {
		clause, args := p.SQL(q.idx)
		q.Add(clause, args...)
	}
}

func (q *visitQuery) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

func (q *visitQuery) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

// CountSQL returns the count query.
func (q *visitQuery) CountSQL() string {
	return "SELECT COUNT(*) FROM " + visitFrom + q.whereSQL()
}

func (q *visitQuery) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the page query with ORDER BY and LIMIT/OFFSET placeholders.
func (q *visitQuery) DataSQL() string {
	sql := "SELECT " + summaryCols + " FROM " + visitFrom + q.whereSQL()
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	return sql
}

// DataArgs returns the filter args followed by limit and offset.
func (q *visitQuery) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}
