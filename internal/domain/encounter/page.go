package encounter

import (
	"errors"
	"fmt"

	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/pkg/pagination"
)

// ErrNotFound is returned when no visit exists for a stay id.
var ErrNotFound = errors.New("encounter not found")

// ValidationError reports a rejected query parameter.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// SortField names a sortable visit column.
type SortField string

const (
	SortInTime      SortField = "intime"
	SortOutTime     SortField = "outtime"
	SortStayID      SortField = "stay_id"
	SortDisposition SortField = "disposition"
)

var sortColumns = map[SortField]string{
	SortInTime:      "e.intime",
	SortOutTime:     "e.outtime",
	SortStayID:      "e.stay_id",
	SortDisposition: "e.disposition",
}

const (
	DefaultSort       = SortInTime
	DefaultDescending = true
)

// PageQuery is the canonical, validated sort and page request.
type PageQuery struct {
	Sort       SortField
	Descending bool
	pagination.Params
}

// DefaultPageQuery returns the first page in the default order.
func DefaultPageQuery() PageQuery {
	return PageQuery{
		Sort:       DefaultSort,
		Descending: DefaultDescending,
		Params:     pagination.Params{Page: pagination.DefaultPage, PerPage: pagination.DefaultPerPage},
	}
}

// NewPageQuery validates raw sort and paging parameters. Empty values take
// their defaults; anything else outside the allowed set is rejected.
func NewPageQuery(sortBy, sortOrder, page, perPage string) (PageQuery, error) {
	q := DefaultPageQuery()

	if sortBy != "" {
		if _, ok := sortColumns[SortField(sortBy)]; !ok {
			return PageQuery{}, &ValidationError{
				Param:   "sort_by",
				Message: fmt.Sprintf("invalid sort_by %q: must be one of intime, outtime, stay_id, disposition", sortBy),
			}
		}
		q.Sort = SortField(sortBy)
	}

	switch sortOrder {
	case "":
	case "asc":
		q.Descending = false
	case "desc":
		q.Descending = true
	default:
		return PageQuery{}, &ValidationError{
			Param:   "sort_order",
			Message: fmt.Sprintf("invalid sort_order %q: must be asc or desc", sortOrder),
		}
	}

	params, err := pagination.Parse(page, perPage)
	if err != nil {
		var pe *pagination.ParamError
		if errors.As(err, &pe) {
			return PageQuery{}, &ValidationError{Param: pe.Param, Message: pe.Error()}
		}
		return PageQuery{}, err
	}
	q.Params = params
	return q, nil
}

// OrderBy renders the ORDER BY expression (without the keyword). stay_id is
// appended as a tiebreaker so equal sort keys page deterministically.
func (q PageQuery) OrderBy() string {
	col, ok := sortColumns[q.Sort]
	if !ok {
		col = sortColumns[DefaultSort]
	}
	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	if q.Sort == SortStayID {
		return col + " " + dir
	}
	return col + " " + dir + ", e.stay_id ASC"
}
