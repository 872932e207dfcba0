package pagination

import (
	"fmt"
	"strconv"
)

const (
	DefaultPage    = 1
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params holds page-number pagination parameters extracted from a request.
type Params struct {
	Page    int
	PerPage int
}

// ParamError reports a pagination parameter that violates its constraints.
// Out-of-range values are rejected rather than clamped.
type ParamError struct {
	Param  string
	Value  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Param, e.Value, e.Reason)
}

// Parse validates raw page and per_page values. Empty strings take the
// defaults.
func Parse(page, perPage string) (Params, error) {
	p := Params{Page: DefaultPage, PerPage: DefaultPerPage}

	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil {
			return Params{}, &ParamError{Param: "page", Value: page, Reason: "must be an integer"}
		}
		if n < 1 {
			return Params{}, &ParamError{Param: "page", Value: page, Reason: "must be >= 1"}
		}
		p.Page = n
	}

	if perPage != "" {
		n, err := strconv.Atoi(perPage)
		if err != nil {
			return Params{}, &ParamError{Param: "per_page", Value: perPage, Reason: "must be an integer"}
		}
		if n < 1 || n > MaxPerPage {
			return Params{}, &ParamError{Param: "per_page", Value: perPage, Reason: fmt.Sprintf("must be between 1 and %d", MaxPerPage)}
		}
		p.PerPage = n
	}

	return p, nil
}

// Offset returns the number of rows skipped before this page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Limit returns the maximum number of rows on this page.
func (p Params) Limit() int {
	return p.PerPage
}

// TotalPages returns ceil(total / perPage), or 0 when perPage is not positive.
func TotalPages(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// Response wraps a paginated API response.
type Response[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

func NewResponse[T any](items []T, total int, p Params) *Response[T] {
	if items == nil {
		items = []T{}
	}
	return &Response[T]{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: TotalPages(total, p.PerPage),
	}
}
