package pagination

import (
	"strings"

	"github.com/mbs4/mbs4/pkg/errcodes"
)

// Params are the listing query parameters shared by every catalog entity.
// PageSize zero means "use the server default".
type Params struct {
	Page     int    `json:"page" query:"page" default:"1" validate:"min=1"`
	PageSize int    `json:"page_size" query:"page_size" validate:"omitempty,min=1,max=1000"`
	Sort     string `json:"sort" query:"sort"`
	Filter   string `json:"filter" query:"filter" mod:"trim"`
}

// Normalize fills in the defaulted page size. Page is defaulted by the
// binder already, but direct callers get the same treatment here.
func (p Params) Normalize(defaultPageSize int) Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	return p
}

// Limit is the SQL LIMIT for the normalized params.
func (p Params) Limit() int {
	return p.PageSize
}

// Offset is the SQL OFFSET for the normalized params.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// OrderBy translates the comma-separated sort expression into SQL ORDER BY
// expressions. A leading '-' sorts descending, '+' or nothing ascending.
// Field names are looked up in allowed (request name to column); anything
// else is rejected.
func (p Params) OrderBy(allowed map[string]string) ([]string, error) {
	if strings.TrimSpace(p.Sort) == "" {
		return nil, nil
	}

	var exprs []string
	for _, part := range strings.Split(p.Sort, ",") {
		field := strings.TrimSpace(part)
		if field == "" {
			continue
		}

		dir := "ASC"
		switch field[0] {
		case '-':
			dir = "DESC"
			field = field[1:]
		case '+':
			field = field[1:]
		}

		column, ok := allowed[field]
		if !ok {
			return nil, errcodes.InvalidOrderByField(field)
		}
		exprs = append(exprs, column+" "+dir)
	}

	return exprs, nil
}

// Page is the envelope returned by paginated list endpoints.
type Page[T any] struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
	Total      int `json:"total"`
	Rows       []T `json:"rows"`
}

// NewPage wraps rows in the standard envelope. Rows is never null on the
// wire, even when empty.
func NewPage[T any](params Params, total int, rows []T) *Page[T] {
	if rows == nil {
		rows = []T{}
	}
	totalPages := 0
	if params.PageSize > 0 {
		totalPages = (total + params.PageSize - 1) / params.PageSize
	}
	return &Page[T]{
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
		Total:      total,
		Rows:       rows,
	}
}
