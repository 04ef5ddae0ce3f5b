// Package query holds the fetch parameters for the URL collection.
//
// State is a value type. Setters return a modified copy; any change to the
// search text, status filter, sort or page size resets the page to 1.
package query

import (
	"strings"

	"github.com/five82/crawldeck/internal/crawlapi"
)

// Column is a sortable field accepted by the list endpoint.
type Column string

const (
	ColumnCreatedAt     Column = "created_at"
	ColumnUpdatedAt     Column = "updated_at"
	ColumnURL           Column = "url"
	ColumnStatus        Column = "status"
	ColumnTitle         Column = "title"
	ColumnInternalLinks Column = "internal_links"
	ColumnExternalLinks Column = "external_links"
)

// Columns lists every sortable column.
var Columns = []Column{
	ColumnCreatedAt,
	ColumnUpdatedAt,
	ColumnURL,
	ColumnStatus,
	ColumnTitle,
	ColumnInternalLinks,
	ColumnExternalLinks,
}

// ParseColumn reports whether raw names a sortable column.
func ParseColumn(raw string) (Column, bool) {
	col := Column(strings.ToLower(strings.TrimSpace(raw)))
	for _, c := range Columns {
		if c == col {
			return c, true
		}
	}
	return "", false
}

// Direction is a sort order.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection accepts "asc" or "desc" in any case.
func ParseDirection(raw string) (Direction, bool) {
	switch Direction(strings.ToLower(strings.TrimSpace(raw))) {
	case Asc:
		return Asc, true
	case Desc:
		return Desc, true
	}
	return "", false
}

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == Asc {
		return Desc
	}
	return Asc
}

// Sort pairs a column with a direction.
type Sort struct {
	Column    Column
	Direction Direction
}

// DefaultSort is newest first.
var DefaultSort = Sort{Column: ColumnCreatedAt, Direction: Desc}

// Toggle flips the direction when col is already the sort column and
// otherwise sorts ascending by col.
func (s Sort) Toggle(col Column) Sort {
	if s.Column == col {
		return Sort{Column: col, Direction: s.Direction.Flip()}
	}
	return Sort{Column: col, Direction: Asc}
}

const DefaultPageSize = 10

// State is the full set of list parameters.
type State struct {
	Search   string
	Status   crawlapi.Status // empty means no filter
	Sort     Sort
	Page     int
	PageSize int
}

// Default returns page 1 sorted by DefaultSort. A non-positive pageSize
// falls back to DefaultPageSize.
func Default(pageSize int) State {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return State{Sort: DefaultSort, Page: 1, PageSize: pageSize}
}

func (s State) WithSearch(search string) State {
	s.Search = search
	s.Page = 1
	return s
}

func (s State) WithStatus(status crawlapi.Status) State {
	s.Status = status
	s.Page = 1
	return s
}

func (s State) WithSort(sort Sort) State {
	s.Sort = sort
	s.Page = 1
	return s
}

// WithPage sets the page without range checks; the server clamps or returns
// an empty page.
func (s State) WithPage(page int) State {
	s.Page = page
	return s
}

func (s State) WithPageSize(size int) State {
	if size <= 0 {
		size = DefaultPageSize
	}
	s.PageSize = size
	s.Page = 1
	return s
}

// ListQuery converts the state into endpoint parameters.
func (s State) ListQuery() crawlapi.ListQuery {
	return crawlapi.ListQuery{
		Page:      s.Page,
		PageSize:  s.PageSize,
		Search:    s.Search,
		Status:    s.Status,
		SortBy:    string(s.Sort.Column),
		SortOrder: string(s.Sort.Direction),
	}
}
