package store

import (
	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/backend"
	"github.com/trezcool/smis/core/class"
	"github.com/trezcool/smis/core/student"
	"github.com/trezcool/smis/core/update"
	"github.com/trezcool/smis/core/user"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

var PageSizeOptions = []int{5, 10, 20, 50}

// Pagination is the cursor of the student listing. Page*PageSize may exceed TotalItems.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
}

func (p Pagination) TotalPages() int {
	if p.PageSize <= 0 || p.TotalItems <= 0 {
		return 0
	}
	return (p.TotalItems + p.PageSize - 1) / p.PageSize
}

// Bounds returns the half-open window [from, to) of the current page, clipped to TotalItems.
func (p Pagination) Bounds() (from, to int) {
	r := core.PageRange(p.Page, p.PageSize)
	from, to = r.From, r.To
	if to > p.TotalItems {
		to = p.TotalItems
	}
	if from > to {
		from = to
	}
	return from, to
}

func (p Pagination) HasPrev() bool { return p.Page > 1 }
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages() }

// PaginationUpdate is a partial cursor. Nil fields are left untouched.
type PaginationUpdate struct {
	Page       *int
	PageSize   *int
	TotalItems *int
}

func (pu PaginationUpdate) apply(p Pagination) Pagination {
	if pu.Page != nil {
		p.Page = *pu.Page
	}
	if pu.PageSize != nil {
		p.PageSize = *pu.PageSize
	}
	if pu.TotalItems != nil {
		p.TotalItems = *pu.TotalItems
	}
	return p
}

// State is an immutable snapshot of the dashboard. Snapshots never share mutable memory
// with the store: slices and pointers are replaced, not modified.
type State struct {
	CurrentUser   *user.User
	Session       *backend.Session
	Pending       int // in-flight requests
	Err           error
	Classes       []class.Class
	SelectedClass *class.Class
	Students      []student.Student
	Updates       []update.Update
	Pagination    Pagination
}

// InitialState is the anonymous, empty dashboard.
func InitialState() State {
	return initialState(DefaultPageSize)
}

func initialState(pageSize int) State {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return State{
		Classes:    []class.Class{},
		Students:   []student.Student{},
		Updates:    []update.Update{},
		Pagination: Pagination{Page: DefaultPage, PageSize: pageSize},
	}
}

func (s State) IsLoading() bool       { return s.Pending > 0 }
func (s State) IsAuthenticated() bool { return s.CurrentUser != nil }

type Summary struct {
	Classes  int
	Students int // in the selected class
	Updates  int
}

func (s State) Summary() Summary {
	return Summary{
		Classes:  len(s.Classes),
		Students: s.Pagination.TotalItems,
		Updates:  len(s.Updates),
	}
}
