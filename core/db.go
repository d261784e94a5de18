package core

import (
	"strings"
)

// Record is a schemaless table row keyed by column name.
type Record map[string]interface{}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

type Ordering struct {
	Field     string
	Ascending bool
}

func (ord Ordering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// ParseOrderings parses "created_at.desc,name.asc" (PostgREST) or "-created_at,name" (API) orderings.
func ParseOrderings(s string) []Ordering {
	var ords []Ordering
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		ord := Ordering{Field: field, Ascending: true}
		if strings.HasPrefix(field, "-") {
			ord = Ordering{Field: field[1:]}
		} else if parts := strings.Split(field, "."); len(parts) > 1 {
			ord.Field = parts[0]
			for _, mod := range parts[1:] {
				switch mod {
				case "desc":
					ord.Ascending = false
				case "asc":
					ord.Ascending = true
				}
			}
		}
		ords = append(ords, ord)
	}
	return ords
}

// Filter is an equality condition on a column.
type Filter struct {
	Field string
	Value string
}

// Range is the half-open row window [From, To).
type Range struct {
	From int
	To   int
}

// PageRange returns the window of a 1-based page.
func PageRange(page, pageSize int) Range {
	from := (page - 1) * pageSize
	return Range{From: from, To: from + pageSize}
}

func (r Range) Limit() int { return r.To - r.From }

// Query describes a filtered, ordered and optionally ranged select.
type Query struct {
	Filters   []Filter
	Orderings []Ordering
	Range     *Range
	Count     bool // compute the exact number of rows matching Filters
}

func (q Query) Where(field, value string) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Value: value})
	return q
}

func (q Query) OrderBy(field string, ascending bool) Query {
	q.Orderings = append(append([]Ordering(nil), q.Orderings...), Ordering{Field: field, Ascending: ascending})
	return q
}

func (q Query) Paginate(page, pageSize int) Query {
	r := PageRange(page, pageSize)
	q.Range = &r
	q.Count = true
	return q
}
