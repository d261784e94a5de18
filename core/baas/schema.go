package baas

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/backend"
	"github.com/trezcool/smis/core/class"
	"github.com/trezcool/smis/core/student"
	"github.com/trezcool/smis/core/update"
)

type ColumnType int

const (
	TypeText ColumnType = iota
	TypeUUID
	TypeTimestamp
)

type (
	Column struct {
		Name    string
		Type    ColumnType
		NotNull bool
		Default func(now time.Time) interface{}
	}

	TableSchema struct {
		Name        string
		Columns     []Column
		OwnerColumn string // rows are only visible to the user whose id is in this column
	}
)

var (
	genUUID = func(time.Time) interface{} { return uuid.NewString() }
	genNow  = func(now time.Time) interface{} { return now.UTC() }

	// Tables served by the RecordService.
	Tables = map[string]TableSchema{
		class.Table: {
			Name: class.Table,
			Columns: []Column{
				{Name: "id", Type: TypeUUID, NotNull: true, Default: genUUID},
				{Name: "name", Type: TypeText, NotNull: true},
				{Name: "description", Type: TypeText},
				{Name: "grade", Type: TypeText},
				{Name: "subject", Type: TypeText},
				{Name: "schedule", Type: TypeText},
				{Name: "room", Type: TypeText},
				{Name: "teacher_id", Type: TypeUUID, NotNull: true},
				{Name: "created_at", Type: TypeTimestamp, NotNull: true, Default: genNow},
				{Name: "updated_at", Type: TypeTimestamp},
			},
			OwnerColumn: "teacher_id",
		},
		student.Table: {
			Name: student.Table,
			Columns: []Column{
				{Name: "id", Type: TypeUUID, NotNull: true, Default: genUUID},
				{Name: "name", Type: TypeText, NotNull: true},
				{Name: "identifier", Type: TypeText},
				{Name: "class_id", Type: TypeUUID, NotNull: true},
				{Name: "teacher_id", Type: TypeUUID, NotNull: true},
				{Name: "created_at", Type: TypeTimestamp, NotNull: true, Default: genNow},
				{Name: "updated_at", Type: TypeTimestamp},
			},
			OwnerColumn: "teacher_id",
		},
		update.Table: {
			Name: update.Table,
			Columns: []Column{
				{Name: "id", Type: TypeUUID, NotNull: true, Default: genUUID},
				{Name: "text", Type: TypeText, NotNull: true},
				{Name: "category", Type: TypeText, NotNull: true, Default: func(time.Time) interface{} { return update.DefaultCategory }},
				{Name: "class_id", Type: TypeUUID, NotNull: true},
				{Name: "teacher_id", Type: TypeUUID, NotNull: true},
				{Name: "created_at", Type: TypeTimestamp, NotNull: true, Default: genNow},
				{Name: "updated_at", Type: TypeTimestamp},
			},
			OwnerColumn: "teacher_id",
		},
	}
)

// Column names of the table, in declaration order.
func (t TableSchema) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		names = append(names, col.Name)
	}
	return names
}

func (t TableSchema) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

func (t TableSchema) column(name string) (Column, error) {
	col, ok := t.Column(name)
	if !ok {
		return Column{}, backend.NewError(http.StatusBadRequest, backend.CodeUnknownColumn,
			fmt.Sprintf("column %s.%s does not exist", t.Name, name))
	}
	return col, nil
}

// normalize checks the columns of rec and converts its values to their column type.
func (t TableSchema) normalize(rec core.Record) (core.Record, error) {
	out := make(core.Record, len(rec))
	for name, val := range rec {
		col, err := t.column(name)
		if err != nil {
			return nil, err
		}
		v, err := col.convert(val)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// complete fills defaults and checks not-null columns of a row about to be inserted.
func (t TableSchema) complete(rec core.Record, now time.Time) (core.Record, error) {
	for _, col := range t.Columns {
		if v, ok := rec[col.Name]; (!ok || v == nil) && col.Default != nil {
			rec[col.Name] = col.Default(now)
		}
		if _, ok := rec[col.Name]; !ok {
			rec[col.Name] = nil
		}
		if col.NotNull && rec[col.Name] == nil {
			return nil, backend.NewError(http.StatusBadRequest, "23502",
				fmt.Sprintf(`null value in column "%s" of relation "%s" violates not-null constraint`, col.Name, t.Name))
		}
	}
	return rec, nil
}

func (t TableSchema) normalizeFilters(filters []core.Filter) ([]core.Filter, error) {
	out := make([]core.Filter, 0, len(filters))
	for _, f := range filters {
		col, err := t.column(f.Field)
		if err != nil {
			return nil, err
		}
		v, err := col.convert(f.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, core.Filter{Field: f.Field, Value: FormatValue(v)})
	}
	return out, nil
}

func (t TableSchema) checkOrderings(ords []core.Ordering) error {
	for _, ord := range ords {
		if _, err := t.column(ord.Field); err != nil {
			return err
		}
	}
	return nil
}

func (col Column) convert(val interface{}) (interface{}, error) {
	if val == nil {
		return nil, nil
	}
	invalid := func() error {
		return backend.NewError(http.StatusBadRequest, "22P02",
			fmt.Sprintf("invalid input syntax for column %s: %v", col.Name, val))
	}

	switch col.Type {
	case TypeUUID:
		s, ok := val.(string)
		if !ok {
			return nil, invalid()
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, invalid()
		}
		return id.String(), nil
	case TypeTimestamp:
		switch v := val.(type) {
		case time.Time:
			return v.UTC(), nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, strings.Replace(v, " ", "T", 1))
			if err != nil {
				return nil, invalid()
			}
			return t.UTC(), nil
		}
		return nil, invalid()
	default:
		s, ok := val.(string)
		if !ok {
			return nil, invalid()
		}
		return s, nil
	}
}

// FormatValue returns the canonical text form of a normalized value.
func FormatValue(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// CompareValues orders normalized values of the same column. Nulls sort after everything else.
func CompareValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			}
			return 0
		}
	}
	return strings.Compare(FormatValue(a), FormatValue(b))
}
