package sqlxdb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/baas"
)

// seqColumn keeps the insertion order so that rows with equal sort keys keep a stable order.
const seqColumn = "seq"

func schema(table string) (baas.TableSchema, error) {
	t, ok := baas.Tables[table]
	if !ok {
		return baas.TableSchema{}, errors.Errorf("unknown table %q", table)
	}
	return t, nil
}

// statement accumulates a query and its positional arguments.
type statement struct {
	sb   strings.Builder
	args []interface{}
}

func (s *statement) write(parts ...string) *statement {
	for _, p := range parts {
		s.sb.WriteString(p)
	}
	return s
}

func (s *statement) arg(v interface{}) string {
	s.args = append(s.args, v)
	return fmt.Sprintf("$%d", len(s.args))
}

func (s *statement) String() string { return s.sb.String() }

func columnList(t baas.TableSchema) string {
	cols := t.ColumnNames()
	for i, c := range cols {
		cols[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(cols, ", ")
}

func (s *statement) where(t baas.TableSchema, filters []core.Filter) error {
	for i, f := range filters {
		if _, ok := t.Column(f.Field); !ok {
			return errors.Errorf("unknown column %s.%s", t.Name, f.Field)
		}
		kw := " AND "
		if i == 0 {
			kw = " WHERE "
		}
		s.write(kw, pq.QuoteIdentifier(f.Field), " = ", s.arg(f.Value))
	}
	return nil
}

func (s *statement) orderBy(t baas.TableSchema, ords []core.Ordering) error {
	tie := "ASC"
	s.write(" ORDER BY ")
	for _, ord := range ords {
		if _, ok := t.Column(ord.Field); !ok {
			return errors.Errorf("unknown column %s.%s", t.Name, ord.Field)
		}
		dir := "DESC"
		if ord.Ascending {
			dir = "ASC"
		}
		s.write(pq.QuoteIdentifier(ord.Field), " ", dir, ", ")
	}
	// ties follow the direction of the first ordering
	if len(ords) > 0 && !ords[0].Ascending {
		tie = "DESC"
	}
	s.write(seqColumn, " ", tie)
	return nil
}

// scan reads the rows into records whose values have the types the RecordService works with.
func (db *DB) scan(ctx context.Context, t baas.TableSchema, st *statement) ([]core.Record, error) {
	rows, err := db.db.QueryxContext(ctx, st.String(), st.args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	recs := make([]core.Record, 0)
	for rows.Next() {
		raw := make(map[string]interface{}, len(t.Columns))
		if err = rows.MapScan(raw); err != nil {
			return nil, err
		}
		rec := make(core.Record, len(t.Columns))
		for _, col := range t.Columns {
			rec[col.Name] = fromDB(raw[col.Name])
		}
		recs = append(recs, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func fromDB(v interface{}) interface{} {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC()
	}
	return v
}

func (db *DB) SelectRecords(ctx context.Context, table string, q core.Query) ([]core.Record, int, error) {
	t, err := schema(table)
	if err != nil {
		return nil, 0, err
	}

	st := new(statement).write(`SELECT `, columnList(t), ` FROM `, pq.QuoteIdentifier(t.Name))
	if err = st.where(t, q.Filters); err != nil {
		return nil, 0, err
	}
	if err = st.orderBy(t, q.Orderings); err != nil {
		return nil, 0, err
	}
	if q.Range != nil {
		st.write(` LIMIT `, st.arg(q.Range.Limit()), ` OFFSET `, st.arg(q.Range.From))
	}
	recs, err := db.scan(ctx, t, st)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "selecting %s", table)
	}

	var total int
	if q.Count {
		cnt := new(statement).write(`SELECT count(*) FROM `, pq.QuoteIdentifier(t.Name))
		if err = cnt.where(t, q.Filters); err != nil {
			return nil, 0, err
		}
		if err = db.db.GetContext(ctx, &total, cnt.String(), cnt.args...); err != nil {
			return nil, 0, errors.Wrapf(err, "counting %s", table)
		}
	}
	return recs, total, nil
}

// sortedKeys makes the generated SQL deterministic.
func sortedKeys(rec core.Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (db *DB) InsertRecord(ctx context.Context, table string, rec core.Record) (core.Record, error) {
	t, err := schema(table)
	if err != nil {
		return nil, err
	}

	keys := sortedKeys(rec)
	cols := make([]string, 0, len(keys))
	st := new(statement)
	vals := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := t.Column(k); !ok {
			return nil, errors.Errorf("unknown column %s.%s", t.Name, k)
		}
		cols = append(cols, pq.QuoteIdentifier(k))
		vals = append(vals, st.arg(rec[k]))
	}
	st.write(`INSERT INTO `, pq.QuoteIdentifier(t.Name), ` (`, strings.Join(cols, ", "), `) VALUES (`,
		strings.Join(vals, ", "), `) RETURNING `, columnList(t))

	recs, err := db.scan(ctx, t, st)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, baas.ErrDuplicateKey
		}
		return nil, errors.Wrapf(err, "inserting into %s", table)
	}
	return recs[0], nil
}

func (db *DB) UpdateRecords(ctx context.Context, table string, filters []core.Filter, rec core.Record) ([]core.Record, error) {
	t, err := schema(table)
	if err != nil {
		return nil, err
	}
	if len(rec) == 0 {
		recs, _, err := db.SelectRecords(ctx, table, core.Query{Filters: filters})
		return recs, err
	}

	st := new(statement).write(`WITH affected AS (UPDATE `, pq.QuoteIdentifier(t.Name), ` SET `)
	for i, k := range sortedKeys(rec) {
		if _, ok := t.Column(k); !ok {
			return nil, errors.Errorf("unknown column %s.%s", t.Name, k)
		}
		if i > 0 {
			st.write(", ")
		}
		st.write(pq.QuoteIdentifier(k), " = ", st.arg(rec[k]))
	}
	if err = st.where(t, filters); err != nil {
		return nil, err
	}
	st.write(` RETURNING *) SELECT `, columnList(t), ` FROM affected ORDER BY `, seqColumn)

	recs, err := db.scan(ctx, t, st)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, baas.ErrDuplicateKey
		}
		return nil, errors.Wrapf(err, "updating %s", table)
	}
	return recs, nil
}

func (db *DB) DeleteRecords(ctx context.Context, table string, filters []core.Filter) ([]core.Record, error) {
	t, err := schema(table)
	if err != nil {
		return nil, err
	}

	st := new(statement).write(`WITH affected AS (DELETE FROM `, pq.QuoteIdentifier(t.Name))
	if err = st.where(t, filters); err != nil {
		return nil, err
	}
	st.write(` RETURNING *) SELECT `, columnList(t), ` FROM affected ORDER BY `, seqColumn)

	recs, err := db.scan(ctx, t, st)
	if err != nil {
		return nil, errors.Wrapf(err, "deleting from %s", table)
	}
	return recs, nil
}
