package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/baas"
)

func (t *recordTable) rows(table string) map[string]*row {
	rows, ok := t.tables[table]
	if !ok {
		rows = make(map[string]*row)
		t.tables[table] = rows
	}
	return rows
}

func matches(rec core.Record, filters []core.Filter) bool {
	for _, f := range filters {
		v, ok := rec[f.Field]
		if !ok || v == nil || baas.FormatValue(v) != f.Value {
			return false
		}
	}
	return true
}

// filter returns the matching rows by insertion order.
func (t *recordTable) filter(table string, filters []core.Filter) []*row {
	var res []*row
	for _, r := range t.tables[table] {
		if matches(r.data, filters) {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].seq < res[j].seq })
	return res
}

func (db *DB) SelectRecords(_ context.Context, table string, q core.Query) ([]core.Record, int, error) {
	db.record.mutex.RLock()
	defer db.record.mutex.RUnlock()

	rows := db.record.filter(table, q.Filters)
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range q.Orderings {
			c := baas.CompareValues(rows[i].data[ord.Field], rows[j].data[ord.Field])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		// ties follow the direction of the first ordering
		if len(q.Orderings) > 0 && !q.Orderings[0].Ascending {
			return rows[i].seq > rows[j].seq
		}
		return rows[i].seq < rows[j].seq
	})

	total := len(rows)
	if q.Range != nil {
		from, to := q.Range.From, q.Range.To
		if from > total {
			from = total
		}
		if to > total {
			to = total
		}
		rows = rows[from:to]
	}

	recs := make([]core.Record, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, r.data.Clone())
	}
	if !q.Count {
		total = 0
	}
	return recs, total, nil
}

func (db *DB) InsertRecord(_ context.Context, table string, rec core.Record) (core.Record, error) {
	db.record.mutex.Lock()
	defer db.record.mutex.Unlock()

	id := baas.FormatValue(rec["id"])
	rows := db.record.rows(table)
	if _, ok := rows[id]; ok {
		return nil, baas.ErrDuplicateKey
	}
	db.record.seq++
	rows[id] = &row{seq: db.record.seq, data: rec.Clone()}
	return rec.Clone(), nil
}

func (db *DB) UpdateRecords(_ context.Context, table string, filters []core.Filter, rec core.Record) ([]core.Record, error) {
	db.record.mutex.Lock()
	defer db.record.mutex.Unlock()

	rows := db.record.filter(table, filters)
	recs := make([]core.Record, 0, len(rows))
	for _, r := range rows {
		data := r.data.Clone()
		for k, v := range rec {
			data[k] = v
		}
		r.data = data
		recs = append(recs, data.Clone())
	}
	return recs, nil
}

func (db *DB) DeleteRecords(_ context.Context, table string, filters []core.Filter) ([]core.Record, error) {
	db.record.mutex.Lock()
	defer db.record.mutex.Unlock()

	rows := db.record.filter(table, filters)
	all := db.record.rows(table)
	recs := make([]core.Record, 0, len(rows))
	for _, r := range rows {
		delete(all, baas.FormatValue(r.data["id"]))
		recs = append(recs, r.data.Clone())
	}
	return recs, nil
}
