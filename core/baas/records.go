package baas

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/backend"
)

var (
	newID = uuid.NewString // mockable

	errOwnerMismatch = backend.NewError(http.StatusForbidden, "42501", "new row violates row-level security policy")
	errEmptyUpdate   = backend.NewError(http.StatusBadRequest, "PGRST102", "Empty or invalid json")
)

// RecordService serves the rows of Tables. Every call is scoped to the rows owned by the caller.
type RecordService struct {
	repo   RecordRepository
	logger core.Logger
}

func NewRecordService(repo RecordRepository, logger core.Logger) *RecordService {
	return &RecordService{repo: repo, logger: logger}
}

func (svc *RecordService) table(name string) (TableSchema, error) {
	t, ok := Tables[name]
	if !ok {
		return TableSchema{}, backend.NewError(http.StatusNotFound, backend.CodeUnknownTable,
			fmt.Sprintf(`relation "public.%s" does not exist`, name))
	}
	return t, nil
}

func (svc *RecordService) scope(t TableSchema, owner string, filters []core.Filter) ([]core.Filter, error) {
	filters, err := t.normalizeFilters(filters)
	if err != nil {
		return nil, err
	}
	if t.OwnerColumn != "" {
		filters = append(filters, core.Filter{Field: t.OwnerColumn, Value: owner})
	}
	return filters, nil
}

// Select returns the rows matching q and, when q.Count is set, how many rows match its filters.
func (svc *RecordService) Select(ctx context.Context, owner, table string, q core.Query) ([]core.Record, int, error) {
	t, err := svc.table(table)
	if err != nil {
		return nil, 0, err
	}
	if err = t.checkOrderings(q.Orderings); err != nil {
		return nil, 0, err
	}
	if q.Filters, err = svc.scope(t, owner, q.Filters); err != nil {
		return nil, 0, err
	}
	if q.Range != nil && (q.Range.From < 0 || q.Range.To < q.Range.From) {
		return nil, 0, backend.NewError(http.StatusRequestedRangeNotSatisfiable, "PGRST103", "Requested range not satisfiable")
	}

	recs, total, err := svc.repo.SelectRecords(ctx, t.Name, q)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "selecting %s", t.Name)
	}
	return recs, total, nil
}

// Insert stores rec on behalf of owner and returns the stored row.
func (svc *RecordService) Insert(ctx context.Context, owner, table string, rec core.Record) (core.Record, error) {
	t, err := svc.table(table)
	if err != nil {
		return nil, err
	}
	if rec, err = t.normalize(rec); err != nil {
		return nil, err
	}
	if t.OwnerColumn != "" {
		if v, ok := rec[t.OwnerColumn]; ok && v != nil && v != owner {
			return nil, errOwnerMismatch
		}
		rec[t.OwnerColumn] = owner
	}
	if rec, err = t.complete(rec, NowFunc()); err != nil {
		return nil, err
	}

	stored, err := svc.repo.InsertRecord(ctx, t.Name, rec)
	if err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return nil, backend.NewError(http.StatusConflict, "23505",
				fmt.Sprintf(`duplicate key value violates unique constraint "%s_pkey"`, t.Name))
		}
		return nil, errors.Wrapf(err, "inserting into %s", t.Name)
	}
	return stored, nil
}

// Update applies rec to the owned rows matching filters and returns them.
func (svc *RecordService) Update(ctx context.Context, owner, table string, filters []core.Filter, rec core.Record) ([]core.Record, error) {
	t, err := svc.table(table)
	if err != nil {
		return nil, err
	}
	rec = rec.Clone()
	delete(rec, "id")
	if rec, err = t.normalize(rec); err != nil {
		return nil, err
	}
	if t.OwnerColumn != "" {
		if v, ok := rec[t.OwnerColumn]; ok && v != owner {
			return nil, errOwnerMismatch
		}
		delete(rec, t.OwnerColumn)
	}
	if len(rec) == 0 {
		return nil, errEmptyUpdate
	}
	for name, v := range rec {
		if col, _ := t.Column(name); col.NotNull && v == nil {
			return nil, backend.NewError(http.StatusBadRequest, "23502",
				fmt.Sprintf(`null value in column "%s" of relation "%s" violates not-null constraint`, name, t.Name))
		}
	}
	if filters, err = svc.scope(t, owner, filters); err != nil {
		return nil, err
	}

	recs, err := svc.repo.UpdateRecords(ctx, t.Name, filters, rec)
	if err != nil {
		return nil, errors.Wrapf(err, "updating %s", t.Name)
	}
	return recs, nil
}

// Delete removes the owned rows matching filters and returns them.
func (svc *RecordService) Delete(ctx context.Context, owner, table string, filters []core.Filter) ([]core.Record, error) {
	t, err := svc.table(table)
	if err != nil {
		return nil, err
	}
	if filters, err = svc.scope(t, owner, filters); err != nil {
		return nil, err
	}

	recs, err := svc.repo.DeleteRecords(ctx, t.Name, filters)
	if err != nil {
		return nil, errors.Wrapf(err, "deleting from %s", t.Name)
	}
	svc.logger.Debug("records deleted", map[string]interface{}{"table": t.Name, "owner": owner, "count": len(recs)})
	return recs, nil
}
