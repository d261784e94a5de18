package baas_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/backend"
)

func TestRecordService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.signUp(t, "ada@school.test").ID
	grace := env.signUp(t, "grace@school.test").ID

	math, err := env.records.Insert(ctx, ada, "classes", core.Record{"name": "Math 101", "room": nil})
	require.NoError(t, err)
	assert.NotEmpty(t, math["id"])
	assert.Equal(t, ada, math["teacher_id"])
	assert.IsType(t, time.Time{}, math["created_at"])
	assert.Nil(t, math["updated_at"])
	assert.Contains(t, math, "description")

	_, err = env.records.Insert(ctx, grace, "classes", core.Record{"name": "Art"})
	require.NoError(t, err)

	t.Run("rows are scoped to their owner", func(t *testing.T) {
		recs, total, err := env.records.Select(ctx, ada, "classes", core.Query{Count: true})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, 1, total)
		assert.Equal(t, "Math 101", recs[0]["name"])

		recs, err = env.records.Update(ctx, grace, "classes", []core.Filter{{Field: "id", Value: math["id"].(string)}}, core.Record{"name": "Stolen"})
		require.NoError(t, err)
		assert.Empty(t, recs)

		recs, err = env.records.Delete(ctx, grace, "classes", []core.Filter{{Field: "id", Value: math["id"].(string)}})
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("insert for another owner", func(t *testing.T) {
		_, err := env.records.Insert(ctx, ada, "classes", core.Record{"name": "Bio", "teacher_id": grace})
		requireBackendError(t, err, http.StatusForbidden, "42501")
	})

	t.Run("update", func(t *testing.T) {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		recs, err := env.records.Update(ctx, ada, "classes", []core.Filter{{Field: "id", Value: math["id"].(string)}},
			core.Record{"name": "Math 102", "updated_at": now, "id": "ignored"})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "Math 102", recs[0]["name"])
		assert.Equal(t, math["id"], recs[0]["id"])
		assert.IsType(t, time.Time{}, recs[0]["updated_at"])
	})

	tests := []struct {
		name       string
		run        func() error
		wantStatus int
		wantCode   string
	}{
		{
			name: "unknown table",
			run: func() error {
				_, _, err := env.records.Select(ctx, ada, "teachers", core.Query{})
				return err
			},
			wantStatus: http.StatusNotFound, wantCode: backend.CodeUnknownTable,
		},
		{
			name: "unknown column",
			run: func() error {
				_, err := env.records.Insert(ctx, ada, "classes", core.Record{"name": "X", "colour": "red"})
				return err
			},
			wantStatus: http.StatusBadRequest, wantCode: backend.CodeUnknownColumn,
		},
		{
			name: "unknown ordering",
			run: func() error {
				_, _, err := env.records.Select(ctx, ada, "classes", core.Query{}.OrderBy("colour", true))
				return err
			},
			wantStatus: http.StatusBadRequest, wantCode: backend.CodeUnknownColumn,
		},
		{
			name: "missing required column",
			run: func() error {
				_, err := env.records.Insert(ctx, ada, "students", core.Record{"name": "Ada"})
				return err
			},
			wantStatus: http.StatusBadRequest, wantCode: "23502",
		},
		{
			name: "invalid uuid filter",
			run: func() error {
				_, _, err := env.records.Select(ctx, ada, "classes", core.Query{}.Where("id", "abc"))
				return err
			},
			wantStatus: http.StatusBadRequest, wantCode: "22P02",
		},
		{
			name: "invalid timestamp",
			run: func() error {
				_, err := env.records.Insert(ctx, ada, "classes", core.Record{"name": "X", "created_at": "yesterday"})
				return err
			},
			wantStatus: http.StatusBadRequest, wantCode: "22P02",
		},
		{
			name: "empty update",
			run: func() error {
				_, err := env.records.Update(ctx, ada, "classes", nil, core.Record{"id": "ignored"})
				return err
			},
			wantStatus: http.StatusBadRequest, wantCode: "PGRST102",
		},
		{
			name: "null required column on update",
			run: func() error {
				_, err := env.records.Update(ctx, ada, "classes", nil, core.Record{"name": nil})
				return err
			},
			wantStatus: http.StatusBadRequest, wantCode: "23502",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireBackendError(t, tt.run(), tt.wantStatus, tt.wantCode)
		})
	}
}

func TestRecordServiceUpdateDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.signUp(t, "ada@school.test").ID

	cls, err := env.records.Insert(ctx, ada, "classes", core.Record{"name": "Math 101"})
	require.NoError(t, err)

	upd, err := env.records.Insert(ctx, ada, "updates", core.Record{"text": "Exam on Friday", "class_id": cls["id"]})
	require.NoError(t, err)
	assert.Equal(t, "Academic", upd["category"])

	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	st, err := env.records.Insert(ctx, ada, "students", core.Record{"name": "Ada", "class_id": cls["id"], "created_at": created.Format(time.RFC3339Nano)})
	require.NoError(t, err)
	assert.Equal(t, created, st["created_at"])
	assert.Nil(t, st["identifier"])
}
