package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/update"
)

const entityUpdate = "update"

// FetchUpdates replaces the updates with the ones posted to classID, newest first.
func (s *Store) FetchUpdates(ctx context.Context, classID string) ([]update.Update, error) {
	gen, done := s.begin()
	defer done()

	if _, ok := s.principal(); !ok {
		return nil, s.fail(gen, KindAuth, entityUpdate, ErrUnauthenticated)
	}
	if classID == "" {
		return nil, s.fail(gen, KindFetch, entityUpdate, ErrNoClassSelected)
	}

	q := core.Query{}.Where("class_id", classID).OrderBy("created_at", false)
	updates, err := share(ctx, s, gen, "updates.select", q, func(ctx context.Context) ([]update.Update, error) {
		page, err := s.backend.Updates().Select(ctx, q)
		if err != nil {
			return nil, s.fail(gen, KindFetch, entityUpdate, errors.WithStack(err))
		}
		s.dispatchFrom(gen, SetUpdates{Updates: page.Rows})
		return page.Rows, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneSlice(updates), nil
}

// AddUpdate posts an update to the selected class and puts it first.
func (s *Store) AddUpdate(ctx context.Context, nu update.NewUpdate) (update.Update, error) {
	gen, done := s.begin()
	defer done()

	_, st := s.snapshot()
	if st.CurrentUser == nil {
		return update.Update{}, s.fail(gen, KindAuth, entityUpdate, ErrUnauthenticated)
	}
	if st.SelectedClass == nil {
		return update.Update{}, s.fail(gen, KindCreate, entityUpdate, ErrNoClassSelected)
	}
	nu.Clean()
	if err := s.check(&nu); err != nil {
		return update.Update{}, s.fail(gen, KindCreate, entityUpdate, err)
	}

	classID, teacherID := st.SelectedClass.ID, st.CurrentUser.ID
	key := struct {
		ClassID string
		Update  update.NewUpdate
	}{classID, nu}
	return share(ctx, s, gen, "updates.insert", key, func(ctx context.Context) (update.Update, error) {
		upd, err := s.backend.Updates().Insert(ctx, nu.Record(classID, teacherID, s.nowUTC()))
		if err != nil {
			return update.Update{}, s.fail(gen, KindCreate, entityUpdate, errors.WithStack(err))
		}
		s.dispatchFrom(gen, AddUpdate{Update: upd})
		s.notifier.Success("Update added successfully!")
		return upd, nil
	})
}

func (s *Store) EditUpdate(ctx context.Context, id string, changes update.Changes) (update.Update, error) {
	gen, done := s.begin()
	defer done()

	if _, ok := s.principal(); !ok {
		return update.Update{}, s.fail(gen, KindAuth, entityUpdate, ErrUnauthenticated)
	}
	changes.Clean()
	if err := s.check(&changes); err != nil {
		return update.Update{}, s.fail(gen, KindUpdate, entityUpdate, err)
	}

	key := struct {
		ID      string
		Changes update.Changes
	}{id, changes}
	return share(ctx, s, gen, "updates.update", key, func(ctx context.Context) (update.Update, error) {
		upd, err := s.backend.Updates().Update(ctx, id, changes.Record(s.nowUTC()))
		if err != nil {
			return update.Update{}, s.fail(gen, KindUpdate, entityUpdate, errors.WithStack(err))
		}
		s.dispatchFrom(gen, ReplaceUpdate{Update: upd})
		s.notifier.Success("Update edited successfully!")
		return upd, nil
	})
}

func (s *Store) DeleteUpdate(ctx context.Context, id string) error {
	gen, done := s.begin()
	defer done()

	if _, ok := s.principal(); !ok {
		return s.fail(gen, KindAuth, entityUpdate, ErrUnauthenticated)
	}

	_, err := share(ctx, s, gen, "updates.delete", id, func(ctx context.Context) (struct{}, error) {
		if err := s.backend.Updates().Delete(ctx, id); err != nil {
			return struct{}{}, s.fail(gen, KindDelete, entityUpdate, errors.WithStack(err))
		}
		s.dispatchFrom(gen, RemoveUpdate{ID: id})
		s.notifier.Success("Update deleted successfully!")
		return struct{}{}, nil
	})
	return err
}

// GetUpdateByID returns the update from the listing, or else from the backend.
func (s *Store) GetUpdateByID(ctx context.Context, id string) (update.Update, error) {
	return getByID(ctx, s, entityUpdate, id,
		func(st State) []update.Update { return st.Updates },
		updateID,
		s.backend.Updates())
}
