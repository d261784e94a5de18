package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/class"
)

const entityClass = "class"

// FetchClasses replaces the classes with the principal's, newest first.
func (s *Store) FetchClasses(ctx context.Context) ([]class.Class, error) {
	gen, done := s.begin()
	defer done()

	usr, ok := s.principal()
	if !ok {
		return nil, s.fail(gen, KindAuth, entityClass, ErrUnauthenticated)
	}

	q := core.Query{}.Where("teacher_id", usr.ID).OrderBy("created_at", false)
	classes, err := share(ctx, s, gen, "classes.select", q, func(ctx context.Context) ([]class.Class, error) {
		page, err := s.backend.Classes().Select(ctx, q)
		if err != nil {
			return nil, s.fail(gen, KindFetch, entityClass, errors.WithStack(err))
		}
		s.dispatchFrom(gen, SetClasses{Classes: page.Rows})
		return page.Rows, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneSlice(classes), nil
}

// AddClass creates a class owned by the principal and puts it first.
func (s *Store) AddClass(ctx context.Context, nc class.NewClass) (class.Class, error) {
	gen, done := s.begin()
	defer done()

	usr, ok := s.principal()
	if !ok {
		return class.Class{}, s.fail(gen, KindAuth, entityClass, ErrUnauthenticated)
	}
	nc.Clean()
	if err := s.check(&nc); err != nil {
		return class.Class{}, s.fail(gen, KindCreate, entityClass, err)
	}

	rec := nc.Record(usr.ID)
	return share(ctx, s, gen, "classes.insert", rec, func(ctx context.Context) (class.Class, error) {
		c, err := s.backend.Classes().Insert(ctx, rec)
		if err != nil {
			return class.Class{}, s.fail(gen, KindCreate, entityClass, errors.WithStack(err))
		}
		s.dispatchFrom(gen, AddClass{Class: c})
		s.notifier.Success(fmt.Sprintf("Class %q created successfully!", c.Name))
		return c, nil
	})
}

// UpdateClass applies changes to a class; the selection is refreshed along with the listing.
func (s *Store) UpdateClass(ctx context.Context, id string, changes class.Changes) (class.Class, error) {
	gen, done := s.begin()
	defer done()

	if _, ok := s.principal(); !ok {
		return class.Class{}, s.fail(gen, KindAuth, entityClass, ErrUnauthenticated)
	}
	changes.Clean()
	if err := s.check(&changes); err != nil {
		return class.Class{}, s.fail(gen, KindUpdate, entityClass, err)
	}

	key := struct {
		ID      string
		Changes class.Changes
	}{id, changes}
	return share(ctx, s, gen, "classes.update", key, func(ctx context.Context) (class.Class, error) {
		c, err := s.backend.Classes().Update(ctx, id, changes.Record(s.nowUTC()))
		if err != nil {
			return class.Class{}, s.fail(gen, KindUpdate, entityClass, errors.WithStack(err))
		}
		s.dispatchFrom(gen, ReplaceClass{Class: c}, RefreshSelectedClass{Class: c})
		s.notifier.Success(fmt.Sprintf("Class %q updated successfully!", c.Name))
		return c, nil
	})
}

// DeleteClass removes a class. Deleting the selected class clears the selection and its listings.
func (s *Store) DeleteClass(ctx context.Context, id string) error {
	gen, done := s.begin()
	defer done()

	if _, ok := s.principal(); !ok {
		return s.fail(gen, KindAuth, entityClass, ErrUnauthenticated)
	}

	_, err := share(ctx, s, gen, "classes.delete", id, func(ctx context.Context) (struct{}, error) {
		if err := s.backend.Classes().Delete(ctx, id); err != nil {
			return struct{}{}, s.fail(gen, KindDelete, entityClass, errors.WithStack(err))
		}
		s.dispatchFunc(gen, func(st State) []Action {
			actions := []Action{RemoveClass{ID: id}}
			if st.SelectedClass != nil && st.SelectedClass.ID == id {
				actions = append(actions, ClearSelectedClass{ID: id}, SetStudents{}, SetUpdates{}, resetCursor(st.Pagination.PageSize))
			}
			return actions
		})
		s.notifier.Success("Class deleted successfully!")
		return struct{}{}, nil
	})
	return err
}

// GetClassByID returns the class from the listing, or else from the backend.
func (s *Store) GetClassByID(ctx context.Context, id string) (class.Class, error) {
	return getByID(ctx, s, entityClass, id,
		func(st State) []class.Class { return st.Classes },
		classID,
		s.backend.Classes())
}

// resetCursor goes back to an empty first page.
func resetCursor(pageSize int) SetPagination {
	page, total := DefaultPage, 0
	return SetPagination{Update: PaginationUpdate{Page: &page, PageSize: &pageSize, TotalItems: &total}}
}
