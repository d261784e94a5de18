package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/class"
	"github.com/trezcool/smis/core/student"
)

const entityStudent = "student"

// SetSelectedClass focuses c and rewinds the cursor to its first page. The listings of a
// previously selected class are cleared.
func (s *Store) SetSelectedClass(c class.Class) {
	s.apply(nil, func(st State) []Action {
		actions := []Action{SetSelectedClass{Class: &c}}
		if st.SelectedClass == nil || st.SelectedClass.ID != c.ID {
			actions = append(actions, SetStudents{}, SetUpdates{})
		}
		return append(actions, resetCursor(s.pageSize))
	})
}

// SelectClass focuses c, then loads its first page of students.
func (s *Store) SelectClass(ctx context.Context, c class.Class) ([]student.Student, error) {
	s.SetSelectedClass(c)
	return s.FetchStudents(ctx, c.ID, DefaultPage, s.pageSize)
}

// FetchStudents loads the students of classID in the half-open window
// [(page-1)*pageSize, page*pageSize), newest first, along with their exact count.
// The listing and the cursor change together.
func (s *Store) FetchStudents(ctx context.Context, classID string, page, pageSize int) ([]student.Student, error) {
	gen, done := s.begin()
	defer done()

	if _, ok := s.principal(); !ok {
		return nil, s.fail(gen, KindAuth, entityStudent, ErrUnauthenticated)
	}
	if classID == "" {
		return nil, s.fail(gen, KindFetch, entityStudent, ErrNoClassSelected)
	}
	if page < 1 {
		page = DefaultPage
	}
	if pageSize < 1 {
		pageSize = s.pageSize
	}

	q := core.Query{}.Where("class_id", classID).OrderBy("created_at", false).Paginate(page, pageSize)
	students, err := share(ctx, s, gen, "students.select", q, func(ctx context.Context) ([]student.Student, error) {
		res, err := s.backend.Students().Select(ctx, q)
		if err != nil {
			return nil, s.fail(gen, KindFetch, entityStudent, errors.WithStack(err))
		}
		total := res.Total
		s.dispatchFrom(gen,
			SetStudents{Students: res.Rows},
			SetPagination{Update: PaginationUpdate{Page: &page, PageSize: &pageSize, TotalItems: &total}},
		)
		return res.Rows, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneSlice(students), nil
}

// UpdatePagination merges the cursor fields without fetching. Values out of range are ignored.
func (s *Store) UpdatePagination(pu PaginationUpdate) {
	if pu.Page != nil && *pu.Page < 1 {
		pu.Page = nil
	}
	if pu.PageSize != nil && *pu.PageSize < 1 {
		pu.PageSize = nil
	}
	if pu.TotalItems != nil && *pu.TotalItems < 0 {
		pu.TotalItems = nil
	}
	s.Dispatch(SetPagination{Update: pu})
}

// AddStudent enrolls a student in the selected class and puts it first.
func (s *Store) AddStudent(ctx context.Context, ns student.NewStudent) (student.Student, error) {
	gen, done := s.begin()
	defer done()

	_, st := s.snapshot()
	if st.CurrentUser == nil {
		return student.Student{}, s.fail(gen, KindAuth, entityStudent, ErrUnauthenticated)
	}
	if st.SelectedClass == nil {
		return student.Student{}, s.fail(gen, KindCreate, entityStudent, ErrNoClassSelected)
	}
	ns.Clean()
	if err := s.check(&ns); err != nil {
		return student.Student{}, s.fail(gen, KindCreate, entityStudent, err)
	}

	classID, teacherID := st.SelectedClass.ID, st.CurrentUser.ID
	key := struct {
		ClassID string
		Student student.NewStudent
	}{classID, ns}
	return share(ctx, s, gen, "students.insert", key, func(ctx context.Context) (student.Student, error) {
		stu, err := s.backend.Students().Insert(ctx, ns.Record(classID, teacherID, s.nowUTC()))
		if err != nil {
			return student.Student{}, s.fail(gen, KindCreate, entityStudent, errors.WithStack(err))
		}
		s.dispatchFunc(gen, func(st State) []Action {
			if !inSelectedClass(st, stu.ClassID) {
				return nil
			}
			total := st.Pagination.TotalItems + 1
			return []Action{
				AddStudent{Student: stu},
				SetPagination{Update: PaginationUpdate{TotalItems: &total}},
			}
		})
		s.notifier.Success(fmt.Sprintf("Student %q added successfully!", stu.Name))
		return stu, nil
	})
}

func (s *Store) UpdateStudent(ctx context.Context, id string, changes student.Changes) (student.Student, error) {
	gen, done := s.begin()
	defer done()

	if _, ok := s.principal(); !ok {
		return student.Student{}, s.fail(gen, KindAuth, entityStudent, ErrUnauthenticated)
	}
	changes.Clean()
	if err := s.check(&changes); err != nil {
		return student.Student{}, s.fail(gen, KindUpdate, entityStudent, err)
	}

	key := struct {
		ID      string
		Changes student.Changes
	}{id, changes}
	return share(ctx, s, gen, "students.update", key, func(ctx context.Context) (student.Student, error) {
		stu, err := s.backend.Students().Update(ctx, id, changes.Record(s.nowUTC()))
		if err != nil {
			return student.Student{}, s.fail(gen, KindUpdate, entityStudent, errors.WithStack(err))
		}
		s.dispatchFrom(gen, ReplaceStudent{Student: stu})
		s.notifier.Success(fmt.Sprintf("Student %q updated successfully!", stu.Name))
		return stu, nil
	})
}

func (s *Store) DeleteStudent(ctx context.Context, id string) error {
	gen, done := s.begin()
	defer done()

	if _, ok := s.principal(); !ok {
		return s.fail(gen, KindAuth, entityStudent, ErrUnauthenticated)
	}

	_, err := share(ctx, s, gen, "students.delete", id, func(ctx context.Context) (struct{}, error) {
		if err := s.backend.Students().Delete(ctx, id); err != nil {
			return struct{}{}, s.fail(gen, KindDelete, entityStudent, errors.WithStack(err))
		}
		s.dispatchFunc(gen, func(st State) []Action {
			for _, stu := range st.Students {
				if stu.ID == id {
					total := st.Pagination.TotalItems - 1
					if total < 0 {
						total = 0
					}
					return []Action{
						RemoveStudent{ID: id},
						SetPagination{Update: PaginationUpdate{TotalItems: &total}},
					}
				}
			}
			return nil
		})
		s.notifier.Success("Student removed successfully!")
		return struct{}{}, nil
	})
	return err
}

// GetStudentByID returns the student from the listing, or else from the backend.
func (s *Store) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	return getByID(ctx, s, entityStudent, id,
		func(st State) []student.Student { return st.Students },
		studentID,
		s.backend.Students())
}
