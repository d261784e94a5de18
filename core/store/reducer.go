package store

import (
	"github.com/trezcool/smis/core/class"
	"github.com/trezcool/smis/core/student"
	"github.com/trezcool/smis/core/update"
)

// Reduce returns the state following a. It never modifies memory reachable from s.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case RequestStarted:
		s.Pending++
	case RequestFinished:
		if s.Pending > 0 {
			s.Pending--
		}
	case SetError:
		s.Err = a.Err

	case SetSession:
		s.Session = clonePtr(a.Session)
	case SetUser:
		s.CurrentUser = clonePtr(a.User)

	case SetClasses:
		s.Classes = cloneSlice(a.Classes)
	case AddClass:
		s.Classes = prepend(s.Classes, a.Class, classID)
	case ReplaceClass:
		s.Classes = replace(s.Classes, a.Class, classID)
	case RemoveClass:
		s.Classes = remove(s.Classes, a.ID, classID)

	case SetSelectedClass:
		s.SelectedClass = clonePtr(a.Class)
	case RefreshSelectedClass:
		if s.SelectedClass != nil && s.SelectedClass.ID == a.Class.ID {
			s.SelectedClass = clonePtr(&a.Class)
		}
	case ClearSelectedClass:
		if s.SelectedClass != nil && s.SelectedClass.ID == a.ID {
			s.SelectedClass = nil
		}

	case SetStudents:
		s.Students = cloneSlice(a.Students)
	case AddStudent:
		if inSelectedClass(s, a.Student.ClassID) {
			s.Students = prepend(s.Students, a.Student, studentID)
		}
	case ReplaceStudent:
		s.Students = replace(s.Students, a.Student, studentID)
	case RemoveStudent:
		s.Students = remove(s.Students, a.ID, studentID)

	case SetUpdates:
		s.Updates = cloneSlice(a.Updates)
	case AddUpdate:
		if inSelectedClass(s, a.Update.ClassID) {
			s.Updates = prepend(s.Updates, a.Update, updateID)
		}
	case ReplaceUpdate:
		s.Updates = replace(s.Updates, a.Update, updateID)
	case RemoveUpdate:
		s.Updates = remove(s.Updates, a.ID, updateID)

	case SetPagination:
		s.Pagination = a.Update.apply(s.Pagination)

	case Reset:
		return initialState(a.PageSize)
	}
	return s
}

func classID(c class.Class) string       { return c.ID }
func studentID(st student.Student) string { return st.ID }
func updateID(u update.Update) string     { return u.ID }

// inSelectedClass reports whether an item of classID belongs in the listings.
func inSelectedClass(s State, classID string) bool {
	return s.SelectedClass == nil || s.SelectedClass.ID == classID
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func cloneSlice[T any](items []T) []T {
	c := make([]T, len(items))
	copy(c, items)
	return c
}

// prepend puts item first, dropping any other item with its id.
func prepend[T any](items []T, item T, id func(T) string) []T {
	res := make([]T, 0, len(items)+1)
	res = append(res, item)
	for _, it := range items {
		if id(it) != id(item) {
			res = append(res, it)
		}
	}
	return res
}

// replace swaps the item having item's id in place; other items keep their order.
func replace[T any](items []T, item T, id func(T) string) []T {
	res := make([]T, len(items))
	for i, it := range items {
		if id(it) == id(item) {
			it = item
		}
		res[i] = it
	}
	return res
}

func remove[T any](items []T, itemID string, id func(T) string) []T {
	res := make([]T, 0, len(items))
	for _, it := range items {
		if id(it) != itemID {
			res = append(res, it)
		}
	}
	return res
}
