package store

import (
	"github.com/trezcool/smis/core/backend"
	"github.com/trezcool/smis/core/class"
	"github.com/trezcool/smis/core/student"
	"github.com/trezcool/smis/core/update"
	"github.com/trezcool/smis/core/user"
)

// Action is a state transition applied by Reduce.
type Action interface {
	isAction()
}

type (
	RequestStarted  struct{}
	RequestFinished struct{}

	SetError struct{ Err error }

	SetSession struct{ Session *backend.Session }
	SetUser    struct{ User *user.User }

	SetClasses   struct{ Classes []class.Class }
	AddClass     struct{ Class class.Class }
	ReplaceClass struct{ Class class.Class }
	RemoveClass  struct{ ID string }

	SetSelectedClass struct{ Class *class.Class }
	// RefreshSelectedClass replaces the selection only if it has the same id.
	RefreshSelectedClass struct{ Class class.Class }
	// ClearSelectedClass clears the selection only if it has the id.
	ClearSelectedClass struct{ ID string }

	SetStudents    struct{ Students []student.Student }
	AddStudent     struct{ Student student.Student }
	ReplaceStudent struct{ Student student.Student }
	RemoveStudent  struct{ ID string }

	SetUpdates    struct{ Updates []update.Update }
	AddUpdate     struct{ Update update.Update }
	ReplaceUpdate struct{ Update update.Update }
	RemoveUpdate  struct{ ID string }

	SetPagination struct{ Update PaginationUpdate }

	// Reset restores the initial snapshot; PageSize overrides the default page size.
	Reset struct{ PageSize int }
)

func (RequestStarted) isAction()       {}
func (RequestFinished) isAction()      {}
func (SetError) isAction()             {}
func (SetSession) isAction()           {}
func (SetUser) isAction()              {}
func (SetClasses) isAction()           {}
func (AddClass) isAction()             {}
func (ReplaceClass) isAction()         {}
func (RemoveClass) isAction()          {}
func (SetSelectedClass) isAction()     {}
func (RefreshSelectedClass) isAction() {}
func (ClearSelectedClass) isAction()   {}
func (SetStudents) isAction()          {}
func (AddStudent) isAction()           {}
func (ReplaceStudent) isAction()       {}
func (RemoveStudent) isAction()        {}
func (SetUpdates) isAction()           {}
func (AddUpdate) isAction()            {}
func (ReplaceUpdate) isAction()        {}
func (RemoveUpdate) isAction()         {}
func (SetPagination) isAction()        {}
func (Reset) isAction()                {}
