package store

import (
	"github.com/pkg/errors"
)

// Kind classifies store failures.
type Kind int

// Kinds
const (
	KindUnknown Kind = iota
	KindAuth
	KindFetch
	KindCreate
	KindUpdate
	KindDelete
	KindNotFound
)

var kindNames = map[Kind]string{
	KindUnknown:  "unknown",
	KindAuth:     "auth",
	KindFetch:    "fetch",
	KindCreate:   "create",
	KindUpdate:   "update",
	KindDelete:   "delete",
	KindNotFound: "not found",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

var (
	ErrUnauthenticated = errors.New("you must be logged in")
	ErrNoClassSelected = errors.New("no class selected")
)

// Error is returned by every store operation that fails.
type Error struct {
	Kind   Kind
	Entity string // class, student, update, user, session
	Err    error
}

func newError(kind Kind, entity string, err error) *Error {
	return &Error{Kind: kind, Entity: entity, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Entity != "" {
		msg += " " + e.Entity
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Cause lets errors.Cause reach the backend failure.
func (e *Error) Cause() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var sErr *Error
	if errors.As(err, &sErr) {
		return sErr.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
