// Package backendtest provides a Backend for tests: the in-process emulator over an
// in-memory database, with per-operation call counters, injected failures and hooks.
package backendtest

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/backend"
	"github.com/trezcool/smis/core/class"
	"github.com/trezcool/smis/core/student"
	"github.com/trezcool/smis/core/update"
	"github.com/trezcool/smis/core/user"
	localsvc "github.com/trezcool/smis/services/local"
)

// Operations
const (
	OpSignIn         = "auth.signin"
	OpSignUp         = "auth.signup"
	OpSignOut        = "auth.signout"
	OpGetUser        = "auth.getuser"
	OpRestoreSession = "auth.restore"
	OpUpdateUser     = "auth.updateuser"
	OpResetPassword  = "auth.reset"
	OpUpload         = "storage.upload"
	OpRemove         = "storage.remove"
)

// TableOp names an operation on a table, e.g. TableOp(class.Table, "insert").
func TableOp(table, op string) string { return table + "." + op }

type Backend struct {
	next *localsvc.Backend

	mu     sync.Mutex
	calls  map[string]int
	faults map[string]error
	hooks  map[string]func(ctx context.Context)
}

var _ backend.Backend = (*Backend)(nil) // interface compliance check

// New returns a Backend with an empty database. Passwords are checked without the complexity rule.
func New(t testing.TB) *Backend {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Emulator.StrictPasswords = false
	next, err := localsvc.NewInMemory(conf, nil, core.NopLogger)
	require.NoError(t, err)
	return &Backend{
		next:   next,
		calls:  make(map[string]int),
		faults: make(map[string]error),
		hooks:  make(map[string]func(ctx context.Context)),
	}
}

// Fail makes every following call of op fail with err; a nil err clears the fault.
func (b *Backend) Fail(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.faults, op)
		return
	}
	b.faults[op] = err
}

// Hook runs fn at the start of every following call of op, before the call reaches the database.
// A call whose ctx is done once fn returns fails with ctx.Err().
func (b *Backend) Hook(op string, fn func(ctx context.Context)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn == nil {
		delete(b.hooks, op)
		return
	}
	b.hooks[op] = fn
}

// Calls returns how many times op was called.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// TotalCalls returns how many calls were made, all operations included.
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int
	for _, c := range b.calls {
		n += c
	}
	return n
}

func (b *Backend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = make(map[string]int)
}

func (b *Backend) call(ctx context.Context, op string) error {
	b.mu.Lock()
	b.calls[op]++
	err, hook := b.faults[op], b.hooks[op]
	b.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if err == nil {
		err = ctx.Err()
	}
	return err
}

// SeedUser signs up an account and returns it; the Backend stays signed out.
func (b *Backend) SeedUser(t testing.TB, email, password string) user.User {
	t.Helper()
	usr, err := b.next.Auth().SignUp(context.Background(), user.NewUser{Email: email, Password: password})
	require.NoError(t, err)
	return usr
}

func (b *Backend) Auth() backend.AuthService { return authService{b: b, next: b.next.Auth()} }
func (b *Backend) Storage() backend.Storage  { return storage{b: b, next: b.next.Storage()} }

func (b *Backend) Classes() backend.Table[class.Class] {
	return table[class.Class]{b: b, name: class.Table, next: b.next.Classes()}
}

func (b *Backend) Students() backend.Table[student.Student] {
	return table[student.Student]{b: b, name: student.Table, next: b.next.Students()}
}

func (b *Backend) Updates() backend.Table[update.Update] {
	return table[update.Update]{b: b, name: update.Table, next: b.next.Updates()}
}

type authService struct {
	b    *Backend
	next backend.AuthService
}

func (svc authService) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	if err := svc.b.call(ctx, OpSignIn); err != nil {
		return nil, err
	}
	return svc.next.SignIn(ctx, email, password)
}

func (svc authService) SignUp(ctx context.Context, nu user.NewUser) (user.User, error) {
	if err := svc.b.call(ctx, OpSignUp); err != nil {
		return user.User{}, err
	}
	return svc.next.SignUp(ctx, nu)
}

func (svc authService) SignOut(ctx context.Context) error {
	if err := svc.b.call(ctx, OpSignOut); err != nil {
		return err
	}
	return svc.next.SignOut(ctx)
}

func (svc authService) GetUser(ctx context.Context) (user.User, error) {
	if err := svc.b.call(ctx, OpGetUser); err != nil {
		return user.User{}, err
	}
	return svc.next.GetUser(ctx)
}

func (svc authService) RestoreSession(ctx context.Context, accessToken string) (*backend.Session, error) {
	if err := svc.b.call(ctx, OpRestoreSession); err != nil {
		return nil, err
	}
	return svc.next.RestoreSession(ctx, accessToken)
}

func (svc authService) UpdateUser(ctx context.Context, attrs user.Attributes) (user.User, error) {
	if err := svc.b.call(ctx, OpUpdateUser); err != nil {
		return user.User{}, err
	}
	return svc.next.UpdateUser(ctx, attrs)
}

func (svc authService) ResetPasswordForEmail(ctx context.Context, email string) error {
	if err := svc.b.call(ctx, OpResetPassword); err != nil {
		return err
	}
	return svc.next.ResetPasswordForEmail(ctx, email)
}

type table[T any] struct {
	b    *Backend
	name string
	next backend.Table[T]
}

func (t table[T]) Select(ctx context.Context, q core.Query) (backend.Page[T], error) {
	if err := t.b.call(ctx, TableOp(t.name, "select")); err != nil {
		return backend.Page[T]{}, err
	}
	return t.next.Select(ctx, q)
}

func (t table[T]) Get(ctx context.Context, id string) (T, error) {
	if err := t.b.call(ctx, TableOp(t.name, "get")); err != nil {
		var zero T
		return zero, err
	}
	return t.next.Get(ctx, id)
}

func (t table[T]) Insert(ctx context.Context, rec core.Record) (T, error) {
	if err := t.b.call(ctx, TableOp(t.name, "insert")); err != nil {
		var zero T
		return zero, err
	}
	return t.next.Insert(ctx, rec)
}

func (t table[T]) Update(ctx context.Context, id string, rec core.Record) (T, error) {
	if err := t.b.call(ctx, TableOp(t.name, "update")); err != nil {
		var zero T
		return zero, err
	}
	return t.next.Update(ctx, id, rec)
}

func (t table[T]) Delete(ctx context.Context, id string) error {
	if err := t.b.call(ctx, TableOp(t.name, "delete")); err != nil {
		return err
	}
	return t.next.Delete(ctx, id)
}

type storage struct {
	b    *Backend
	next backend.Storage
}

func (s storage) Upload(ctx context.Context, bucket, path, contentType string, body io.Reader, upsert bool) (string, error) {
	if err := s.b.call(ctx, OpUpload); err != nil {
		return "", err
	}
	return s.next.Upload(ctx, bucket, path, contentType, body, upsert)
}

func (s storage) Remove(ctx context.Context, bucket string, paths ...string) error {
	if err := s.b.call(ctx, OpRemove); err != nil {
		return err
	}
	return s.next.Remove(ctx, bucket, paths...)
}

func (s storage) PublicURL(bucket, path string) string {
	return s.next.PublicURL(bucket, path)
}
