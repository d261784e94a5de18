// Package localsvc serves the backend contract in-process from the emulator services,
// holding the session the way a remote client would.
package localsvc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/baas"
	"github.com/trezcool/smis/core/backend"
	"github.com/trezcool/smis/core/class"
	"github.com/trezcool/smis/core/student"
	"github.com/trezcool/smis/core/update"
	"github.com/trezcool/smis/core/user"
	inmemdb "github.com/trezcool/smis/storage/database/inmem"
)

var (
	errNoAuthorization = backend.NewError(http.StatusUnauthorized, backend.CodeNoAuthorization, "This endpoint requires a Bearer token")
	errNoRows          = backend.NewError(http.StatusNotAcceptable, backend.CodeNoRows, "JSON object requested, multiple (or no) rows returned")
)

type Backend struct {
	auth    *baas.AuthService
	records *baas.RecordService
	storage *baas.StorageService

	mu    sync.RWMutex
	token string
}

var _ backend.Backend = (*Backend)(nil) // interface compliance check

func New(auth *baas.AuthService, records *baas.RecordService, storage *baas.StorageService) *Backend {
	return &Backend{auth: auth, records: records, storage: storage}
}

func (b *Backend) Auth() backend.AuthService { return authService{b} }
func (b *Backend) Storage() backend.Storage  { return storageService{b} }

func (b *Backend) Classes() backend.Table[class.Class] {
	return table[class.Class]{b: b, name: class.Table}
}

func (b *Backend) Students() backend.Table[student.Student] {
	return table[student.Student]{b: b, name: student.Table}
}

func (b *Backend) Updates() backend.Table[update.Update] {
	return table[update.Update]{b: b, name: update.Table}
}

func (b *Backend) setToken(token string) {
	b.mu.Lock()
	b.token = token
	b.mu.Unlock()
}

func (b *Backend) getToken() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.token
}

// principal authenticates the held session.
func (b *Backend) principal(ctx context.Context) (*baas.Claims, user.User, error) {
	token := b.getToken()
	if token == "" {
		return nil, user.User{}, errNoAuthorization
	}
	return b.auth.Authenticate(ctx, token)
}

// convert round-trips v through JSON, as a remote response would be.
func convert(v interface{}, dest interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encoding response")
	}
	return errors.Wrap(json.Unmarshal(data, dest), "decoding response")
}

type authService struct{ b *Backend }

func (svc authService) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	sess, err := svc.b.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	svc.b.setToken(sess.AccessToken)
	return sess, nil
}

func (svc authService) SignUp(ctx context.Context, nu user.NewUser) (user.User, error) {
	return svc.b.auth.SignUp(ctx, nu)
}

// SignOut forgets the session even when the revocation fails.
func (svc authService) SignOut(ctx context.Context) error {
	defer svc.b.setToken("")
	claims, _, err := svc.b.principal(ctx)
	if err != nil {
		if errors.Is(err, errNoAuthorization) {
			return nil
		}
		return err
	}
	return svc.b.auth.SignOut(ctx, claims)
}

func (svc authService) GetUser(ctx context.Context) (user.User, error) {
	_, usr, err := svc.b.principal(ctx)
	return usr, err
}

func (svc authService) RestoreSession(ctx context.Context, accessToken string) (*backend.Session, error) {
	sess, err := svc.b.auth.Session(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	svc.b.setToken(accessToken)
	return sess, nil
}

func (svc authService) UpdateUser(ctx context.Context, attrs user.Attributes) (user.User, error) {
	_, usr, err := svc.b.principal(ctx)
	if err != nil {
		return user.User{}, err
	}
	return svc.b.auth.UpdateUser(ctx, usr.ID, attrs)
}

func (svc authService) ResetPasswordForEmail(ctx context.Context, email string) error {
	return svc.b.auth.Recover(ctx, email)
}

type table[T any] struct {
	b    *Backend
	name string
}

func (t table[T]) Select(ctx context.Context, q core.Query) (backend.Page[T], error) {
	_, usr, err := t.b.principal(ctx)
	if err != nil {
		return backend.Page[T]{}, err
	}
	recs, total, err := t.b.records.Select(ctx, usr.ID, t.name, q)
	if err != nil {
		return backend.Page[T]{}, err
	}
	page := backend.Page[T]{Rows: make([]T, 0, len(recs)), Total: total}
	if err = convert(recs, &page.Rows); err != nil {
		return backend.Page[T]{}, err
	}
	return page, nil
}

func (t table[T]) Get(ctx context.Context, id string) (T, error) {
	var row T
	page, err := t.Select(ctx, core.Query{}.Where("id", id))
	if err != nil {
		return row, err
	}
	if len(page.Rows) != 1 {
		return row, errNoRows
	}
	return page.Rows[0], nil
}

func (t table[T]) Insert(ctx context.Context, rec core.Record) (T, error) {
	var row T
	_, usr, err := t.b.principal(ctx)
	if err != nil {
		return row, err
	}
	stored, err := t.b.records.Insert(ctx, usr.ID, t.name, rec)
	if err != nil {
		return row, err
	}
	err = convert(stored, &row)
	return row, err
}

func (t table[T]) Update(ctx context.Context, id string, rec core.Record) (T, error) {
	var row T
	_, usr, err := t.b.principal(ctx)
	if err != nil {
		return row, err
	}
	recs, err := t.b.records.Update(ctx, usr.ID, t.name, []core.Filter{{Field: "id", Value: id}}, rec)
	if err != nil {
		return row, err
	}
	if len(recs) != 1 {
		return row, errNoRows
	}
	err = convert(recs[0], &row)
	return row, err
}

func (t table[T]) Delete(ctx context.Context, id string) error {
	_, usr, err := t.b.principal(ctx)
	if err != nil {
		return err
	}
	_, err = t.b.records.Delete(ctx, usr.ID, t.name, []core.Filter{{Field: "id", Value: id}})
	return err
}

type storageService struct{ b *Backend }

func (svc storageService) Upload(ctx context.Context, bucket, path, contentType string, body io.Reader, upsert bool) (string, error) {
	_, usr, err := svc.b.principal(ctx)
	if err != nil {
		return "", err
	}
	if _, err = svc.b.storage.Upload(ctx, usr.ID, bucket, path, contentType, body, upsert); err != nil {
		return "", err
	}
	return svc.b.storage.PublicURL(bucket, path), nil
}

func (svc storageService) Remove(ctx context.Context, bucket string, paths ...string) error {
	_, usr, err := svc.b.principal(ctx)
	if err != nil {
		return err
	}
	_, err = svc.b.storage.Remove(ctx, usr.ID, bucket, paths)
	return err
}

func (svc storageService) PublicURL(bucket, path string) string {
	return svc.b.storage.PublicURL(bucket, path)
}

// NewInMemory wires the emulator services over a fresh in-memory database.
func NewInMemory(conf *core.Config, mailer core.EmailService, logger core.Logger) (*Backend, error) {
	db, err := inmemdb.Open()
	if err != nil {
		return nil, errors.Wrap(err, "opening in-memory database")
	}
	return New(
		baas.NewAuthService(conf, db, db, mailer, logger),
		baas.NewRecordService(db, logger),
		baas.NewStorageService(conf, db),
	), nil
}
