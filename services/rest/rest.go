// Package restsvc talks to the hosted backend over HTTP: /auth/v1 for sessions, /rest/v1 for tables
// and /storage/v1 for objects. It holds the session of the signed in user.
package restsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/backend"
	"github.com/trezcool/smis/core/class"
	"github.com/trezcool/smis/core/student"
	"github.com/trezcool/smis/core/update"
	"github.com/trezcool/smis/core/user"
)

const (
	mimeJSON   = "application/json"
	mimeObject = "application/vnd.pgrst.object+json"
)

type Backend struct {
	conf   core.BackendConfig
	client *http.Client
	logger core.Logger

	mu      sync.RWMutex
	session *backend.Session
}

var _ backend.Backend = (*Backend)(nil) // interface compliance check

func New(conf core.BackendConfig, logger core.Logger) (*Backend, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = core.NopLogger
	}
	conf.URL = strings.TrimRight(conf.URL, "/")
	return &Backend{
		conf:   conf,
		client: &http.Client{Timeout: conf.RequestTimeout},
		logger: logger,
	}, nil
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

// Session returns a copy of the held session, if any.
func (b *Backend) Session() *backend.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil {
		return nil
	}
	sess := *b.session
	return &sess
}

func (b *Backend) setSession(sess *backend.Session) {
	b.mu.Lock()
	b.session = sess
	b.mu.Unlock()
}

func (b *Backend) token() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil {
		return ""
	}
	return b.session.AccessToken
}

type call struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   interface{} // JSON encoded, unless it is an io.Reader
	token  string      // overrides the held session
}

// do sends c and decodes a successful response into dest. Failures are *backend.Error.
func (b *Backend) do(ctx context.Context, c call, dest interface{}) (http.Header, error) {
	u := b.conf.URL + c.path
	if len(c.query) > 0 {
		u += "?" + c.query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch v := c.body.(type) {
	case nil:
	case io.Reader:
		body = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, "encoding request")
		}
		body = bytes.NewReader(data)
		contentType = mimeJSON
	}

	req, err := http.NewRequestWithContext(ctx, c.method, u, body)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	token := c.token
	if token == "" {
		token = b.token()
	}
	if token == "" {
		token = b.conf.AnonKey
	}
	req.Header.Set("apikey", b.conf.AnonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", mimeJSON)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vals := range c.header {
		req.Header[k] = vals
	}

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", c.method, c.path)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s %s", c.method, c.path)
	}
	b.logger.Debug("backend request", map[string]interface{}{
		"method":   c.method,
		"path":     c.path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	})

	if resp.StatusCode >= http.StatusBadRequest {
		return resp.Header, backend.DecodeError(resp.StatusCode, data)
	}
	if dest != nil && len(bytes.TrimSpace(data)) > 0 {
		if err = json.Unmarshal(data, dest); err != nil {
			return resp.Header, errors.Wrapf(err, "decoding %s %s", c.method, c.path)
		}
	}
	return resp.Header, nil
}

type authService struct{ b *Backend }

func (svc authService) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	var sj backend.SessionJSON
	_, err := svc.b.do(ctx, call{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	}, &sj)
	if err != nil {
		return nil, err
	}
	sess := sj.Decode()
	svc.b.setSession(sess)
	return sess, nil
}

// SignUp accepts both the user and the session responses: the latter when the account is confirmed right away.
func (svc authService) SignUp(ctx context.Context, nu user.NewUser) (user.User, error) {
	var raw json.RawMessage
	_, err := svc.b.do(ctx, call{method: http.MethodPost, path: "/auth/v1/signup", body: backend.NewSignUpJSON(nu)}, &raw)
	if err != nil {
		return user.User{}, err
	}
	var wrapped struct {
		User *backend.UserJSON `json:"user"`
	}
	if err = json.Unmarshal(raw, &wrapped); err == nil && wrapped.User != nil && wrapped.User.ID != "" {
		return wrapped.User.User(), nil
	}
	var uj backend.UserJSON
	if err = json.Unmarshal(raw, &uj); err != nil {
		return user.User{}, errors.Wrap(err, "decoding signup response")
	}
	return uj.User(), nil
}

// SignOut forgets the session even when the backend fails. An expired or revoked session is already signed out.
func (svc authService) SignOut(ctx context.Context) error {
	token := svc.b.token()
	defer svc.b.setSession(nil)
	if token == "" {
		return nil
	}
	_, err := svc.b.do(ctx, call{method: http.MethodPost, path: "/auth/v1/logout", token: token}, nil)
	if backend.StatusOf(err) == http.StatusUnauthorized {
		return nil
	}
	return err
}

func (svc authService) GetUser(ctx context.Context) (user.User, error) {
	var uj backend.UserJSON
	if _, err := svc.b.do(ctx, call{method: http.MethodGet, path: "/auth/v1/user"}, &uj); err != nil {
		return user.User{}, err
	}
	return uj.User(), nil
}

// RestoreSession checks the token against the backend; its expiry is read from the (unverified) claims.
func (svc authService) RestoreSession(ctx context.Context, accessToken string) (*backend.Session, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return nil, backend.NewError(http.StatusUnauthorized, backend.CodeBadJWT, "invalid JWT: unable to parse")
	}

	var uj backend.UserJSON
	if _, err := svc.b.do(ctx, call{method: http.MethodGet, path: "/auth/v1/user", token: accessToken}, &uj); err != nil {
		return nil, err
	}
	sess := &backend.Session{
		AccessToken:  accessToken,
		TokenType:    "bearer",
		RefreshToken: claims.ID,
		User:         uj.User(),
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Unix()
		sess.ExpiresIn = int(time.Until(claims.ExpiresAt.Time).Seconds())
	}
	svc.b.setSession(sess)
	return sess, nil
}

func (svc authService) UpdateUser(ctx context.Context, attrs user.Attributes) (user.User, error) {
	var uj backend.UserJSON
	_, err := svc.b.do(ctx, call{method: http.MethodPut, path: "/auth/v1/user", body: backend.NewUserAttributesJSON(attrs)}, &uj)
	if err != nil {
		return user.User{}, err
	}
	usr := uj.User()

	svc.b.mu.Lock()
	if svc.b.session != nil && svc.b.session.User.ID == usr.ID {
		sess := *svc.b.session
		sess.User = usr
		svc.b.session = &sess
	}
	svc.b.mu.Unlock()
	return usr, nil
}

func (svc authService) ResetPasswordForEmail(ctx context.Context, email string) error {
	_, err := svc.b.do(ctx, call{method: http.MethodPost, path: "/auth/v1/recover", body: map[string]string{"email": email}}, nil)
	return err
}

type table[T any] struct {
	b    *Backend
	name string
}

func (t table[T]) path() string {
	return "/rest/v1/" + url.PathEscape(t.name)
}

func byID(id string) url.Values {
	return url.Values{"id": {"eq." + id}}
}

// representation asks for the affected row as a single object.
func representation() http.Header {
	return http.Header{
		"Prefer": {"return=representation"},
		"Accept": {mimeObject},
	}
}

func (t table[T]) Select(ctx context.Context, q core.Query) (backend.Page[T], error) {
	params := make(url.Values)
	for _, f := range q.Filters {
		params.Add(f.Field, "eq."+f.Value)
	}
	if len(q.Orderings) > 0 {
		ords := make([]string, 0, len(q.Orderings))
		for _, ord := range q.Orderings {
			direction := "desc"
			if ord.Ascending {
				direction = "asc"
			}
			ords = append(ords, ord.Field+"."+direction)
		}
		params.Set("order", strings.Join(ords, ","))
	}
	header := make(http.Header)
	if q.Range != nil {
		header.Set("Range-Unit", "items")
		header.Set("Range", strconv.Itoa(q.Range.From)+"-"+strconv.Itoa(q.Range.To-1))
	}
	if q.Count {
		header.Set("Prefer", "count=exact")
	}

	page := backend.Page[T]{Rows: []T{}}
	respHeader, err := t.b.do(ctx, call{method: http.MethodGet, path: t.path(), query: params, header: header}, &page.Rows)
	if q.Count && backend.StatusOf(err) == http.StatusRequestedRangeNotSatisfiable && respHeader != nil {
		// offset past the last row: an empty page of the counted total
		page.Total = parseTotal(respHeader.Get("Content-Range"))
		return page, nil
	}
	if err != nil {
		return backend.Page[T]{}, err
	}
	if page.Rows == nil {
		page.Rows = []T{}
	}
	if q.Count {
		page.Total = parseTotal(respHeader.Get("Content-Range"))
	}
	return page, nil
}

// parseTotal reads the count of "0-9/42"; an unknown total is 0.
func parseTotal(contentRange string) int {
	_, total, ok := strings.Cut(contentRange, "/")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0
	}
	return n
}

func (t table[T]) Get(ctx context.Context, id string) (T, error) {
	var row T
	_, err := t.b.do(ctx, call{
		method: http.MethodGet,
		path:   t.path(),
		query:  byID(id),
		header: http.Header{"Accept": {mimeObject}},
	}, &row)
	return row, err
}

func (t table[T]) Insert(ctx context.Context, rec core.Record) (T, error) {
	var row T
	_, err := t.b.do(ctx, call{method: http.MethodPost, path: t.path(), header: representation(), body: rec}, &row)
	return row, err
}

func (t table[T]) Update(ctx context.Context, id string, rec core.Record) (T, error) {
	var row T
	_, err := t.b.do(ctx, call{method: http.MethodPatch, path: t.path(), query: byID(id), header: representation(), body: rec}, &row)
	return row, err
}

func (t table[T]) Delete(ctx context.Context, id string) error {
	_, err := t.b.do(ctx, call{method: http.MethodDelete, path: t.path(), query: byID(id)}, nil)
	return err
}

type storageService struct{ b *Backend }

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func (svc storageService) Upload(ctx context.Context, bucket, path, contentType string, body io.Reader, upsert bool) (string, error) {
	header := make(http.Header)
	header.Set("x-upsert", strconv.FormatBool(upsert))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	_, err := svc.b.do(ctx, call{
		method: http.MethodPost,
		path:   "/storage/v1/object/" + url.PathEscape(bucket) + "/" + escapeKey(path),
		header: header,
		body:   body,
	}, nil)
	if err != nil {
		return "", err
	}
	return svc.PublicURL(bucket, path), nil
}

func (svc storageService) Remove(ctx context.Context, bucket string, paths ...string) error {
	_, err := svc.b.do(ctx, call{
		method: http.MethodDelete,
		path:   "/storage/v1/object/" + url.PathEscape(bucket),
		body:   map[string][]string{"prefixes": paths},
	}, nil)
	return err
}

func (svc storageService) PublicURL(bucket, path string) string {
	return backend.PublicURL(svc.b.conf.URL, bucket, path)
}
