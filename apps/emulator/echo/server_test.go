package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/baas"
	"github.com/trezcool/smis/core/backend"
	emailsvc "github.com/trezcool/smis/services/email"
	inmemdb "github.com/trezcool/smis/storage/database/inmem"
)

const testPassword = "Xk9#mQ2!vL"

type (
	testEnv struct {
		conf   *core.Config
		server Server
	}

	request struct {
		method string
		path   string
		body   interface{} // []byte and string are sent as is, anything else is JSON encoded
		token  string
		header map[string]string
		noKey  bool
	}
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conf := core.NewTestConfig()
	db, err := inmemdb.Open()
	require.NoError(t, err)
	srv := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         core.NopLogger,
		Auth:           baas.NewAuthService(conf, db, db, emailsvc.NewConsoleServiceMock(conf), core.NopLogger),
		Records:        baas.NewRecordService(db, core.NopLogger),
		Storage:        baas.NewStorageService(conf, db),
		Registry:       prometheus.NewRegistry(),
		DisableReqLogs: true,
	})
	return &testEnv{conf: conf, server: srv}
}

func (env *testEnv) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	switch b := r.body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(b)
	case string:
		body = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(r.method, r.path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if !r.noKey {
		req.Header.Set(headerAPIKey, env.conf.Backend.AnonKey)
	}
	if r.token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+r.token)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (env *testEnv) signUp(t *testing.T, email string) backend.UserJSON {
	t.Helper()
	rec := env.do(t, request{method: http.MethodPost, path: "/auth/v1/signup", body: backend.SignUpJSON{
		Email: email, Password: testPassword, Data: backend.UserMetadata{Name: "Ada Lovelace"},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var uj backend.UserJSON
	decode(t, rec, &uj)
	return uj
}

func (env *testEnv) signIn(t *testing.T, email string) backend.SessionJSON {
	t.Helper()
	rec := env.do(t, request{method: http.MethodPost, path: "/auth/v1/token?grant_type=password",
		body: passwordGrant{Email: email, Password: testPassword}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sj backend.SessionJSON
	decode(t, rec, &sj)
	return sj
}

func TestHome(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, request{method: http.MethodGet, path: "/", noKey: true})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "emulator")
}

func TestAuthAPI(t *testing.T) {
	env := newTestEnv(t)

	usr := env.signUp(t, " Ada@School.test ")
	assert.Equal(t, "ada@school.test", usr.Email)
	assert.Equal(t, "Ada Lovelace", usr.UserMetadata.Name)
	assert.Equal(t, "teacher", usr.UserMetadata.Role)

	sess := env.signIn(t, "ada@school.test")
	require.NotEmpty(t, sess.AccessToken)
	assert.Equal(t, "bearer", sess.TokenType)
	assert.Equal(t, usr.ID, sess.User.ID)
	assert.NotNil(t, sess.User.LastSignInAt)

	tests := []struct {
		name     string
		req      request
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing api key",
			req:      request{method: http.MethodGet, path: "/auth/v1/user", token: sess.AccessToken, noKey: true},
			wantCode: http.StatusUnauthorized,
			wantErr:  backend.CodeNoAuthorization,
		},
		{
			name:     "wrong api key",
			req:      request{method: http.MethodGet, path: "/auth/v1/user", token: sess.AccessToken, noKey: true, header: map[string]string{headerAPIKey: "nope"}},
			wantCode: http.StatusUnauthorized,
			wantErr:  backend.CodeNoAuthorization,
		},
		{
			name:     "missing bearer",
			req:      request{method: http.MethodGet, path: "/auth/v1/user"},
			wantCode: http.StatusUnauthorized,
			wantErr:  backend.CodeNoAuthorization,
		},
		{
			name:     "bad bearer",
			req:      request{method: http.MethodGet, path: "/auth/v1/user", token: "not-a-jwt"},
			wantCode: http.StatusUnauthorized,
			wantErr:  backend.CodeBadJWT,
		},
		{
			name:     "email taken",
			req:      request{method: http.MethodPost, path: "/auth/v1/signup", body: backend.SignUpJSON{Email: "ada@school.test", Password: testPassword}},
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  backend.CodeUserExists,
		},
		{
			name:     "weak password",
			req:      request{method: http.MethodPost, path: "/auth/v1/signup", body: backend.SignUpJSON{Email: "grace@school.test", Password: "12345678"}},
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  backend.CodeWeakPassword,
		},
		{
			name:     "unsupported grant",
			req:      request{method: http.MethodPost, path: "/auth/v1/token?grant_type=refresh_token", body: echo.Map{}},
			wantCode: http.StatusBadRequest,
			wantErr:  "unsupported_grant_type",
		},
		{
			name:     "wrong password",
			req:      request{method: http.MethodPost, path: "/auth/v1/token?grant_type=password", body: passwordGrant{Email: "ada@school.test", Password: "wrong"}},
			wantCode: http.StatusBadRequest,
			wantErr:  backend.CodeInvalidCredentials,
		},
		{
			name:     "bad recovery token",
			req:      request{method: http.MethodPost, path: "/auth/v1/verify", body: verifyRequest{Type: baas.VerifyRecovery, Email: "ada@school.test", Token: "x-y"}},
			wantCode: http.StatusForbidden,
			wantErr:  "otp_expired",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.req)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			var body backend.AuthErrorJSON
			decode(t, rec, &body)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantErr, body.ErrorCode)
			assert.NotEmpty(t, body.Msg)
		})
	}

	t.Run("get user", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/auth/v1/user", token: sess.AccessToken})
		require.Equal(t, http.StatusOK, rec.Code)
		var uj backend.UserJSON
		decode(t, rec, &uj)
		assert.Equal(t, usr.ID, uj.ID)
	})

	t.Run("update user", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPut, path: "/auth/v1/user", token: sess.AccessToken,
			body: `{"data":{"name":"Ada King","phone":"+243 810 000 000"}}`})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var uj backend.UserJSON
		decode(t, rec, &uj)
		assert.Equal(t, "Ada King", uj.UserMetadata.Name)
		assert.Equal(t, "+243 810 000 000", uj.UserMetadata.Phone)
		assert.Equal(t, "ada@school.test", uj.Email)
	})

	t.Run("recover", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: "/auth/v1/recover", body: recoverRequest{Email: "nobody@school.test"}})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("logout revokes the session", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: "/auth/v1/logout", token: sess.AccessToken})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = env.do(t, request{method: http.MethodGet, path: "/auth/v1/user", token: sess.AccessToken})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		var body backend.AuthErrorJSON
		decode(t, rec, &body)
		assert.Equal(t, backend.CodeBadJWT, body.ErrorCode)
	})
}

func TestRestAPI(t *testing.T) {
	env := newTestEnv(t)
	usr := env.signUp(t, "ada@school.test")
	token := env.signIn(t, "ada@school.test").AccessToken

	insert := func(t *testing.T, name string) core.Record {
		t.Helper()
		rec := env.do(t, request{method: http.MethodPost, path: "/rest/v1/classes", token: token, body: echo.Map{"name": name},
			header: map[string]string{headerPrefer: "return=representation", echo.HeaderAccept: mimeObject}})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var row core.Record
		decode(t, rec, &row)
		return row
	}

	math := insert(t, "Math 101")
	assert.NotEmpty(t, math["id"])
	assert.Equal(t, usr.ID, math["teacher_id"])
	for _, name := range []string{"Art", "Biology", "Chemistry"} {
		insert(t, name)
	}

	t.Run("insert without representation", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPost, path: "/rest/v1/updates", token: token,
			body: echo.Map{"text": "Quiz on Monday", "class_id": math["id"]}})
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Empty(t, rec.Body.String())
	})

	t.Run("range & count", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/rest/v1/classes?teacher_id=eq." + usr.ID + "&order=created_at.desc", token: token,
			header: map[string]string{headerRange: "0-1", headerRangeUnit: "items", headerPrefer: "count=exact"}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var rows []core.Record
		decode(t, rec, &rows)
		assert.Len(t, rows, 2)
		assert.Equal(t, "0-1/4", rec.Header().Get(headerContentRange))

		rec = env.do(t, request{method: http.MethodGet, path: "/rest/v1/classes?limit=10&offset=3", token: token,
			header: map[string]string{headerPrefer: "count=exact"}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &rows)
		assert.Len(t, rows, 1)
		assert.Equal(t, "3-3/4", rec.Header().Get(headerContentRange))

		rec = env.do(t, request{method: http.MethodGet, path: "/rest/v1/classes?limit=10&offset=8", token: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
		assert.Equal(t, "*/*", rec.Header().Get(headerContentRange))

		rec = env.do(t, request{method: http.MethodGet, path: "/rest/v1/classes?limit=10&offset=8", token: token,
			header: map[string]string{headerPrefer: "count=exact"}})
		require.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code, rec.Body.String())
		assert.Equal(t, "*/4", rec.Header().Get(headerContentRange))
		assert.Contains(t, rec.Body.String(), "PGRST103")

		rec = env.do(t, request{method: http.MethodGet, path: "/rest/v1/classes?limit=10&offset=4", token: token,
			header: map[string]string{headerPrefer: "count=exact"}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "*/4", rec.Header().Get(headerContentRange))
	})

	t.Run("single object", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/rest/v1/classes?id=eq." + math["id"].(string), token: token,
			header: map[string]string{echo.HeaderAccept: mimeObject}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var row core.Record
		decode(t, rec, &row)
		assert.Equal(t, "Math 101", row["name"])
	})

	tests := []struct {
		name       string
		req        request
		wantStatus int
		wantCode   string
	}{
		{
			name:       "no rows",
			req:        request{method: http.MethodGet, path: "/rest/v1/classes?id=eq.8d6f1f3e-5a4b-4c1e-9f3a-2b7c9d0e1f2a", header: map[string]string{echo.HeaderAccept: mimeObject}},
			wantStatus: http.StatusNotAcceptable,
			wantCode:   backend.CodeNoRows,
		},
		{
			name:       "unsupported operator",
			req:        request{method: http.MethodGet, path: "/rest/v1/classes?name=like.Math*"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "PGRST100",
		},
		{
			name:       "unknown table",
			req:        request{method: http.MethodGet, path: "/rest/v1/teachers"},
			wantStatus: http.StatusNotFound,
			wantCode:   backend.CodeUnknownTable,
		},
		{
			name:       "unknown column",
			req:        request{method: http.MethodGet, path: "/rest/v1/classes?order=colour.asc"},
			wantStatus: http.StatusBadRequest,
			wantCode:   backend.CodeUnknownColumn,
		},
		{
			name:       "bad range",
			req:        request{method: http.MethodGet, path: "/rest/v1/classes", header: map[string]string{headerRange: "a-b"}},
			wantStatus: http.StatusRequestedRangeNotSatisfiable,
			wantCode:   "PGRST103",
		},
		{
			name:       "invalid body",
			req:        request{method: http.MethodPost, path: "/rest/v1/classes", body: "[1, 2"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "PGRST102",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.token = token
			rec := env.do(t, tt.req)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			var body backend.RestErrorJSON
			decode(t, rec, &body)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}

	t.Run("no session", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: "/rest/v1/classes"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("update", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodPatch, path: "/rest/v1/classes?id=eq." + math["id"].(string), token: token,
			body:   echo.Map{"name": "Math 102"},
			header: map[string]string{headerPrefer: "return=representation", echo.HeaderAccept: mimeObject}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var row core.Record
		decode(t, rec, &row)
		assert.Equal(t, "Math 102", row["name"])
		assert.Equal(t, math["id"], row["id"])
	})

	t.Run("delete", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodDelete, path: "/rest/v1/classes?id=eq." + math["id"].(string), token: token})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = env.do(t, request{method: http.MethodGet, path: "/rest/v1/classes", token: token})
		var rows []core.Record
		decode(t, rec, &rows)
		assert.Len(t, rows, 3)
	})
}

func TestStorageAPI(t *testing.T) {
	env := newTestEnv(t)
	usr := env.signUp(t, "ada@school.test")
	token := env.signIn(t, "ada@school.test").AccessToken
	png := []byte("\x89PNG\r\n\x1a\nfake")
	objectPath := "/storage/v1/object/avatars/" + usr.ID + "/avatar.png"
	publicPath := "/storage/v1/object/public/avatars/" + usr.ID + "/avatar.png"

	upload := func(upsert string) *httptest.ResponseRecorder {
		return env.do(t, request{method: http.MethodPost, path: objectPath, token: token, body: png,
			header: map[string]string{echo.HeaderContentType: "image/png", headerUpsert: upsert}})
	}

	rec := upload("false")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"Key":"avatars/`+usr.ID+`/avatar.png"}`, rec.Body.String())

	rec = upload("false")
	require.Equal(t, http.StatusConflict, rec.Code)
	var storageErr backend.StorageErrorJSON
	decode(t, rec, &storageErr)
	assert.Equal(t, backend.StorageErrorJSON{StatusCode: "409", Error: backend.CodeDuplicate, Message: "The resource already exists"}, storageErr)

	rec = upload("true")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, request{method: http.MethodPost, path: "/storage/v1/object/avatars/someone-else/avatar.png", token: token, body: png})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	t.Run("public download", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodGet, path: publicPath, noKey: true})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
		assert.Equal(t, png, rec.Body.Bytes())

		rec = env.do(t, request{method: http.MethodGet, path: "/storage/v1/object/public/secrets/a.png", noKey: true})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("remove", func(t *testing.T) {
		rec := env.do(t, request{method: http.MethodDelete, path: "/storage/v1/object/avatars", token: token,
			body: removeRequest{Prefixes: []string{usr.ID + "/avatar.png", usr.ID + "/missing.png"}}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var objs []objectJSON
		decode(t, rec, &objs)
		assert.Equal(t, []objectJSON{{Name: usr.ID + "/avatar.png", BucketID: "avatars"}}, objs)

		rec = env.do(t, request{method: http.MethodGet, path: publicPath, noKey: true})
		require.Equal(t, http.StatusNotFound, rec.Code)
		decode(t, rec, &storageErr)
		assert.Equal(t, backend.CodeObjectNotFound, storageErr.Error)
	})
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, request{method: http.MethodGet, path: "/", noKey: true})
	env.do(t, request{method: http.MethodGet, path: "/rest/v1/classes"})

	rec := env.do(t, request{method: http.MethodGet, path: "/metrics", noKey: true})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `smis_emulator_http_requests_total{code="200",method="GET",route="/"} 1`)
	assert.Contains(t, body, `smis_emulator_http_requests_total{code="401",method="GET",route="/rest/v1/:table"} 1`)
	assert.Contains(t, body, "smis_emulator_http_request_duration_seconds_bucket")
}
