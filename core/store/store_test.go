package store_test

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/smis/core/backend"
	"github.com/trezcool/smis/core/backend/backendtest"
	"github.com/trezcool/smis/core/class"
	"github.com/trezcool/smis/core/store"
	"github.com/trezcool/smis/core/user"
)

const (
	teacherEmail    = "teacher@example.com"
	teacherPassword = "secret123"
)

var errUnavailable = backend.NewError(503, "", "service unavailable")

type notifications struct {
	mu        sync.Mutex
	successes []string
	errs      []error
}

func (n *notifications) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *notifications) Error(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, err)
}

func (n *notifications) Errors() []error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]error(nil), n.errs...)
}

func (n *notifications) Successes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.successes...)
}

// tickingClock advances one second on every reading.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, time.September, 2, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type testEnv struct {
	backend *backendtest.Backend
	store   *store.Store
	notes   *notifications
	teacher user.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	b := backendtest.New(t)
	notes := new(notifications)
	return &testEnv{
		backend: b,
		store:   store.New(b, store.WithNotifier(notes), store.WithClock(tickingClock())),
		notes:   notes,
		teacher: b.SeedUser(t, teacherEmail, teacherPassword),
	}
}

// loggedIn returns an env with the teacher signed in and the call counters reset.
func loggedIn(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	_, err := env.store.Login(context.Background(), teacherEmail, teacherPassword)
	require.NoError(t, err)
	env.backend.ResetCalls()
	return env
}

func (env *testEnv) addClass(t *testing.T, name string) class.Class {
	t.Helper()
	c, err := env.store.AddClass(context.Background(), class.NewClass{Name: name})
	require.NoError(t, err)
	return c
}

func TestStore_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		env := newTestEnv(t)
		usr, err := env.store.Login(ctx, "  Teacher@Example.com ", teacherPassword)
		require.NoError(t, err)
		assert.Equal(t, env.teacher.ID, usr.ID)
		assert.Equal(t, user.RoleTeacher, usr.Role)

		st := env.store.State()
		require.NotNil(t, st.Session)
		require.NotNil(t, st.CurrentUser)
		assert.NotEmpty(t, st.Session.AccessToken)
		assert.Equal(t, usr.ID, st.CurrentUser.ID)
		assert.True(t, st.IsAuthenticated())
		assert.False(t, st.IsLoading())
		assert.Equal(t, []string{"Successfully logged in!"}, env.notes.Successes())
	})

	t.Run("invalid credentials", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.store.Login(ctx, teacherEmail, "wrong-password")
		require.Error(t, err)
		assert.True(t, store.IsKind(err, store.KindAuth))

		var bErr *backend.Error
		require.True(t, errors.As(err, &bErr))
		assert.Equal(t, backend.CodeInvalidCredentials, bErr.Code)

		st := env.store.State()
		assert.Nil(t, st.Session)
		assert.Nil(t, st.CurrentUser)
		assert.False(t, st.IsLoading())
		assert.Equal(t, err, st.Err)
		assert.Len(t, env.notes.Errors(), 1)
	})
}

func TestStore_Signup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	usr, err := env.store.Signup(ctx, user.NewUser{
		Email:    "  Jane@School.test ",
		Password: " Xk9#mQ2!vL ",
		Name:     " Jane Doe ",
		Phone:    " +243 810 000 000 ",
		Role:     user.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, "jane@school.test", usr.Email)
	assert.Equal(t, "Jane Doe", usr.Name)
	assert.Equal(t, "+243 810 000 000", usr.Phone)
	assert.Equal(t, user.RoleTeacher, usr.Role)
	assert.False(t, env.store.State().IsAuthenticated(), "signing up does not sign in")

	_, err = env.store.Login(ctx, "jane@school.test", "Xk9#mQ2!vL")
	require.NoError(t, err, "the password was trimmed")

	t.Run("duplicate email", func(t *testing.T) {
		_, err := env.store.Signup(ctx, user.NewUser{Email: teacherEmail, Password: "Xk9#mQ2!vL"})
		require.Error(t, err)
		assert.True(t, store.IsKind(err, store.KindAuth))
		var bErr *backend.Error
		require.True(t, errors.As(err, &bErr))
		assert.Equal(t, backend.CodeUserExists, bErr.Code)
	})

	t.Run("weak password", func(t *testing.T) {
		_, err := env.store.Signup(ctx, user.NewUser{Email: "new@school.test", Password: "12345678"})
		require.Error(t, err)
		assert.True(t, store.IsKind(err, store.KindAuth))
		var bErr *backend.Error
		require.True(t, errors.As(err, &bErr))
		assert.Equal(t, backend.CodeWeakPassword, bErr.Code)
	})
}

func TestStore_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("remote success", func(t *testing.T) {
		env := loggedIn(t)
		env.addClass(t, "Math 101")

		require.NoError(t, env.store.Logout(ctx))
		assert.Equal(t, store.InitialState(), env.store.State())
		assert.Equal(t, 1, env.backend.Calls(backendtest.OpSignOut))
	})

	t.Run("remote failure still resets", func(t *testing.T) {
		env := loggedIn(t)
		env.addClass(t, "Math 101")
		env.backend.Fail(backendtest.OpSignOut, errUnavailable)

		require.NoError(t, env.store.Logout(ctx))
		st := env.store.State()
		assert.Nil(t, st.Session)
		assert.Nil(t, st.CurrentUser)
		assert.Equal(t, store.InitialState(), st)

		errs := env.notes.Errors()
		require.Len(t, errs, 1)
		assert.True(t, store.IsKind(errs[0], store.KindAuth))
	})

	t.Run("late results are dropped", func(t *testing.T) {
		env := loggedIn(t)
		env.addClass(t, "Math 101")

		// the store is reset while the classes are being fetched
		env.backend.Hook(backendtest.TableOp(class.Table, "select"), func(context.Context) {
			env.store.Dispatch(store.Reset{})
		})
		classes, err := env.store.FetchClasses(ctx)
		require.NoError(t, err)
		assert.Len(t, classes, 1)

		assert.Equal(t, store.InitialState(), env.store.State())
	})
}

func TestStore_RestoreSession(t *testing.T) {
	ctx := context.Background()
	env := loggedIn(t)
	token := env.store.State().Session.AccessToken

	other := store.New(env.backend)
	usr, err := other.RestoreSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, env.teacher.ID, usr.ID)
	assert.True(t, other.State().IsAuthenticated())

	_, err = other.RestoreSession(ctx, "not-a-token")
	assert.True(t, store.IsKind(err, store.KindAuth))
}

func TestStore_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	str := func(s string) *string { return &s }
	avatar := func() *user.Avatar {
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 400, 300))))
		return &user.Avatar{Filename: "me.png", Content: &buf}
	}

	t.Run("unauthenticated", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.store.UpdateProfile(ctx, user.ProfileUpdate{Name: str("Jane")})
		assert.True(t, store.IsKind(err, store.KindAuth))
		assert.ErrorIs(t, err, store.ErrUnauthenticated)
		assert.Zero(t, env.backend.TotalCalls())
	})

	t.Run("fields", func(t *testing.T) {
		env := loggedIn(t)
		usr, err := env.store.UpdateProfile(ctx, user.ProfileUpdate{Name: str(" Mrs Teacher "), Phone: str("+243 810 000 001")})
		require.NoError(t, err)
		assert.Equal(t, "Mrs Teacher", usr.Name)
		assert.Equal(t, "+243 810 000 001", usr.Phone)
		assert.Equal(t, usr, *env.store.State().CurrentUser)
		assert.Zero(t, env.backend.Calls(backendtest.OpUpload))
	})

	t.Run("invalid fields", func(t *testing.T) {
		env := loggedIn(t)
		_, err := env.store.UpdateProfile(ctx, user.ProfileUpdate{Email: str("not-an-email")})
		assert.True(t, store.IsKind(err, store.KindUpdate))
		assert.Zero(t, env.backend.TotalCalls())
	})

	t.Run("avatar", func(t *testing.T) {
		env := loggedIn(t)
		prefix := env.backend.Storage().PublicURL(backend.AvatarsBucket, env.teacher.ID+"/")

		usr, err := env.store.UpdateProfile(ctx, user.ProfileUpdate{Avatar: avatar()})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(usr.AvatarURL, prefix), usr.AvatarURL)
		assert.True(t, strings.HasSuffix(usr.AvatarURL, ".png"), usr.AvatarURL)
		assert.Equal(t, 1, env.backend.Calls(backendtest.OpUpload))
		assert.Zero(t, env.backend.Calls(backendtest.OpRemove))

		usr2, err := env.store.UpdateProfile(ctx, user.ProfileUpdate{Avatar: avatar()})
		require.NoError(t, err)
		assert.NotEqual(t, usr.AvatarURL, usr2.AvatarURL)
		assert.Equal(t, 1, env.backend.Calls(backendtest.OpRemove), "the previous avatar is removed")
	})

	t.Run("not a picture", func(t *testing.T) {
		env := loggedIn(t)
		_, err := env.store.UpdateProfile(ctx, user.ProfileUpdate{
			Avatar: &user.Avatar{Filename: "me.txt", Content: strings.NewReader("hello")},
		})
		assert.True(t, store.IsKind(err, store.KindUpdate))
		assert.Zero(t, env.backend.TotalCalls())
	})
}

func TestStore_Passwords(t *testing.T) {
	ctx := context.Background()
	env := loggedIn(t)

	require.NoError(t, env.store.UpdatePassword(ctx, "n3w-Passw0rd!"))
	require.NoError(t, env.store.Logout(ctx))

	_, err := env.store.Login(ctx, teacherEmail, teacherPassword)
	assert.True(t, store.IsKind(err, store.KindAuth))
	_, err = env.store.Login(ctx, teacherEmail, "n3w-Passw0rd!")
	require.NoError(t, err)

	require.NoError(t, env.store.ResetPassword(ctx, teacherEmail))
	require.NoError(t, env.store.ResetPassword(ctx, "nobody@school.test"), "unknown emails are not disclosed")

	t.Run("update requires a principal", func(t *testing.T) {
		s := store.New(env.backend)
		err := s.UpdatePassword(ctx, "n3w-Passw0rd!")
		assert.ErrorIs(t, err, store.ErrUnauthenticated)
	})
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var (
		mu        sync.Mutex
		snapshots []store.State
	)
	unsubscribe := env.store.Subscribe(func(st store.State) {
		mu.Lock()
		defer mu.Unlock()
		snapshots = append(snapshots, st)
	})

	_, err := env.store.Login(ctx, teacherEmail, teacherPassword)
	require.NoError(t, err)

	mu.Lock()
	// request started, session and user set, request finished
	require.Len(t, snapshots, 3)
	assert.True(t, snapshots[0].IsLoading())
	assert.True(t, snapshots[1].IsAuthenticated())
	assert.False(t, snapshots[2].IsLoading())
	mu.Unlock()

	unsubscribe()
	env.store.ClearError()
	mu.Lock()
	assert.Len(t, snapshots, 3)
	mu.Unlock()
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	env := loggedIn(t)

	env.backend.Fail(backendtest.TableOp(class.Table, "select"), errUnavailable)
	_, err := env.store.FetchClasses(ctx)
	require.Error(t, err)

	assert.Equal(t, store.KindFetch, store.KindOf(err))
	assert.Equal(t, errUnavailable, errors.Cause(err))
	assert.EqualError(t, err, "fetch class: service unavailable")
	assert.Equal(t, err, env.store.State().Err)

	env.store.ClearError()
	assert.Nil(t, env.store.State().Err)

	assert.Equal(t, store.KindUnknown, store.KindOf(errUnavailable))
	assert.False(t, store.IsKind(nil, store.KindUnknown))
}
