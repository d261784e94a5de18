package baas_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/baas"
	"github.com/trezcool/smis/core/backend"
	"github.com/trezcool/smis/core/user"
	emailsvc "github.com/trezcool/smis/services/email"
	inmemdb "github.com/trezcool/smis/storage/database/inmem"
)

const testPassword = "Xk9#mQ2!vL"

type testEnv struct {
	conf    *core.Config
	db      *inmemdb.DB
	mailer  *emailsvc.ConsoleServiceMock
	auth    *baas.AuthService
	records *baas.RecordService
	storage *baas.StorageService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conf := core.NewTestConfig()
	db, err := inmemdb.Open()
	require.NoError(t, err)
	mailer := emailsvc.NewConsoleServiceMock(conf)
	return &testEnv{
		conf:    conf,
		db:      db,
		mailer:  mailer,
		auth:    baas.NewAuthService(conf, db, db, mailer, core.NopLogger),
		records: baas.NewRecordService(db, core.NopLogger),
		storage: baas.NewStorageService(conf, db),
	}
}

func (env *testEnv) signUp(t *testing.T, email string) user.User {
	t.Helper()
	usr, err := env.auth.SignUp(context.Background(), user.NewUser{Email: email, Password: testPassword, Name: "Ada Lovelace"})
	require.NoError(t, err)
	return usr
}

func requireBackendError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var bErr *backend.Error
	require.True(t, errors.As(err, &bErr), "expected a backend error, got %v", err)
	assert.Equal(t, status, bErr.Status)
	assert.Equal(t, code, bErr.Code)
	assert.NotEmpty(t, bErr.Message)
}

func TestSignUp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	usr, err := env.auth.SignUp(ctx, user.NewUser{Email: "  Ada@School.test ", Password: testPassword, Name: " Ada Lovelace ", Phone: "+254 700 000000"})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.Equal(t, "ada@school.test", usr.Email)
	assert.Equal(t, "Ada Lovelace", usr.Name)
	assert.Equal(t, user.RoleTeacher, usr.Role)

	sent := env.mailer.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "ada@school.test", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Welcome to SMIS Portal")

	tests := []struct {
		name       string
		nu         user.NewUser
		wantStatus int
		wantCode   string
	}{
		{name: "duplicate email", nu: user.NewUser{Email: "ada@school.test", Password: testPassword}, wantStatus: http.StatusUnprocessableEntity, wantCode: backend.CodeUserExists},
		{name: "weak password", nu: user.NewUser{Email: "grace@school.test", Password: "short"}, wantStatus: http.StatusUnprocessableEntity, wantCode: backend.CodeWeakPassword},
		{name: "invalid email", nu: user.NewUser{Email: "grace", Password: testPassword}, wantStatus: http.StatusUnprocessableEntity, wantCode: backend.CodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.SignUp(ctx, tt.nu)
			requireBackendError(t, err, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestSignInAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	usr := env.signUp(t, "ada@school.test")

	_, err := env.auth.SignIn(ctx, "ada@school.test", "wrong-password")
	requireBackendError(t, err, http.StatusBadRequest, backend.CodeInvalidCredentials)
	_, err = env.auth.SignIn(ctx, "nobody@school.test", testPassword)
	requireBackendError(t, err, http.StatusBadRequest, backend.CodeInvalidCredentials)

	sess, err := env.auth.SignIn(ctx, " ADA@school.test", testPassword)
	require.NoError(t, err)
	assert.Equal(t, "bearer", sess.TokenType)
	assert.Equal(t, usr.ID, sess.User.ID)
	assert.False(t, sess.User.LastSignInAt.IsZero())
	assert.Equal(t, int(env.conf.Emulator.JWTExpirationDelta.Seconds()), sess.ExpiresIn)

	claims, principal, err := env.auth.Authenticate(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, usr.ID, claims.Subject)
	assert.Equal(t, usr.ID, principal.ID)

	restored, err := env.auth.Session(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, sess.AccessToken, restored.AccessToken)
	assert.Equal(t, usr.ID, restored.User.ID)

	_, _, err = env.auth.Authenticate(ctx, "not-a-jwt")
	requireBackendError(t, err, http.StatusUnauthorized, backend.CodeBadJWT)

	// expired
	baas.NowFunc = func() time.Time { return time.Now().Add(2 * env.conf.Emulator.JWTExpirationDelta) }
	_, _, err = env.auth.Authenticate(ctx, sess.AccessToken)
	baas.NowFunc = time.Now // reset
	requireBackendError(t, err, http.StatusUnauthorized, backend.CodeBadJWT)

	// signed out
	require.NoError(t, env.auth.SignOut(ctx, claims))
	_, _, err = env.auth.Authenticate(ctx, sess.AccessToken)
	requireBackendError(t, err, http.StatusUnauthorized, backend.CodeBadJWT)

	// revocations outlive the token only until it expires
	n, err := env.auth.PurgeRevokedTokens(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	baas.NowFunc = func() time.Time { return time.Now().Add(2 * env.conf.Emulator.JWTExpirationDelta) }
	n, err = env.auth.PurgeRevokedTokens(ctx)
	baas.NowFunc = time.Now // reset
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpdateUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	usr := env.signUp(t, "ada@school.test")
	env.signUp(t, "grace@school.test")

	name, phone := " Ada King ", "+254 700 000001"
	updated, err := env.auth.UpdateUser(ctx, usr.ID, user.Attributes{Name: &name, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "Ada King", updated.Name)
	assert.Equal(t, phone, updated.Phone)
	assert.Equal(t, "ada@school.test", updated.Email)

	taken := "GRACE@school.test"
	_, err = env.auth.UpdateUser(ctx, usr.ID, user.Attributes{Email: &taken})
	requireBackendError(t, err, http.StatusUnprocessableEntity, backend.CodeUserExists)

	weak := "adaking1"
	_, err = env.auth.UpdateUser(ctx, usr.ID, user.Attributes{Password: &weak})
	requireBackendError(t, err, http.StatusUnprocessableEntity, backend.CodeWeakPassword)

	newPwd := "Zq7!wR4#tY"
	_, err = env.auth.UpdateUser(ctx, usr.ID, user.Attributes{Password: &newPwd})
	require.NoError(t, err)
	_, err = env.auth.SignIn(ctx, "ada@school.test", testPassword)
	requireBackendError(t, err, http.StatusBadRequest, backend.CodeInvalidCredentials)
	_, err = env.auth.SignIn(ctx, "ada@school.test", newPwd)
	assert.NoError(t, err)
}

func TestRecoverAndVerify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	usr := env.signUp(t, "ada@school.test")

	// unknown emails are not disclosed
	require.NoError(t, env.auth.Recover(ctx, "nobody@school.test"))
	assert.Len(t, env.mailer.SentMessages(), 1)

	require.NoError(t, env.auth.Recover(ctx, "ada@school.test"))
	sent := env.mailer.SentMessages()
	require.Len(t, sent, 2)
	reset := sent[1]
	assert.Equal(t, "Password Reset", reset.Subject)

	acc, err := env.db.GetUserByID(ctx, usr.ID)
	require.NoError(t, err)
	token, err := user.NewTokenGenerator(env.conf.Emulator.SecretKey, env.conf.Emulator.PasswordResetTimeoutDelta).MakeToken(acc.User, acc.PasswordHash)
	require.NoError(t, err)
	assert.Contains(t, reset.TextContent, token)

	_, err = env.auth.Verify(ctx, "signup", "ada@school.test", token)
	requireBackendError(t, err, http.StatusBadRequest, backend.CodeValidationFailed)
	_, err = env.auth.Verify(ctx, baas.VerifyRecovery, "ada@school.test", "bogus-token")
	requireBackendError(t, err, http.StatusForbidden, "otp_expired")

	sess, err := env.auth.Verify(ctx, baas.VerifyRecovery, "ada@school.test", token)
	require.NoError(t, err)
	assert.Equal(t, usr.ID, sess.User.ID)

	// the sign-in invalidated the token
	_, err = env.auth.Verify(ctx, baas.VerifyRecovery, "ada@school.test", token)
	requireBackendError(t, err, http.StatusForbidden, "otp_expired")

	err = env.auth.Recover(ctx, " ")
	requireBackendError(t, err, http.StatusBadRequest, backend.CodeValidationFailed)
}
