package localsvc

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/backend"
	"github.com/trezcool/smis/core/class"
	"github.com/trezcool/smis/core/user"
)

func TestBackend(t *testing.T) {
	ctx := context.Background()
	conf := core.NewTestConfig()
	b, err := NewInMemory(conf, nil, core.NopLogger)
	require.NoError(t, err)

	_, err = b.Classes().Select(ctx, core.Query{})
	var bErr *backend.Error
	require.True(t, errors.As(err, &bErr))
	assert.Equal(t, http.StatusUnauthorized, bErr.Status)

	usr, err := b.Auth().SignUp(ctx, user.NewUser{Email: "ada@school.test", Password: "Xk9#mQ2!vL", Name: "Ada"})
	require.NoError(t, err)
	sess, err := b.Auth().SignIn(ctx, "ada@school.test", "Xk9#mQ2!vL")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, sess.User.ID)

	me, err := b.Auth().GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, usr.ID, me.ID)

	nc := class.NewClass{Name: "Math 101", Room: "B2"}
	cls, err := b.Classes().Insert(ctx, nc.Record(usr.ID))
	require.NoError(t, err)
	assert.Equal(t, "Math 101", cls.Name)
	assert.Equal(t, "B2", cls.Room.String)
	assert.False(t, cls.Description.Valid)
	assert.Equal(t, usr.ID, cls.TeacherID)
	assert.False(t, cls.CreatedAt.IsZero())

	got, err := b.Classes().Get(ctx, cls.ID)
	require.NoError(t, err)
	assert.Equal(t, cls.ID, got.ID)

	name := "Math 102"
	updated, err := b.Classes().Update(ctx, cls.ID, class.Changes{Name: &name}.Record(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "Math 102", updated.Name)
	assert.True(t, updated.UpdatedAt.Valid)

	_, err = b.Classes().Update(ctx, "7b0f0a43-9d4c-4a43-a3bd-3d0d1e3c1f01", class.Changes{Name: &name}.Record(time.Now()))
	assert.ErrorIs(t, err, backend.ErrNotFound)

	page, err := b.Classes().Select(ctx, core.Query{}.Where("teacher_id", usr.ID).OrderBy("created_at", false).Paginate(1, 10))
	require.NoError(t, err)
	assert.Len(t, page.Rows, 1)
	assert.Equal(t, 1, page.Total)

	url, err := b.Storage().Upload(ctx, backend.AvatarsBucket, usr.ID+"/avatar.png", "image/png", strings.NewReader("png"), true)
	require.NoError(t, err)
	assert.Equal(t, conf.Emulator.PublicURL+"/storage/v1/object/public/avatars/"+usr.ID+"/avatar.png", url)
	require.NoError(t, b.Storage().Remove(ctx, backend.AvatarsBucket, usr.ID+"/avatar.png"))

	require.NoError(t, b.Classes().Delete(ctx, cls.ID))
	_, err = b.Classes().Get(ctx, cls.ID)
	assert.ErrorIs(t, err, backend.ErrNotFound)

	require.NoError(t, b.Auth().SignOut(ctx))
	_, err = b.Auth().GetUser(ctx)
	assert.Error(t, err)

	// the revoked token cannot be restored
	_, err = b.Auth().RestoreSession(ctx, sess.AccessToken)
	assert.Error(t, err)

	// signing out without a session is a no-op
	assert.NoError(t, b.Auth().SignOut(ctx))
}

func TestRestoreSession(t *testing.T) {
	ctx := context.Background()
	conf := core.NewTestConfig()
	b, err := NewInMemory(conf, nil, core.NopLogger)
	require.NoError(t, err)

	_, err = b.Auth().SignUp(ctx, user.NewUser{Email: "ada@school.test", Password: "Xk9#mQ2!vL"})
	require.NoError(t, err)
	sess, err := b.Auth().SignIn(ctx, "ada@school.test", "Xk9#mQ2!vL")
	require.NoError(t, err)

	other, err := NewInMemory(conf, nil, core.NopLogger)
	require.NoError(t, err)
	_, err = other.Auth().RestoreSession(ctx, sess.AccessToken)
	assert.Error(t, err, "the token belongs to another database")

	b.setToken("")
	restored, err := b.Auth().RestoreSession(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, restored.User.ID)
	assert.Equal(t, sess.AccessToken, b.getToken())
}
