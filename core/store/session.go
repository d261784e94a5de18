package store

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/backend"
	"github.com/trezcool/smis/core/media"
	"github.com/trezcool/smis/core/user"
)

// ErrSessionChanged is returned when a logout or another login settled while a session request was in flight.
var ErrSessionChanged = errors.New("the session changed while the request was in flight")

const (
	entitySession = "session"
	entityUser    = "user"
)

// Login signs in and stores the session and its principal.
func (s *Store) Login(ctx context.Context, email, password string) (user.User, error) {
	gen, done := s.begin()
	defer done()

	sess, err := s.backend.Auth().SignIn(ctx, core.CleanString(email, true /* lower */), password)
	if err != nil {
		return user.User{}, s.fail(gen, KindAuth, entitySession, errors.WithStack(err))
	}
	if !s.dispatchFrom(gen, SetSession{Session: sess}, SetUser{User: &sess.User}, SetError{}) {
		return user.User{}, newError(KindAuth, entitySession, ErrSessionChanged)
	}

	s.logger.Info("user logged in", map[string]interface{}{"user_id": sess.User.ID})
	s.notifier.Success("Successfully logged in!")
	return sess.User, nil
}

// Signup registers a teacher account. The password policy is enforced by the backend.
func (s *Store) Signup(ctx context.Context, nu user.NewUser) (user.User, error) {
	gen, done := s.begin()
	defer done()

	nu.Clean()
	usr, err := share(ctx, s, gen, "signup", nu, func(ctx context.Context) (user.User, error) {
		return s.backend.Auth().SignUp(ctx, nu)
	})
	if err != nil {
		return user.User{}, s.fail(gen, KindAuth, entityUser, errors.WithStack(err))
	}

	s.notifier.Success("Account created! You can now log in.")
	return usr, nil
}

// Logout signs out remotely and resets the store whatever the outcome. A remote failure is
// only logged and notified: Logout always leaves the store anonymous and returns nil.
func (s *Store) Logout(ctx context.Context) error {
	_, done := s.begin()
	defer done()

	err := s.backend.Auth().SignOut(ctx)
	s.Dispatch(Reset{PageSize: s.pageSize})

	if err != nil {
		sErr := newError(KindAuth, entitySession, errors.WithStack(err))
		s.logger.Warn("remote sign out failed", err)
		s.notifier.Error(sErr)
		return nil
	}
	s.notifier.Success("Successfully logged out")
	return nil
}

// RestoreSession re-establishes a session from a stored access token.
func (s *Store) RestoreSession(ctx context.Context, accessToken string) (user.User, error) {
	gen, done := s.begin()
	defer done()

	sess, err := s.backend.Auth().RestoreSession(ctx, accessToken)
	if err != nil {
		return user.User{}, s.fail(gen, KindAuth, entitySession, errors.WithStack(err))
	}
	if !s.dispatchFrom(gen, SetSession{Session: sess}, SetUser{User: &sess.User}, SetError{}) {
		return user.User{}, newError(KindAuth, entitySession, ErrSessionChanged)
	}
	return sess.User, nil
}

// UpdateProfile changes the principal's profile; the returned user replaces the principal.
// An avatar is cropped to a square PNG and uploaded to the avatars bucket first.
func (s *Store) UpdateProfile(ctx context.Context, pu user.ProfileUpdate) (user.User, error) {
	gen, done := s.begin()
	defer done()

	current, ok := s.principal()
	if !ok {
		return user.User{}, s.fail(gen, KindAuth, entityUser, ErrUnauthenticated)
	}

	attrs := pu.Attributes()
	if err := s.check(&attrs); err != nil {
		return user.User{}, s.fail(gen, KindUpdate, entityUser, err)
	}
	if pu.Avatar != nil {
		avatarURL, err := s.uploadAvatar(ctx, current.ID, pu.Avatar)
		if err != nil {
			return user.User{}, s.fail(gen, KindUpdate, entityUser, err)
		}
		attrs.AvatarURL = &avatarURL
	}
	if attrs.IsEmpty() {
		return current, nil
	}

	usr, err := s.backend.Auth().UpdateUser(ctx, attrs)
	if err != nil {
		return user.User{}, s.fail(gen, KindUpdate, entityUser, errors.WithStack(err))
	}
	if s.dispatchFrom(gen, SetUser{User: &usr}) && attrs.AvatarURL != nil && *attrs.AvatarURL != current.AvatarURL {
		s.removeAvatar(ctx, current.AvatarURL)
	}

	s.notifier.Success("Profile updated successfully")
	return usr, nil
}

func (s *Store) uploadAvatar(ctx context.Context, userID string, avatar *user.Avatar) (string, error) {
	data, err := media.PrepareAvatar(avatar.Content)
	if err != nil {
		return "", errors.Wrapf(err, "preparing avatar %q", avatar.Filename)
	}
	path := fmt.Sprintf("%s/avatar-%d%s", userID, s.now().Unix(), media.AvatarExt)
	avatarURL, err := s.backend.Storage().Upload(ctx, backend.AvatarsBucket, path, media.AvatarContentType, bytes.NewReader(data), true)
	if err != nil {
		return "", errors.Wrap(err, "uploading avatar")
	}
	return avatarURL, nil
}

// removeAvatar deletes a previously uploaded avatar; failures are only logged.
func (s *Store) removeAvatar(ctx context.Context, avatarURL string) {
	prefix := s.backend.Storage().PublicURL(backend.AvatarsBucket, "")
	if avatarURL == "" || !strings.HasPrefix(avatarURL, prefix) {
		return
	}
	path, err := url.PathUnescape(strings.TrimPrefix(avatarURL, prefix))
	if err != nil {
		return
	}
	if err := s.backend.Storage().Remove(ctx, backend.AvatarsBucket, path); err != nil {
		s.logger.Warn("removing previous avatar", err)
	}
}

// ResetPassword emails password reset instructions.
func (s *Store) ResetPassword(ctx context.Context, email string) error {
	gen, done := s.begin()
	defer done()

	if err := s.backend.Auth().ResetPasswordForEmail(ctx, core.CleanString(email, true /* lower */)); err != nil {
		return s.fail(gen, KindAuth, entityUser, errors.WithStack(err))
	}
	s.notifier.Success("Password reset instructions sent to your email")
	return nil
}

// UpdatePassword sets a new password for the principal.
func (s *Store) UpdatePassword(ctx context.Context, password string) error {
	gen, done := s.begin()
	defer done()

	if _, ok := s.principal(); !ok {
		return s.fail(gen, KindAuth, entityUser, ErrUnauthenticated)
	}
	usr, err := s.backend.Auth().UpdateUser(ctx, user.Attributes{Password: &password})
	if err != nil {
		return s.fail(gen, KindAuth, entityUser, errors.WithStack(err))
	}
	s.dispatchFrom(gen, SetUser{User: &usr})
	s.notifier.Success("Password updated successfully")
	return nil
}

func (s *Store) SetError(err error) { s.Dispatch(SetError{Err: err}) }
func (s *Store) ClearError()        { s.Dispatch(SetError{}) }
