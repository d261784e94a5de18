// Package backend defines the contract the dashboard consumes from its hosted backend:
// authentication, the classes, students and updates tables, and file storage.
package backend

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/class"
	"github.com/trezcool/smis/core/student"
	"github.com/trezcool/smis/core/update"
	"github.com/trezcool/smis/core/user"
)

// AvatarsBucket holds profile pictures.
const AvatarsBucket = "avatars"

type (
	// Session is an authenticated backend session.
	Session struct {
		AccessToken  string    `json:"access_token"`
		TokenType    string    `json:"token_type"`
		ExpiresIn    int       `json:"expires_in"`
		ExpiresAt    int64     `json:"expires_at"`
		RefreshToken string    `json:"refresh_token"`
		User         user.User `json:"-"`
	}

	// Page is a window of rows. Total is only set when an exact count was requested.
	Page[T any] struct {
		Rows  []T
		Total int
	}

	AuthService interface {
		SignIn(ctx context.Context, email, password string) (*Session, error)
		// SignUp registers an account; the user has to confirm the email before signing in.
		SignUp(ctx context.Context, nu user.NewUser) (user.User, error)
		SignOut(ctx context.Context) error
		GetUser(ctx context.Context) (user.User, error)
		// RestoreSession re-establishes a session from a previously issued access token.
		RestoreSession(ctx context.Context, accessToken string) (*Session, error)
		UpdateUser(ctx context.Context, attrs user.Attributes) (user.User, error)
		ResetPasswordForEmail(ctx context.Context, email string) error
	}

	// Table is a remote table of T rows.
	Table[T any] interface {
		Select(ctx context.Context, q core.Query) (Page[T], error)
		// Get fails with ErrNotFound when no row has the id.
		Get(ctx context.Context, id string) (T, error)
		Insert(ctx context.Context, rec core.Record) (T, error)
		Update(ctx context.Context, id string, rec core.Record) (T, error)
		Delete(ctx context.Context, id string) error
	}

	Storage interface {
		// Upload stores the object and returns its public URL.
		Upload(ctx context.Context, bucket, path, contentType string, body io.Reader, upsert bool) (string, error)
		Remove(ctx context.Context, bucket string, paths ...string) error
		PublicURL(bucket, path string) string
	}

	Backend interface {
		Auth() AuthService
		Classes() Table[class.Class]
		Students() Table[student.Student]
		Updates() Table[update.Update]
		Storage() Storage
	}
)

// Expired reports whether the access token expired at t.
func (s Session) Expired(t time.Time) bool {
	return s.ExpiresAt > 0 && t.Unix() >= s.ExpiresAt
}

// PublicURL is where objects of public buckets are downloaded from.
func PublicURL(baseURL, bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(baseURL, "/") + "/storage/v1/object/public/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}
