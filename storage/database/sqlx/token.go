package sqlxdb

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

func (db *DB) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	q := `INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2)
		ON CONFLICT (jti) DO UPDATE SET expires_at = EXCLUDED.expires_at`
	if _, err := db.db.ExecContext(ctx, q, jti, expiresAt.UTC()); err != nil {
		return errors.Wrap(err, "revoking token")
	}
	return nil
}

func (db *DB) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	if err := db.db.GetContext(ctx, &revoked, `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti); err != nil {
		return false, errors.Wrap(err, "checking revoked token")
	}
	return revoked, nil
}

func (db *DB) PurgeRevokedTokens(ctx context.Context, now time.Time) (int, error) {
	res, err := db.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "purging revoked tokens")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "purging revoked tokens")
	}
	return int(n), nil
}
