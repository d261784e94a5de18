package sqlxdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/smis/core/baas"
	"github.com/trezcool/smis/core/user"
)

const userColumns = `id, email, password_hash, name, phone, role, avatar_url, created_at, updated_at, last_sign_in_at`

type userRow struct {
	ID           string      `db:"id"`
	Email        string      `db:"email"`
	PasswordHash []byte      `db:"password_hash"`
	Name         null.String `db:"name"`
	Phone        null.String `db:"phone"`
	Role         string      `db:"role"`
	AvatarURL    null.String `db:"avatar_url"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    null.Time   `db:"updated_at"`
	LastSignInAt null.Time   `db:"last_sign_in_at"`
}

func toUserRow(acc baas.Account) userRow {
	usr := acc.User
	return userRow{
		ID:           usr.ID,
		Email:        usr.Email,
		PasswordHash: acc.PasswordHash,
		Name:         null.NewString(usr.Name, usr.Name != ""),
		Phone:        null.NewString(usr.Phone, usr.Phone != ""),
		Role:         usr.Role,
		AvatarURL:    null.NewString(usr.AvatarURL, usr.AvatarURL != ""),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    null.NewTime(usr.UpdatedAt.UTC(), !usr.UpdatedAt.IsZero()),
		LastSignInAt: null.NewTime(usr.LastSignInAt.UTC(), !usr.LastSignInAt.IsZero()),
	}
}

func (row userRow) account() baas.Account {
	return baas.Account{
		User: user.User{
			ID:           row.ID,
			Email:        row.Email,
			Name:         row.Name.String,
			Phone:        row.Phone.String,
			Role:         row.Role,
			AvatarURL:    row.AvatarURL.String,
			CreatedAt:    row.CreatedAt.UTC(),
			UpdatedAt:    utc(row.UpdatedAt),
			LastSignInAt: utc(row.LastSignInAt),
		},
		PasswordHash: row.PasswordHash,
	}
}

func utc(t null.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

func (db *DB) CreateUser(ctx context.Context, acc baas.Account) error {
	q := `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :email, :password_hash, :name, :phone, :role, :avatar_url, :created_at, :updated_at, :last_sign_in_at)`
	if _, err := db.db.NamedExecContext(ctx, q, toUserRow(acc)); err != nil {
		if isUniqueViolation(err) {
			return user.ErrEmailExists
		}
		return errors.Wrap(err, "inserting user")
	}
	return nil
}

func (db *DB) getUser(ctx context.Context, where string, arg interface{}) (baas.Account, error) {
	var row userRow
	err := db.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidInput(err) {
			return baas.Account{}, user.ErrNotFound
		}
		return baas.Account{}, errors.Wrap(err, "selecting user")
	}
	return row.account(), nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (baas.Account, error) {
	return db.getUser(ctx, `id = $1`, id)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (baas.Account, error) {
	return db.getUser(ctx, `email = $1`, email)
}

func (db *DB) UpdateUser(ctx context.Context, acc baas.Account) error {
	q := `UPDATE users SET
		email = :email, password_hash = :password_hash, name = :name, phone = :phone, role = :role,
		avatar_url = :avatar_url, updated_at = :updated_at, last_sign_in_at = :last_sign_in_at
		WHERE id = :id`
	res, err := db.db.NamedExecContext(ctx, q, toUserRow(acc))
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return user.ErrEmailExists
		case isInvalidInput(err):
			return user.ErrNotFound
		}
		return errors.Wrap(err, "updating user")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}
