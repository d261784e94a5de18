package inmemdb

import (
	"context"
	"time"
)

func (db *DB) RevokeToken(_ context.Context, jti string, expiresAt time.Time) error {
	db.token.mutex.Lock()
	defer db.token.mutex.Unlock()
	db.token.table[jti] = expiresAt
	return nil
}

func (db *DB) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	db.token.mutex.RLock()
	defer db.token.mutex.RUnlock()
	_, ok := db.token.table[jti]
	return ok, nil
}

func (db *DB) PurgeRevokedTokens(_ context.Context, now time.Time) (int, error) {
	db.token.mutex.Lock()
	defer db.token.mutex.Unlock()

	var n int
	for jti, exp := range db.token.table {
		if !exp.After(now) {
			delete(db.token.table, jti)
			n++
		}
	}
	return n, nil
}
