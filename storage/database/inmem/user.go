package inmemdb

import (
	"context"

	"github.com/trezcool/smis/core/baas"
	"github.com/trezcool/smis/core/user"
)

func (db *DB) CreateUser(_ context.Context, acc baas.Account) error {
	db.user.mutex.Lock()
	defer db.user.mutex.Unlock()

	for _, a := range db.user.table {
		if a.User.Email == acc.User.Email {
			return user.ErrEmailExists
		}
	}
	acc.PasswordHash = append([]byte(nil), acc.PasswordHash...)
	db.user.table[acc.User.ID] = &acc
	return nil
}

func (db *DB) GetUserByID(_ context.Context, id string) (baas.Account, error) {
	db.user.mutex.RLock()
	defer db.user.mutex.RUnlock()

	if acc, ok := db.user.table[id]; ok {
		return *acc, nil
	}
	return baas.Account{}, user.ErrNotFound
}

func (db *DB) GetUserByEmail(_ context.Context, email string) (baas.Account, error) {
	db.user.mutex.RLock()
	defer db.user.mutex.RUnlock()

	for _, acc := range db.user.table {
		if acc.User.Email == email {
			return *acc, nil
		}
	}
	return baas.Account{}, user.ErrNotFound
}

func (db *DB) UpdateUser(_ context.Context, acc baas.Account) error {
	db.user.mutex.Lock()
	defer db.user.mutex.Unlock()

	if _, ok := db.user.table[acc.User.ID]; !ok {
		return user.ErrNotFound
	}
	for id, a := range db.user.table {
		if id != acc.User.ID && a.User.Email == acc.User.Email {
			return user.ErrEmailExists
		}
	}
	db.user.table[acc.User.ID] = &acc
	return nil
}
