package inmemdb

import (
	"sync"
	"time"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/baas"
)

type (
	DB struct {
		user   *userTable
		token  *tokenTable
		record *recordTable
		blob   *blobTable
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*baas.Account
	}

	tokenTable struct {
		mutex sync.RWMutex
		table map[string]time.Time // jti -> expiry
	}

	// row keeps the insertion order so that rows with equal sort keys keep a stable order.
	row struct {
		seq  int64
		data core.Record
	}

	recordTable struct {
		mutex  sync.RWMutex
		seq    int64
		tables map[string]map[string]*row // table -> id -> row
	}

	blobTable struct {
		mutex sync.RWMutex
		table map[string]*baas.Blob // bucket/path -> blob
	}
)

var _ baas.Database = (*DB)(nil) // interface compliance check

func Open() (*DB, error) {
	db := &DB{
		user:   &userTable{table: make(map[string]*baas.Account)},
		token:  &tokenTable{table: make(map[string]time.Time)},
		record: &recordTable{tables: make(map[string]map[string]*row)},
		blob:   &blobTable{table: make(map[string]*baas.Blob)},
	}
	return db, nil
}

func (db *DB) Close() error { return nil }
