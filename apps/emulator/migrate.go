package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/storage/database"
)

var (
	runMigrationFunc = database.Run // mockable

	errMigrateUsage = errors.New("usage: emulator migrate up|up-by-one|up-to VERSION|down|down-to VERSION|redo|reset|status|version")
)

// migrate runs a migration command against the configured Postgres database.
func migrate(ctx context.Context, conf *core.Config, logger core.Logger, args []string) error {
	if len(args) == 0 {
		return errMigrateUsage
	}
	db, err := database.Open(conf.Emulator.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err = runMigrationFunc(ctx, db, logger, args[0], args[1:]...); err != nil {
		return errors.Wrapf(err, "migrate %s", args[0])
	}
	return nil
}
