package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	// Registers every migration's init() with goose via AddMigrationContext.
	_ "github.com/opencds/mediaserver/db/migrations"
)

const schemaVersionKey = "db_version"

// migrate applies every registered goose migration, then mirrors the
// resulting version into mt_internal_setting.db_version so
// getInternalSetting/storeInternalSetting (spec §4.2) can surface the
// schema version through the same key/value contract the original
// source exposes, without goose and mt_internal_setting disagreeing
// about where "the" version lives.
func migrate(ctx context.Context, db *sql.DB) error {
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	// Pure Go migrations are registered by import side effect; the
	// directory argument is only consulted for on-disk SQL migrations,
	// of which this schema has none.
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("reading migrated schema version: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`insert into mt_internal_setting(key, value) values (?, ?)
		 on conflict(key) do update set value = excluded.value`,
		schemaVersionKey, fmt.Sprintf("%d", version))
	return err
}
