// Package storage implements the persistent catalog: schema setup and
// migration, the single-connection serialization sqlite's thread
// affinity requires, and the add/update/load/browse/remove contract the
// content manager and CDS service run against (spec §4.2 Storage layer).
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pocketbase/dbx"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the process-wide handle onto the catalog database.
type Store struct {
	sqlDB *sql.DB
	db    *dbx.DB

	objects  *objectRepository
	autoscan *autoscanRepository
	settings *settingRepository
}

// Open opens (creating if absent) the sqlite database at dsn, applies
// pending migrations, and returns a ready Store.
//
// SetMaxOpenConns(1) is the thread-affinity guarantee spec §4.2 asks
// for: go-sqlite3 (like the source's underlying engine) misbehaves
// under concurrent connections sharing one file, so every access in
// this process is serialized through the single pooled connection
// rather than through a hand-rolled worker goroutine.
func Open(ctx context.Context, dsn string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", dsn, err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := migrate(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db := dbx.NewFromDB(sqlDB, "sqlite3")
	s := &Store{sqlDB: sqlDB, db: db}
	s.objects = &objectRepository{sqlRepository{ctx: ctx, db: db, tableName: "mt_cds_object"}}
	s.autoscan = &autoscanRepository{sqlRepository{ctx: ctx, db: db, tableName: "mt_autoscan"}}
	s.settings = &settingRepository{sqlRepository{ctx: ctx, db: db, tableName: "mt_internal_setting"}}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}
