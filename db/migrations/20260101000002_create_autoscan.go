package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateAutoscan, downCreateAutoscan)
}

func upCreateAutoscan(_ context.Context, tx *sql.Tx) error {
	_, err := tx.Exec(`
create table if not exists mt_autoscan
(
    id              integer primary key autoincrement,
    storage_id      integer not null references mt_cds_object(id) on delete cascade,
    location        varchar(4096) not null,
    scan_mode       varchar(16) not null,
    scan_level      varchar(16) not null,
    recursive       boolean not null default 1,
    hidden_files    boolean not null default 0,
    interval        integer not null default 0,
    last_modified   datetime,
    path_ids        blob
);

create unique index if not exists mt_autoscan_storage_id on mt_autoscan(storage_id);
`)
	return err
}

func downCreateAutoscan(_ context.Context, tx *sql.Tx) error {
	_, err := tx.Exec(`drop table if exists mt_autoscan;`)
	return err
}
