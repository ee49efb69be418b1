package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateInternalSetting, downCreateInternalSetting)
}

func upCreateInternalSetting(_ context.Context, tx *sql.Tx) error {
	_, err := tx.Exec(`
create table if not exists mt_internal_setting
(
    key   varchar(255) primary key,
    value text not null
);
`)
	return err
}

func downCreateInternalSetting(_ context.Context, tx *sql.Tx) error {
	_, err := tx.Exec(`drop table if exists mt_internal_setting;`)
	return err
}
