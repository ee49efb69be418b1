package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateCdsObject, downCreateCdsObject)
}

func upCreateCdsObject(_ context.Context, tx *sql.Tx) error {
	_, err := tx.Exec(`
create table if not exists mt_cds_object
(
    id             integer primary key autoincrement,
    ref_id         integer references mt_cds_object(id),
    parent_id      integer not null,
    object_type    integer not null,
    flags          integer not null default 0,
    restricted     boolean not null default 0,
    virtual        boolean not null default 0,
    dc_title       varchar(255) not null,
    dc_description text,
    upnp_class     varchar(255) not null,
    location       blob,
    mime_type      varchar(255) default '' not null,
    action         varchar(1024) default '' not null,
    state          text default '' not null,
    update_id      integer not null default 0,
    searchable     boolean not null default 0,
    metadata       text default '' not null,
    auxdata        text default '' not null,
    resources      text default '' not null,
    service_id     varchar(255)
);

create index if not exists mt_cds_object_parent_id on mt_cds_object(parent_id);
create index if not exists mt_cds_object_ref_id on mt_cds_object(ref_id);
create unique index if not exists mt_cds_object_service_id on mt_cds_object(service_id) where service_id is not null;
create index if not exists mt_cds_object_parent_title on mt_cds_object(parent_id, dc_title);
`)
	return err
}

func downCreateCdsObject(_ context.Context, tx *sql.Tx) error {
	_, err := tx.Exec(`drop table if exists mt_cds_object;`)
	return err
}
