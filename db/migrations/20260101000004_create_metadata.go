package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

// Fourth schema step: normalized (item_id, property_name,
// property_value) rows alongside mt_cds_object.metadata's flattened
// encoding, so property-level queries (e.g. "all tracks by artist X")
// don't require decoding every row's blob.
func init() {
	goose.AddMigrationContext(upCreateMetadata, downCreateMetadata)
}

func upCreateMetadata(_ context.Context, tx *sql.Tx) error {
	_, err := tx.Exec(`
create table if not exists mt_metadata
(
    id             integer primary key autoincrement,
    item_id        integer not null references mt_cds_object(id) on delete cascade,
    property_name  varchar(255) not null,
    property_value text not null
);

create index if not exists mt_metadata_item_id on mt_metadata(item_id);
create index if not exists mt_metadata_property on mt_metadata(property_name, property_value);
`)
	return err
}

func downCreateMetadata(_ context.Context, tx *sql.Tx) error {
	_, err := tx.Exec(`drop table if exists mt_metadata;`)
	return err
}
