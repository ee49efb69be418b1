package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

// Schema version 5: adds the composite index Browse's DirectChildren
// ordering (object_type, dc_title) relies on.
func init() {
	goose.AddMigrationContext(upAddObjectTypeIndex, downAddObjectTypeIndex)
}

func upAddObjectTypeIndex(_ context.Context, tx *sql.Tx) error {
	_, err := tx.Exec(`create index if not exists mt_cds_object_type_title on mt_cds_object(parent_id, object_type, dc_title);`)
	return err
}

func downAddObjectTypeIndex(_ context.Context, tx *sql.Tx) error {
	_, err := tx.Exec(`drop index if exists mt_cds_object_type_title;`)
	return err
}
