package storage

import (
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/opencds/mediaserver/internal/model"
)

type settingRow struct {
	Key   string `db:"key" structs:"key"`
	Value string `db:"value" structs:"value"`
}

type settingRepository struct {
	sqlRepository
}

// GetInternalSetting returns the stored value for key, or ("", false)
// if absent (spec §4.2 get_internal_setting).
func (r *settingRepository) GetInternalSetting(key string) (string, bool, error) {
	sel := r.newSelect().Where(sq.Eq{"key": key})
	var row settingRow
	if err := r.queryOne(sel, &row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, model.ActionFailed(err)
	}
	return row.Value, true, nil
}

// StoreInternalSetting upserts key/value.
func (r *settingRepository) StoreInternalSetting(key, value string) error {
	upd := sq.Update(r.tableName).Set("value", value).Where(sq.Eq{"key": key}).PlaceholderFormat(sq.Question)
	affected, err := r.executeSQL(upd)
	if err != nil {
		return model.ActionFailed(err)
	}
	if affected > 0 {
		return nil
	}
	ins := sq.Insert(r.tableName).Columns("key", "value").Values(key, value).PlaceholderFormat(sq.Question)
	if _, err := r.executeSQL(ins); err != nil {
		return model.ActionFailed(err)
	}
	return nil
}
