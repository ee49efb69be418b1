package storage

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/opencds/mediaserver/internal/config"
	"github.com/opencds/mediaserver/internal/model"
)

// AutoscanEntry is one persisted `mt_autoscan` row (spec §4.2 Schema).
type AutoscanEntry struct {
	ID           int64
	StorageID    int64 // the PC-Directory container this autoscan is rooted at
	Location     string
	Mode         config.ScanMode
	Level        config.ScanLevel
	Recursive    bool
	HiddenFiles  bool
	Interval     int // seconds, timed mode only
	LastModified time.Time
	PathIDs      []int64 // cached ids along Location, refreshed as containers are created
}

type autoscanRow struct {
	ID           int64  `db:"id" structs:"id"`
	StorageID    int64  `db:"storage_id" structs:"storage_id"`
	Location     string `db:"location" structs:"location"`
	ScanMode     string `db:"scan_mode" structs:"scan_mode"`
	ScanLevel    string `db:"scan_level" structs:"scan_level"`
	Recursive    bool   `db:"recursive" structs:"recursive"`
	HiddenFiles  bool   `db:"hidden_files" structs:"hidden_files"`
	Interval     int    `db:"interval" structs:"interval"`
	LastModified string `db:"last_modified" structs:"last_modified"`
	PathIDs      string `db:"path_ids" structs:"path_ids"`
}

type autoscanRepository struct {
	sqlRepository
}

// GetAutoscanList returns every autoscan entry configured for the given
// mode ("" returns all modes).
func (r *autoscanRepository) GetAutoscanList(mode config.ScanMode) ([]AutoscanEntry, error) {
	sel := r.newSelect()
	if mode != "" {
		sel = sel.Where(sq.Eq{"scan_mode": string(mode)})
	}
	var rows []autoscanRow
	if err := r.queryAll(sel, &rows); err != nil {
		return nil, model.ActionFailed(err)
	}
	out := make([]AutoscanEntry, len(rows))
	for i, row := range rows {
		out[i] = row.toEntry()
	}
	return out, nil
}

// UpdateAutoscanDirectory inserts or updates e, rejecting overlapping
// locations per spec §4.2 "Overlap checking for autoscan": a new
// location may not be a directory-boundary prefix or suffix of any
// other configured autoscan's location.
func (r *autoscanRepository) UpdateAutoscanDirectory(e AutoscanEntry) (int64, error) {
	existing, err := r.GetAutoscanList("")
	if err != nil {
		return 0, err
	}
	for _, other := range existing {
		if other.ID == e.ID {
			continue
		}
		if overlaps(e.Location, other.Location) {
			return 0, model.InvalidArgs("autoscan location %q overlaps existing autoscan %q", e.Location, other.Location)
		}
	}

	row := e.toRow()
	id, err := r.put(e.ID, row)
	if err != nil {
		return 0, model.ActionFailed(err)
	}
	return id, nil
}

// RemoveAutoscanDirectory deletes the entry rooted at storageID.
func (r *autoscanRepository) RemoveAutoscanDirectory(storageID int64) error {
	if err := r.delete(sq.Eq{"storage_id": storageID}); err != nil {
		return model.ActionFailed(err)
	}
	return nil
}

// GetAutoscanEntry returns the autoscan entry rooted at storageID, or
// nil if none is configured there.
func (r *autoscanRepository) GetAutoscanEntry(storageID int64) (*AutoscanEntry, error) {
	sel := r.newSelect().Where(sq.Eq{"storage_id": storageID})
	var row autoscanRow
	if err := r.queryOne(sel, &row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, model.ActionFailed(err)
	}
	e := row.toEntry()
	return &e, nil
}

// UpdateLastModified persists the high-water mark reached by the
// autoscan cycle rooted at storageID, without touching any of the
// entry's other columns.
func (r *autoscanRepository) UpdateLastModified(storageID int64, t time.Time) error {
	upd := sq.Update(r.tableName).
		Set("last_modified", t.UTC().Format(time.RFC3339Nano)).
		Where(sq.Eq{"storage_id": storageID}).
		PlaceholderFormat(sq.Question)
	if _, err := r.executeSQL(upd); err != nil {
		return model.ActionFailed(err)
	}
	return nil
}

// overlaps reports whether a and b coincide or one is a directory-
// boundary-respecting ancestor of the other.
func overlaps(a, b string) bool {
	a = strings.TrimSuffix(a, "/")
	b = strings.TrimSuffix(b, "/")
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

func (e AutoscanEntry) toRow() *autoscanRow {
	ids := make([]string, len(e.PathIDs))
	for i, id := range e.PathIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return &autoscanRow{
		ID:           e.ID,
		StorageID:    e.StorageID,
		Location:     e.Location,
		ScanMode:     string(e.Mode),
		ScanLevel:    string(e.Level),
		Recursive:    e.Recursive,
		HiddenFiles:  e.HiddenFiles,
		Interval:     e.Interval,
		LastModified: e.LastModified.UTC().Format(time.RFC3339Nano),
		PathIDs:      strings.Join(ids, ","),
	}
}

func (r autoscanRow) toEntry() AutoscanEntry {
	var ids []int64
	if r.PathIDs != "" {
		for _, s := range strings.Split(r.PathIDs, ",") {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				ids = append(ids, n)
			}
		}
	}
	lastModified, _ := time.Parse(time.RFC3339, r.LastModified)
	return AutoscanEntry{
		ID:           r.ID,
		StorageID:    r.StorageID,
		Location:     r.Location,
		Mode:         config.ScanMode(r.ScanMode),
		Level:        config.ScanLevel(r.ScanLevel),
		Recursive:    r.Recursive,
		HiddenFiles:  r.HiddenFiles,
		Interval:     r.Interval,
		LastModified: lastModified,
		PathIDs:      ids,
	}
}

