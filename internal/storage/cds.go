package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/opencds/mediaserver/internal/model"
)

// BrowseFlag selects Browse's result shape (spec §4.2 BrowseParam).
type BrowseFlag int

const (
	BrowseMetadata BrowseFlag = iota
	BrowseDirectChildren
)

// BrowseParam is the decoded form of a ContentDirectory Browse request.
type BrowseParam struct {
	ObjectID        int64
	Flag            BrowseFlag
	StartIndex      int
	RequestedCount  int // 0 means "all"
	ItemsOnly       bool
	ContainersOnly  bool
	ExactChildCount bool
	TrackSort       bool
	HideFsRoot      bool
}

// ChangedParents is the split result every mutating storage operation
// returns: ids needing a UPnP container-changed event and ids needing a
// web-UI refresh (spec §4.2 Removal semantics).
type ChangedParents struct {
	UPnP []int64
	UI   []int64
}

func (c *ChangedParents) addUPnP(id int64) {
	c.UPnP = append(c.UPnP, id)
}

type objectRepository struct {
	sqlRepository
}

// Objects exposes the object-graph half of the storage contract.
func (s *Store) Objects() *objectRepository { return s.objects }

// Autoscan exposes the autoscan-directory half of the storage contract.
func (s *Store) Autoscan() *autoscanRepository { return s.autoscan }

// Settings exposes get/store_internal_setting.
func (s *Store) Settings() *settingRepository { return s.settings }

// Bootstrap creates the two reserved rows (CDS_ID_ROOT, CDS_ID_FS_ROOT)
// if they don't already exist. Called once by the caller that opens the
// store for the first time (main, and storage tests).
func (s *Store) Bootstrap(ctx context.Context) error {
	for id, title := range map[int64]string{
		model.IDRoot:       "Root",
		model.IDFilesystem: "PC Directory",
	} {
		var n int64
		if err := s.sqlDB.QueryRowContext(ctx, `select count(*) from mt_cds_object where id = ?`, id).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		parent := model.IDRoot
		if id == model.IDRoot {
			parent = model.IDNone
		}
		_, err := s.sqlDB.ExecContext(ctx,
			`insert into mt_cds_object(id, parent_id, object_type, restricted, dc_title, upnp_class, virtual, metadata, auxdata, resources)
			 values (?, ?, ?, 1, ?, 'object.container.storageFolder', 1, '', '', '')`,
			id, parent, uint32(model.TypeContainer), title)
		if err != nil {
			return fmt.Errorf("bootstrapping object %d: %w", id, err)
		}
	}
	return nil
}

// AddObject inserts obj (which must have ParentID set and ID unset or 0)
// and returns its assigned id and the set of containers whose
// child_count changed (spec §4.2 add_object).
func (r *objectRepository) AddObject(obj model.Object) (int64, ChangedParents, error) {
	if err := obj.Validate(); err != nil {
		return 0, ChangedParents{}, model.BadMetadata(err)
	}
	row := fromObject(obj)
	row.ID = 0
	ins := sq.Insert(r.tableName).PlaceholderFormat(sq.Question).SetMap(insertMap(row))
	q, err := r.toQuery(ins)
	if err != nil {
		return 0, ChangedParents{}, model.ActionFailed(err)
	}
	res, err := q.Execute()
	if err != nil {
		return 0, ChangedParents{}, model.ActionFailed(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, ChangedParents{}, model.ActionFailed(err)
	}
	changed := ChangedParents{}
	changed.addUPnP(obj.Head().ParentID)
	changed.UI = append(changed.UI, obj.Head().ParentID)
	return id, changed, nil
}

// UpdateObject overwrites the stored row for obj.Head().ID.
func (r *objectRepository) UpdateObject(obj model.Object) (ChangedParents, error) {
	if obj.Head().ID < model.IDFirstValid {
		return ChangedParents{}, model.InvalidArgs("object id %d is reserved", obj.Head().ID)
	}
	if err := obj.Validate(); err != nil {
		return ChangedParents{}, model.BadMetadata(err)
	}
	existing, err := r.LoadObject(obj.Head().ID)
	if err != nil {
		return ChangedParents{}, err
	}
	if existing.Head().Restricted {
		return ChangedParents{}, model.Restricted(obj.Head().ID)
	}
	row := fromObject(obj)
	upd := sq.Update(r.tableName).SetMap(insertMap(row)).Where(sq.Eq{"id": obj.Head().ID}).PlaceholderFormat(sq.Question)
	if _, err := r.executeSQL(upd); err != nil {
		return ChangedParents{}, model.ActionFailed(err)
	}
	changed := ChangedParents{}
	changed.addUPnP(obj.Head().ParentID)
	changed.UI = append(changed.UI, obj.Head().ParentID)
	return changed, nil
}

// LoadObject fetches the object with the given id.
func (r *objectRepository) LoadObject(id int64) (model.Object, error) {
	sel := r.newSelect().Where(sq.Eq{"id": id})
	var row row
	if err := r.queryOne(sel, &row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NotFound(id)
		}
		return nil, model.ActionFailed(err)
	}
	return row.toObject()
}

// FindObjectByTitle looks up a direct child of parentID by exact title
// match (used by the container-chain builder).
func (r *objectRepository) FindObjectByTitle(title string, parentID int64) (model.Object, error) {
	sel := r.newSelect().Where(sq.Eq{"parent_id": parentID, "dc_title": title})
	var row row
	if err := r.queryOne(sel, &row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, model.ActionFailed(err)
	}
	return row.toObject()
}

// FindObjectByPath resolves a `/`-separated virtual path (components
// escaped as add_container_chain expects) to its object, if any.
func (r *objectRepository) FindObjectByPath(vpath string) (model.Object, error) {
	components := splitEscapedPath(vpath)
	var cur model.Object
	parent := model.IDRoot
	for i, comp := range components {
		obj, err := r.FindObjectByTitle(comp, parent)
		if err != nil {
			return nil, err
		}
		if obj == nil {
			return nil, nil
		}
		cur = obj
		if i < len(components)-1 && !obj.Type().IsContainer() {
			return nil, nil
		}
		parent = obj.Head().ID
	}
	return cur, nil
}

// GetObjects returns the set of child ids under parentID.
func (r *objectRepository) GetObjects(parentID int64, itemsOnly bool) ([]int64, error) {
	sel := r.newSelect("id", "object_type").Where(sq.Eq{"parent_id": parentID})
	var rows []row
	if err := r.queryAll(sel, &rows); err != nil {
		return nil, model.ActionFailed(err)
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		if itemsOnly && !model.ObjectType(row.ObjectType).IsItem() {
			continue
		}
		ids = append(ids, row.ID)
	}
	return ids, nil
}

// Browse implements the ContentDirectory Browse action's storage half
// (spec §4.2 BrowseParam).
func (r *objectRepository) Browse(p BrowseParam) ([]model.Object, int, error) {
	if p.Flag == BrowseMetadata {
		obj, err := r.LoadObject(p.ObjectID)
		if err != nil {
			return nil, 0, err
		}
		return []model.Object{obj}, 1, nil
	}

	if _, err := r.LoadObject(p.ObjectID); err != nil {
		return nil, 0, err
	}

	sel := r.newSelect().Where(sq.Eq{"parent_id": p.ObjectID})
	if p.ItemsOnly {
		sel = sel.Where("object_type & ? != 0", uint32(model.TypeItem))
	}
	if p.ContainersOnly {
		sel = sel.Where("object_type & ? != 0", uint32(model.TypeContainer))
	}
	// TrackSort orders by upnp:originalTrackNumber, which lives inside
	// the encoded metadata dict rather than its own column; sorted in
	// Go below once decoded instead of ordered in SQL.
	if !p.TrackSort {
		sel = sel.OrderBy("object_type, dc_title")
	}

	var rows []row
	if err := r.queryAll(sel, &rows); err != nil {
		return nil, 0, model.ActionFailed(err)
	}
	total := len(rows)

	objs := make([]model.Object, 0, len(rows))
	for _, row := range rows {
		obj, err := row.toObject()
		if err != nil {
			return nil, 0, model.ActionFailed(err)
		}
		objs = append(objs, obj)
	}
	if p.TrackSort {
		sortByTrackNumber(objs)
	}

	start := p.StartIndex
	if start > len(objs) {
		start = len(objs)
	}
	end := len(objs)
	if p.RequestedCount > 0 && start+p.RequestedCount < end {
		end = start + p.RequestedCount
	}
	return objs[start:end], total, nil
}

func sortByTrackNumber(objs []model.Object) {
	trackOf := func(o model.Object) int {
		n, _ := strconv.Atoi(o.Head().Metadata[model.PropOriginalTrackNum])
		return n
	}
	for i := 1; i < len(objs); i++ {
		for j := i; j > 0 && trackOf(objs[j]) < trackOf(objs[j-1]); j-- {
			objs[j], objs[j-1] = objs[j-1], objs[j]
		}
	}
}

// RemoveObject deletes id and, if it is a container, every descendant.
// When allRefs is set, virtual items whose ref_id pointed at any removed
// id are deleted too; otherwise they are kept with their ref_id cleared
// (spec §4.2 Removal semantics). It runs as a single
// transaction directly against the pooled connection: the descendant
// walk and the ref-cleanup both need a consistent view that outlives
// any one squirrel-built statement.
func (s *Store) RemoveObject(ctx context.Context, id int64, allRefs bool) (ChangedParents, error) {
	if id < model.IDFirstValid {
		return ChangedParents{}, model.InvalidArgs("object id %d is reserved", id)
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return ChangedParents{}, model.ActionFailed(err)
	}
	defer tx.Rollback()

	var parentID int64
	if err := tx.QueryRowContext(ctx, `select parent_id from mt_cds_object where id = ?`, id).Scan(&parentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ChangedParents{}, model.NotFound(id)
		}
		return ChangedParents{}, model.ActionFailed(err)
	}

	removed, err := collectDescendants(ctx, tx, id)
	if err != nil {
		return ChangedParents{}, model.ActionFailed(err)
	}

	placeholders := make([]string, len(removed))
	args := make([]interface{}, len(removed))
	for i, rid := range removed {
		placeholders[i] = "?"
		args[i] = rid
	}

	if allRefs {
		if err := deleteRefsTo(ctx, tx, removed); err != nil {
			return ChangedParents{}, model.ActionFailed(err)
		}
	} else {
		// ref_id is a foreign key, so kept virtual items lose the link
		// instead of pointing at a deleted row.
		if _, err := tx.ExecContext(ctx, `update mt_cds_object set ref_id = null where ref_id in (`+strings.Join(placeholders, ",")+`)`, args...); err != nil {
			return ChangedParents{}, model.ActionFailed(err)
		}
	}

	if _, err := tx.ExecContext(ctx, `delete from mt_cds_object where id in (`+strings.Join(placeholders, ",")+`)`, args...); err != nil {
		return ChangedParents{}, model.ActionFailed(err)
	}

	if err := tx.Commit(); err != nil {
		return ChangedParents{}, model.ActionFailed(err)
	}

	changed := ChangedParents{}
	changed.addUPnP(parentID)
	changed.UI = append(changed.UI, parentID)
	return changed, nil
}

func collectDescendants(ctx context.Context, tx *sql.Tx, root int64) ([]int64, error) {
	all := []int64{root}
	frontier := []int64{root}
	for len(frontier) > 0 {
		placeholders := make([]string, len(frontier))
		args := make([]interface{}, len(frontier))
		for i, id := range frontier {
			placeholders[i] = "?"
			args[i] = id
		}
		rows, err := tx.QueryContext(ctx, `select id from mt_cds_object where parent_id in (`+strings.Join(placeholders, ",")+`)`, args...)
		if err != nil {
			return nil, err
		}
		var next []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			next = append(next, id)
		}
		rows.Close()
		all = append(all, next...)
		frontier = next
	}
	return all, nil
}

func deleteRefsTo(ctx context.Context, tx *sql.Tx, ids []int64) error {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	_, err := tx.ExecContext(ctx, `delete from mt_cds_object where ref_id in (`+strings.Join(placeholders, ",")+`)`, args...)
	return err
}

// GetTotalFiles returns the count of non-virtual item rows.
func (r *objectRepository) GetTotalFiles() (int64, error) {
	sel := r.newSelect().Where(sq.Eq{"virtual": false}).Where("object_type & ? != 0", uint32(model.TypeItem))
	return r.count(sel)
}

// GetMimeTypes returns the distinct set of mime types present in the
// catalog.
func (r *objectRepository) GetMimeTypes() ([]string, error) {
	sel := sq.Select("distinct mime_type").From(r.tableName).Where(sq.NotEq{"mime_type": ""}).PlaceholderFormat(sq.Question)
	var out []struct {
		MimeType string `db:"mime_type"`
	}
	if err := r.queryAll(sel, &out); err != nil {
		return nil, model.ActionFailed(err)
	}
	types := make([]string, len(out))
	for i, o := range out {
		types[i] = o.MimeType
	}
	return types, nil
}

func insertMap(row *row) map[string]interface{} {
	m := map[string]interface{}{
		"ref_id":         nil,
		"parent_id":      row.ParentID,
		"object_type":    row.ObjectType,
		"flags":          row.Flags,
		"restricted":     row.Restricted,
		"virtual":        row.Virtual,
		"dc_title":       row.Title,
		"dc_description": row.Description,
		"upnp_class":     row.Class,
		"location":       row.Location,
		"mime_type":      row.MimeType,
		"action":         row.Action,
		"state":          row.State,
		"update_id":      row.UpdateID,
		"searchable":     row.Searchable,
		"metadata":       row.Metadata,
		"auxdata":        row.AuxData,
		"resources":      row.Resources,
		"service_id":     nil,
	}
	if row.RefID.Valid {
		m["ref_id"] = row.RefID.Int64
	}
	if row.ServiceID.Valid {
		m["service_id"] = row.ServiceID.String
	}
	return m
}

