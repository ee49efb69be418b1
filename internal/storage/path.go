package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/opencds/mediaserver/internal/model"
)

// escapeComponent escapes `/` and `\` inside a single virtual path
// component, per spec §4.2 Container chain.
func escapeComponent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '/':
			b.WriteString(`\/`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitEscapedPath splits a `/`-separated virtual path into its
// components, honoring `\/` and `\\` escapes, the inverse of the join
// add_container_chain's caller performs over escapeComponent.
func splitEscapedPath(vpath string) []string {
	vpath = strings.TrimPrefix(vpath, "/")
	if vpath == "" {
		return nil
	}
	var comps []string
	var cur strings.Builder
	escaped := false
	for _, r := range vpath {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '/':
			comps = append(comps, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	comps = append(comps, cur.String())
	return comps
}

// AddContainerChain walks vpath's components left to right, creating
// any missing ancestor container, and returns the leaf id and the id of
// the highest ancestor whose child set changed (spec §4.2 Container
// chain). Only the leaf receives lastClass/lastRefID.
func (s *Store) AddContainerChain(ctx context.Context, vpath string, lastClass string, lastRefID *int64) (leafID int64, topmostChanged int64, err error) {
	components := splitEscapedPath(vpath)
	if len(components) == 0 {
		return 0, 0, model.InvalidArgs("empty container chain path")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, model.ActionFailed(err)
	}
	defer tx.Rollback()

	parent := model.IDRoot
	topmostChanged = model.IDNone
	for i, comp := range components {
		id, created, walkErr := findOrCreateContainer(ctx, tx, comp, parent)
		if walkErr != nil {
			return 0, 0, model.ActionFailed(walkErr)
		}
		if created && topmostChanged == model.IDNone {
			topmostChanged = parent
		}
		isLeaf := i == len(components)-1
		if isLeaf && (lastClass != "" || lastRefID != nil) {
			if updateErr := applyLeafAttrs(ctx, tx, id, lastClass, lastRefID); updateErr != nil {
				return 0, 0, model.ActionFailed(updateErr)
			}
		}
		parent = id
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, model.ActionFailed(err)
	}
	if topmostChanged == model.IDNone {
		topmostChanged = parent
	}
	return parent, topmostChanged, nil
}

func findOrCreateContainer(ctx context.Context, tx *sql.Tx, title string, parent int64) (id int64, created bool, err error) {
	err = tx.QueryRowContext(ctx,
		`select id from mt_cds_object where parent_id = ? and dc_title = ? and object_type & ? != 0`,
		parent, title, uint32(model.TypeContainer)).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, err
	}

	res, err := tx.ExecContext(ctx,
		`insert into mt_cds_object(parent_id, object_type, restricted, virtual, dc_title, upnp_class, searchable, metadata, auxdata, resources)
		 values (?, ?, 0, 1, ?, 'object.container.storageFolder', 0, '', '', '')`,
		parent, uint32(model.TypeContainer), title)
	if err != nil {
		return 0, false, err
	}
	id, err = res.LastInsertId()
	return id, true, err
}

func applyLeafAttrs(ctx context.Context, tx *sql.Tx, id int64, class string, refID *int64) error {
	if class != "" {
		if _, err := tx.ExecContext(ctx, `update mt_cds_object set upnp_class = ? where id = ?`, class, id); err != nil {
			return err
		}
	}
	if refID != nil {
		if _, err := tx.ExecContext(ctx, `update mt_cds_object set ref_id = ? where id = ?`, *refID, id); err != nil {
			return err
		}
	}
	return nil
}

// EnsurePathExistence walks a physical filesystem path, escaping each
// component, and returns the leaf PC-Directory container id, creating
// any missing ancestors under CDS_ID_FS_ROOT.
func (s *Store) EnsurePathExistence(ctx context.Context, fsPath string) (int64, error) {
	vpath := "/" + strings.Trim(fsPath, "/")
	parts := strings.Split(strings.Trim(vpath, "/"), "/")
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = escapeComponent(p)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, model.ActionFailed(err)
	}
	defer tx.Rollback()

	parent := model.IDFilesystem
	for _, comp := range escaped {
		id, _, err := findOrCreateContainer(ctx, tx, comp, parent)
		if err != nil {
			return 0, model.ActionFailed(err)
		}
		parent = id
	}
	if err := tx.Commit(); err != nil {
		return 0, model.ActionFailed(err)
	}
	return parent, nil
}
