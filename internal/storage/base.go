package storage

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/fatih/structs"
	"github.com/pocketbase/dbx"
)

// sqlRepository is the shared base every table-backed repository in this
// package embeds: a context, the dbx execution handle, and the table
// name, plus squirrel-builder helpers that run through the single
// worker-owned connection (grounded on the teacher's persistence package
// base type, which is referenced but not itself retrieved — authored
// here from its observed call shape in album_repository.go and
// sonos_device_token_repository.go).
type sqlRepository struct {
	ctx       context.Context
	db        dbx.Builder
	tableName string
}

// newSelect starts a SELECT * FROM <table> squirrel builder with the `?`
// placeholder format dbx.Params binding expects once rewritten.
func (r *sqlRepository) newSelect(columns ...string) sq.SelectBuilder {
	cols := columns
	if len(cols) == 0 {
		cols = []string{"*"}
	}
	return sq.Select(cols...).From(r.tableName).PlaceholderFormat(sq.Question)
}

// toQuery converts a squirrel Sqlizer (SELECT/UPDATE/DELETE/INSERT) into
// a dbx.Query bound against this repository's connection. squirrel emits
// `?` placeholders; dbx.Params only binds named `{:pN}` placeholders, so
// the SQL is rewritten positionally before binding.
func (r *sqlRepository) toQuery(stmt sq.Sqlizer) (*dbx.Query, error) {
	rawSQL, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building sql: %w", err)
	}
	named, params := rebindPositional(rawSQL, args)
	q := r.db.NewQuery(named)
	if len(params) > 0 {
		q.Bind(params)
	}
	return q.WithContext(r.ctx), nil
}

func rebindPositional(rawSQL string, args []interface{}) (string, dbx.Params) {
	var b strings.Builder
	params := dbx.Params{}
	i := 0
	for _, r := range rawSQL {
		if r == '?' && i < len(args) {
			name := fmt.Sprintf("p%d", i)
			b.WriteString("{:" + name + "}")
			params[name] = args[i]
			i++
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), params
}

// queryAll executes sel and scans every row into dest, a pointer to a
// slice of structs.
func (r *sqlRepository) queryAll(sel sq.SelectBuilder, dest interface{}) error {
	q, err := r.toQuery(sel)
	if err != nil {
		return err
	}
	return q.All(dest)
}

// queryOne executes sel and scans the single expected row into dest.
func (r *sqlRepository) queryOne(sel sq.SelectBuilder, dest interface{}) error {
	q, err := r.toQuery(sel)
	if err != nil {
		return err
	}
	return q.One(dest)
}

// executeSQL runs a squirrel INSERT/UPDATE/DELETE builder and returns
// the number of affected rows.
func (r *sqlRepository) executeSQL(stmt sq.Sqlizer) (int64, error) {
	q, err := r.toQuery(stmt)
	if err != nil {
		return 0, err
	}
	res, err := q.Execute()
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// count runs sel wrapped in a COUNT(*) and returns the scalar.
func (r *sqlRepository) count(sel sq.SelectBuilder) (int64, error) {
	countSel := sel.RemoveColumns().Columns("count(*)")
	q, err := r.toQuery(countSel)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.Row(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// put upserts row (a tagged struct, flattened via fatih/structs as the
// teacher's dbAlbum/dbArtist rows do) keyed by id: UPDATE, and if no row
// was affected, INSERT.
func (r *sqlRepository) put(id int64, row interface{}) (int64, error) {
	m := structs.Map(row)
	delete(m, "ID")

	upd := sq.Update(r.tableName).Where(sq.Eq{"id": id}).PlaceholderFormat(sq.Question)
	for k, v := range m {
		upd = upd.Set(strings.ToLower(k), v)
	}
	affected, err := r.executeSQL(upd)
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		return id, nil
	}

	m["id"] = id
	ins := sq.Insert(r.tableName).PlaceholderFormat(sq.Question)
	cols := make([]string, 0, len(m))
	vals := make([]interface{}, 0, len(m))
	for k, v := range m {
		cols = append(cols, strings.ToLower(k))
		vals = append(vals, v)
	}
	ins = ins.Columns(cols...).Values(vals...)
	if _, err := r.executeSQL(ins); err != nil {
		return 0, err
	}
	return id, nil
}

// delete removes rows matching pred.
func (r *sqlRepository) delete(pred sq.Sqlizer) error {
	del := sq.Delete(r.tableName).Where(pred).PlaceholderFormat(sq.Question)
	_, err := r.executeSQL(del)
	return err
}
