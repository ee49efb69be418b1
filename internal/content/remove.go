package content

import (
	"context"

	"github.com/opencds/mediaserver/internal/model"
)

// RemoveObject enqueues the removal of id (and, if allRefs, every
// reference item pointing at it) at priority (spec §4.5
// remove_object). Before the task runs, any still-pending AddFile task
// rooted under id's own location is invalidated so a rescan of a
// directory being deleted can't resurrect it.
func (m *Manager) RemoveObject(id int64, allRefs bool, priority Priority) {
	if obj, err := m.store.Objects().LoadObject(id); err == nil {
		if loc := obj.Head().Location; loc != "" {
			m.InvalidatePendingAddFilesUnder(loc)
		}
	}
	t := &Task{Kind: TaskRemoveObject, Priority: priority, ObjectID: id, AllRefs: allRefs, Cancellable: true}
	t.run = func(ctx context.Context) { m.runRemoveObject(ctx, t) }
	m.enqueue(t)
}

func (m *Manager) runRemoveObject(ctx context.Context, t *Task) {
	changed, err := m.store.RemoveObject(ctx, t.ObjectID, t.AllRefs)
	if err != nil {
		logErr(ctx, "remove_object: failed", err, "id", t.ObjectID)
		return
	}
	m.notifyChangedParents(ctx, changed)
}

// ConvertObject implements convert_object(obj, newType): toggling a
// plain Item into an ActiveItem (or back) within the Item hierarchy,
// copying every field the two share and discarding the rest (spec §4.2
// convert_object, Container conversions are out of scope — only the
// Item/ActiveItem pair shares enough structure to convert between).
func ConvertObject(obj model.Object, toActive bool) (model.Object, error) {
	switch src := obj.(type) {
	case *model.Item:
		if !toActive {
			return src, nil
		}
		dst := model.NewActiveItem()
		src.CopyTo(&dst.Item)
		return dst, nil
	case *model.ActiveItem:
		if toActive {
			return src, nil
		}
		dst := model.NewItem()
		src.Item.CopyTo(dst)
		return dst, nil
	default:
		return nil, model.InvalidArgs("object %d is not convertible between Item and ActiveItem", obj.Head().ID)
	}
}
