package content

import (
	"context"
	"sync/atomic"
)

// TaskKind tags what a queued unit of work does (spec §4.5 Scheduling model).
type TaskKind int

const (
	TaskAddFile TaskKind = iota
	TaskRemoveObject
	TaskRescanDirectory
	TaskLoadAccounting
)

// Priority selects which of the two queues a task is placed on.
type Priority int

const (
	PriorityHigh Priority = iota // Q1
	PriorityLow                  // Q2
)

// Task is one queued unit of work. Children spawned while running a
// task inherit ParentID so invalidate_task can cancel a whole subtree
// (spec §4.5 Cancellation and invalidation).
type Task struct {
	ID          int64
	ParentID    int64
	Kind        TaskKind
	Priority    Priority
	Cancellable bool
	Path        string // filesystem path for AddFile/RescanDirectory, empty otherwise
	ObjectID    int64  // target for RemoveObject/RescanDirectory
	Recursive   bool
	AllRefs     bool

	// AutoscanID is the storage id of the autoscan directory this task's
	// cycle belongs to (0 if the task isn't part of an autoscan run). The
	// autoscan supervisor uses it to track outstanding descendants of a
	// scan cycle across the root RescanDirectory task and every child
	// rescan task it spawns.
	AutoscanID int64

	invalid atomic.Bool
	run     func(ctx context.Context)
}

func (t *Task) markInvalid() { t.invalid.Store(true) }
func (t *Task) isValid() bool { return !t.invalid.Load() }
