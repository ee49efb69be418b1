package update

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencds/mediaserver/internal/model"
	"github.com/opencds/mediaserver/internal/storage"
)

type fakeStore struct {
	mu        sync.Mutex
	containers map[int64]*model.Container
}

func newFakeStore() *fakeStore {
	return &fakeStore{containers: map[int64]*model.Container{
		10: {Header: model.Header{ID: 10}},
		20: {Header: model.Header{ID: 20}},
	}}
}

func (f *fakeStore) LoadObject(id int64) (model.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return nil, model.NotFound(id)
	}
	clone := c.Clone()
	return clone, nil
}

func (f *fakeStore) UpdateObject(obj model.Object) (storage.ChangedParents, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := obj.(*model.Container)
	f.containers[c.Header.ID] = c
	return storage.ChangedParents{}, nil
}

func TestContainerChangedBumpsUpdateIDOnce(t *testing.T) {
	store := newFakeStore()
	var emitted [][]Pair
	var mu sync.Mutex
	mgr := New(store, func(_ context.Context, pairs []Pair) {
		mu.Lock()
		emitted = append(emitted, pairs)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)

	mgr.ContainerChanged(ctx, 10)
	mgr.ContainerChanged(ctx, 10) // already pending: no-op, must not bump twice
	mgr.Flush(FlushASAP)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(emitted) == 1
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	pairs := emitted[0]
	mu.Unlock()
	require.Len(t, pairs, 1)
	assert.Equal(t, int64(10), pairs[0].ObjectID)
	assert.Equal(t, uint32(1), pairs[0].UpdateID)
}

func TestContainersChangedBatchesIntoOneEvent(t *testing.T) {
	store := newFakeStore()
	var emitted []Pair
	var mu sync.Mutex
	mgr := New(store, func(_ context.Context, pairs []Pair) {
		mu.Lock()
		emitted = append(emitted, pairs...)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)

	mgr.ContainersChanged(ctx, []int64{10, 20})
	mgr.Flush(FlushASAP)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(emitted) == 2
	}, 3*time.Second, 10*time.Millisecond)
}
