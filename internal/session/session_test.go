package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetSession(t *testing.T) {
	m := New(time.Hour)
	s, err := m.CreateSession(time.Minute)
	require.NoError(t, err)
	require.Len(t, s.ID, idLength)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
}

func TestGetUnknownSessionExpired(t *testing.T) {
	m := New(time.Hour)
	_, err := m.Get("nonexistent")
	require.Error(t, err)
	var expiredErr *ErrSessionExpired
	require.ErrorAs(t, err, &expiredErr)
}

func TestSessionExpiresAfterTimeout(t *testing.T) {
	m := New(time.Hour)
	s, err := m.CreateSession(20 * time.Millisecond)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	_, err = m.Get(s.ID)
	require.Error(t, err)
}

func TestPendingUpdateIDsCollapseToAll(t *testing.T) {
	m := New(time.Hour)
	s, err := m.CreateSession(time.Minute)
	require.NoError(t, err)
	s.LoggedIn = true

	for i := int64(0); i < maxPendingUpdateIDs+1; i++ {
		m.ContainerChangedUI(i)
	}

	ids, all := s.TakeUpdateIDs()
	assert.True(t, all)
	assert.Empty(t, ids)
}

func TestPendingUpdateIDsReturnedAndCleared(t *testing.T) {
	m := New(time.Hour)
	s, err := m.CreateSession(time.Minute)
	require.NoError(t, err)
	s.LoggedIn = true

	m.ContainerChangedUI(1)
	m.ContainerChangedUI(2)

	ids, all := s.TakeUpdateIDs()
	assert.False(t, all)
	assert.ElementsMatch(t, []int64{1, 2}, ids)

	ids, all = s.TakeUpdateIDs()
	assert.False(t, all)
	assert.Empty(t, ids)
}

func TestPutToAndGetFromPlaceholders(t *testing.T) {
	m := New(time.Hour)
	s, err := m.CreateSession(time.Minute)
	require.NoError(t, err)

	s.PutTo(Primary, "browse_pos", "10")
	s.PutTo(Secondary, "browse_pos", "20")

	v, ok := s.GetFrom(Primary, "browse_pos")
	require.True(t, ok)
	assert.Equal(t, "10", v)

	v, ok = s.GetFrom(Secondary, "browse_pos")
	require.True(t, ok)
	assert.Equal(t, "20", v)
}
