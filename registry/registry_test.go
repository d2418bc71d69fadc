package registry

import (
	"path/filepath"
	"testing"

	"github.com/INLOpen/obsbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, strategy IDStrategy) *Store {
	t.Helper()
	s, err := Open(Options{
		Dir:        filepath.Join(t.TempDir(), "registry"),
		IDStrategy: strategy,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RegisterSystemIdempotent(t *testing.T) {
	s := openTestStore(t, Sequential)

	id1, err := s.RegisterSystem(core.System{UID: "urn:s:a", Name: "sensor-a"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, id1)

	id2, err := s.RegisterSystem(core.System{UID: "urn:s:a", Name: "sensor-a-again"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	sys, found, err := s.GetSystem(id1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "sensor-a", sys.Name)

	sys2, found, err := s.GetSystemByUID("urn:s:a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id1, sys2.InternalID)
}

func TestStore_RegisterFoiAndExists(t *testing.T) {
	s := openTestStore(t, Sequential)

	id, err := s.RegisterFoi(core.FeatureOfInterest{UID: "urn:foi:1"})
	require.NoError(t, err)

	ok, err := s.FoiExists(id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.FoiExists(id + 1000)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_GetOrCreateStreamSequential(t *testing.T) {
	s := openTestStore(t, Sequential)

	vts := core.NewInstant(1700000000, 0)
	id1, err := s.GetOrCreateStream(1, "temperature", vts, nil, "json")
	require.NoError(t, err)
	assert.EqualValues(t, 1, id1)

	id2, err := s.GetOrCreateStream(1, "humidity", vts, nil, "json")
	require.NoError(t, err)
	assert.EqualValues(t, 2, id2)

	// Re-registering the identical triple is idempotent.
	id1Again, err := s.GetOrCreateStream(1, "temperature", vts, nil, "json")
	require.NoError(t, err)
	assert.Equal(t, id1, id1Again)

	info, found, err := s.Get(id1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "temperature", info.OutputName)
	assert.Equal(t, core.StreamStateLive, info.State)
}

func TestStore_GetOrCreateStreamUidHash(t *testing.T) {
	s := openTestStore(t, UidHash)

	vts := core.NewInstant(1700000000, 0)
	id1, err := s.GetOrCreateStream(1, "temperature", vts, nil, "json")
	require.NoError(t, err)

	id1Again, err := s.GetOrCreateStream(1, "temperature", vts, nil, "json")
	require.NoError(t, err)
	assert.Equal(t, id1, id1Again)

	id2, err := s.GetOrCreateStream(2, "pressure", vts, nil, "json")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestStore_LookupCurrentPrefersLiveNewestVersion(t *testing.T) {
	s := openTestStore(t, Sequential)

	older := core.NewInstant(1000, 0)
	newer := core.NewInstant(2000, 0)

	oldID, err := s.GetOrCreateStream(1, "temp", older, nil, "json")
	require.NoError(t, err)
	newID, err := s.GetOrCreateStream(1, "temp", newer, nil, "json")
	require.NoError(t, err)

	cur, found, err := s.LookupCurrent(1, "temp")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, newID, cur.StreamID)

	require.NoError(t, s.Retire(newID))

	cur2, found, err := s.LookupCurrent(1, "temp")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, oldID, cur2.StreamID)
}

func TestStore_ListFilterBySystem(t *testing.T) {
	s := openTestStore(t, Sequential)
	vts := core.NewInstant(1, 0)

	_, err := s.GetOrCreateStream(1, "a", vts, nil, "json")
	require.NoError(t, err)
	_, err = s.GetOrCreateStream(1, "b", vts, nil, "json")
	require.NoError(t, err)
	_, err = s.GetOrCreateStream(2, "c", vts, nil, "json")
	require.NoError(t, err)

	sysID := uint64(1)
	all, err := s.List(StreamFilter{SystemID: &sysID})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_RemoveStream(t *testing.T) {
	s := openTestStore(t, Sequential)
	vts := core.NewInstant(1, 0)

	id, err := s.GetOrCreateStream(1, "temp", vts, nil, "json")
	require.NoError(t, err)

	require.NoError(t, s.Remove(id))

	_, found, err := s.Get(id)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.Lookup(1, "temp", vts)
	require.NoError(t, err)
	assert.False(t, found)
}
