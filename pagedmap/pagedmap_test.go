package pagedmap

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/INLOpen/obsbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestMap(t *testing.T, threshold int64) *Map {
	t.Helper()
	m, err := Open(Options{
		Dir:                   filepath.Join(t.TempDir(), "map"),
		MemtableSizeThreshold: threshold,
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMap_PutGetRemove(t *testing.T) {
	m := openTestMap(t, 4*1024*1024)

	require.NoError(t, m.Put([]byte("a"), []byte("1")))
	require.NoError(t, m.Put([]byte("b"), []byte("2")))

	v, found, err := m.Get([]byte("a"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("1"), v)

	ok, err := m.ContainsKey([]byte("b"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Remove([]byte("a")))
	_, found, err = m.Get([]byte("a"))
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = m.Get([]byte("missing"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMap_PutOverwrite(t *testing.T) {
	m := openTestMap(t, 4*1024*1024)

	require.NoError(t, m.Put([]byte("k"), []byte("v1")))
	require.NoError(t, m.Put([]byte("k"), []byte("v2")))

	v, found, err := m.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v2"), v)
}

func TestMap_RangeCursorOrdering(t *testing.T) {
	m := openTestMap(t, 4*1024*1024)

	keys := []string{"c", "a", "e", "b", "d"}
	for _, k := range keys {
		require.NoError(t, m.Put([]byte(k), []byte(k+"-val")))
	}

	cur, err := m.RangeCursor(nil, nil, core.Ascending)
	require.NoError(t, err)
	defer cur.Close()

	var got []string
	for cur.Next() {
		k, _, _, _ := cur.At()
		got = append(got, string(k))
	}
	require.NoError(t, cur.Error())
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)

	curDesc, err := m.RangeCursor(nil, nil, core.Descending)
	require.NoError(t, err)
	defer curDesc.Close()

	var gotDesc []string
	for curDesc.Next() {
		k, _, _, _ := curDesc.At()
		gotDesc = append(gotDesc, string(k))
	}
	require.NoError(t, curDesc.Error())
	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, gotDesc)
}

func TestMap_RangeCursorSkipsTombstones(t *testing.T) {
	m := openTestMap(t, 4*1024*1024)

	require.NoError(t, m.Put([]byte("a"), []byte("1")))
	require.NoError(t, m.Put([]byte("b"), []byte("2")))
	require.NoError(t, m.Put([]byte("c"), []byte("3")))
	require.NoError(t, m.Remove([]byte("b")))

	cur, err := m.RangeCursor(nil, nil, core.Ascending)
	require.NoError(t, err)
	defer cur.Close()

	var got []string
	for cur.Next() {
		k, _, _, _ := cur.At()
		got = append(got, string(k))
	}
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestMap_FloorCeilingKey(t *testing.T) {
	m := openTestMap(t, 4*1024*1024)

	for _, k := range []string{"10", "20", "30", "40"} {
		require.NoError(t, m.Put([]byte(k), []byte("v")))
	}

	floor, found, err := m.FloorKey([]byte("25"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("20"), floor)

	ceil, found, err := m.CeilingKey([]byte("25"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("30"), ceil)

	_, found, err = m.FloorKey([]byte("05"))
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = m.CeilingKey([]byte("99"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMap_RankOf(t *testing.T) {
	m := openTestMap(t, 4*1024*1024)
	for _, k := range []string{"10", "20", "30", "40"} {
		require.NoError(t, m.Put([]byte(k), []byte("v")))
	}

	rank, err := m.RankOf([]byte("30"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, rank)

	rank, err = m.RankOf([]byte("00"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, rank)
}

func TestMap_Txn_RollbackRestoresPriorState(t *testing.T) {
	m := openTestMap(t, 4*1024*1024)
	require.NoError(t, m.Put([]byte("k"), []byte("original")))

	txn := m.BeginTxn()
	require.NoError(t, txn.Put([]byte("k"), []byte("changed")))
	require.NoError(t, txn.Put([]byte("new-key"), []byte("v")))
	require.NoError(t, txn.Remove([]byte("new-key")))

	require.NoError(t, txn.Rollback())

	v, found, err := m.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("original"), v)

	_, found, err = m.Get([]byte("new-key"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMap_Txn_CommitKeepsChanges(t *testing.T) {
	m := openTestMap(t, 4*1024*1024)

	txn := m.BeginTxn()
	require.NoError(t, txn.Put([]byte("k"), []byte("v")))
	require.NoError(t, txn.Commit())

	v, found, err := m.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), v)
}

func TestMap_Clear(t *testing.T) {
	m := openTestMap(t, 4*1024*1024)

	require.NoError(t, m.Put([]byte("a"), []byte("1")))
	require.NoError(t, m.Put([]byte("b"), []byte("2")))

	require.NoError(t, m.Clear())

	_, found, err := m.Get([]byte("a"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.Put([]byte("c"), []byte("3")))
	v, found, err := m.Get([]byte("c"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("3"), v)
}

func TestMap_FlushToSSTableAndReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "map")
	m, err := Open(Options{Dir: dir, MemtableSizeThreshold: 256})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		require.NoError(t, m.Put(key, []byte(fmt.Sprintf("value-%04d", i))))
	}
	require.NoError(t, m.Close())

	reopened, err := Open(Options{Dir: dir, MemtableSizeThreshold: 256})
	require.NoError(t, err)
	defer reopened.Close()

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		v, found, err := reopened.Get(key)
		require.NoError(t, err)
		require.True(t, found, "key %s should survive reopen", key)
		assert.Equal(t, fmt.Sprintf("value-%04d", i), string(v))
	}

	cur, err := reopened.RangeCursor(nil, nil, core.Ascending)
	require.NoError(t, err)
	defer cur.Close()

	var count int
	for cur.Next() {
		count++
	}
	require.NoError(t, cur.Error())
	assert.Equal(t, 50, count)
}
