package btree

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/intellect4all/kvkernel/blockfile"
	"github.com/intellect4all/kvkernel/common"
	"github.com/stretchr/testify/require"
)

func openTestTree(t *testing.T) *BTree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table.db")
	bf, err := blockfile.Create(path, 4096)
	require.NoError(t, err)
	pager := NewPager(bf, 16)
	bt, err := OpenWithPager(pager)
	require.NoError(t, err)
	t.Cleanup(func() { bt.Close() })
	return bt
}

func TestPutGetRoundTrip(t *testing.T) {
	bt := openTestTree(t)

	require.NoError(t, bt.Put([]byte("a"), []byte("1")))
	require.NoError(t, bt.Put([]byte("b"), []byte("2")))

	v, err := bt.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, "1", string(v))

	v, err = bt.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, "2", string(v))

	_, err = bt.Get([]byte("missing"))
	require.ErrorIs(t, err, common.ErrKeyNotFound)
}

func TestPutOverwrite(t *testing.T) {
	bt := openTestTree(t)
	require.NoError(t, bt.Put([]byte("k"), []byte("v1")))
	require.NoError(t, bt.Put([]byte("k"), []byte("v2")))

	v, err := bt.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(v))
}

func TestSplitsAcrossManyKeys(t *testing.T) {
	bt := openTestTree(t)

	const n = 2000
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%06d", i))
		val := []byte(fmt.Sprintf("value-%06d", i))
		require.NoError(t, bt.Put(key, val))
	}

	for i := 0; i < n; i += 37 {
		key := []byte(fmt.Sprintf("key-%06d", i))
		v, err := bt.Get(key)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("value-%06d", i), string(v))
	}
}

// TestSplitsWithSkewedValueSizes fills a page with many small records,
// then inserts one oversized value whose key sorts three quarters of the
// way through the existing keys, forcing a skew that a fixed-midpoint
// split cannot satisfy (the half holding the large value would overflow). splitLeafWithNew must retry split
// points away from the midpoint until it finds one where both halves
// fit, rather than failing the whole insert.
func TestSplitsWithSkewedValueSizes(t *testing.T) {
	bt := openTestTree(t)

	const n = 120
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		val := []byte(fmt.Sprintf("v%04d", i))
		require.NoError(t, bt.Put(key, val))
	}

	bigKey := []byte(fmt.Sprintf("key-%04d", 3*n/4))
	bigVal := make([]byte, 3000)
	for i := range bigVal {
		bigVal[i] = byte('a' + i%26)
	}
	require.NoError(t, bt.Put(bigKey, bigVal))

	v, err := bt.Get(bigKey)
	require.NoError(t, err)
	require.Equal(t, bigVal, v)

	for i := 0; i < n; i += 7 {
		key := []byte(fmt.Sprintf("key-%04d", i))
		if string(key) == string(bigKey) {
			continue
		}
		got, err := bt.Get(key)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("v%04d", i), string(got))
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	bt := openTestTree(t)
	require.NoError(t, bt.Put([]byte("x"), []byte("1")))

	removed, err := bt.Delete([]byte("x"))
	require.NoError(t, err)
	require.True(t, removed)

	_, err = bt.Get([]byte("x"))
	require.ErrorIs(t, err, common.ErrKeyNotFound)

	removed, err = bt.Delete([]byte("x"))
	require.NoError(t, err)
	require.False(t, removed)
}

func TestInsertUniqueCollision(t *testing.T) {
	bt := openTestTree(t)
	require.NoError(t, bt.InsertUnique([]byte("u"), []byte("1")))
	err := bt.InsertUnique([]byte("u"), []byte("2"))
	require.ErrorIs(t, err, common.ErrDuplicateKey)

	v, err := bt.Get([]byte("u"))
	require.NoError(t, err)
	require.Equal(t, "1", string(v))
}

func TestRangeIterationOrdered(t *testing.T) {
	bt := openTestTree(t)
	keys := []string{"c", "a", "e", "b", "d"}
	for _, k := range keys {
		require.NoError(t, bt.Put([]byte(k), []byte(k+"-v")))
	}

	it, err := bt.Range(nil, nil)
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	require.NoError(t, it.Error())
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
}

func TestRangeBounds(t *testing.T) {
	bt := openTestTree(t)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, bt.Put([]byte(k), []byte(k)))
	}

	it, err := bt.Range([]byte("b"), []byte("d"))
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	require.Equal(t, []string{"b", "c"}, got)
}

func TestCheckpointPersistsRootAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.db")
	bf, err := blockfile.Create(path, 4096)
	require.NoError(t, err)
	pager := NewPager(bf, 16)
	bt, err := OpenWithPager(pager)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		require.NoError(t, bt.Put([]byte(fmt.Sprintf("k%04d", i)), []byte(fmt.Sprintf("v%04d", i))))
	}
	require.NoError(t, bt.Close())

	bf2, err := blockfile.Open(path)
	require.NoError(t, err)
	pager2 := NewPager(bf2, 16)
	bt2, err := OpenWithPager(pager2)
	require.NoError(t, err)
	defer bt2.Close()

	v, err := bt2.Get([]byte("k0123"))
	require.NoError(t, err)
	require.Equal(t, "v0123", string(v))
}
