package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/intellect4all/kvkernel/common"
	"github.com/intellect4all/kvkernel/config"
	"github.com/stretchr/testify/require"
)

func openTestConn(t *testing.T) *Connection {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default(dir)
	conn, err := Open(dir, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSimplePutGet(t *testing.T) {
	conn := openTestConn(t)
	sess := conn.OpenSession()
	require.NoError(t, sess.Create("table:orders"))

	st, err := sess.Transaction()
	require.NoError(t, err)
	defer st.Close()

	cur, err := sess.OpenCursor("table:orders")
	require.NoError(t, err)
	require.NoError(t, cur.Insert([]byte("k1"), []byte("v1")))

	value, found, err := cur.Get([]byte("k1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", string(value))

	require.NoError(t, st.Commit())
}

func TestSnapshotIsolationAcrossSessions(t *testing.T) {
	conn := openTestConn(t)
	writer := conn.OpenSession()
	require.NoError(t, writer.Create("table:orders"))

	wst, err := writer.Transaction()
	require.NoError(t, err)
	wcur, err := writer.OpenCursor("table:orders")
	require.NoError(t, err)
	require.NoError(t, wcur.Insert([]byte("k1"), []byte("v1")))

	reader := conn.OpenSession()
	rst, err := reader.Transaction()
	require.NoError(t, err)
	defer rst.Close()
	rcur, err := reader.OpenCursor("table:orders")
	require.NoError(t, err)

	_, found, err := rcur.Get([]byte("k1"))
	require.NoError(t, err)
	require.False(t, found, "uncommitted write must not be visible to a concurrent snapshot")

	require.NoError(t, wst.Commit())

	_, found, err = rcur.Get([]byte("k1"))
	require.NoError(t, err)
	require.False(t, found, "a snapshot taken before commit never sees it, even after commit")
}

func TestAbortRollsBackWrite(t *testing.T) {
	conn := openTestConn(t)
	sess := conn.OpenSession()
	require.NoError(t, sess.Create("table:orders"))

	st, err := sess.Transaction()
	require.NoError(t, err)
	cur, err := sess.OpenCursor("table:orders")
	require.NoError(t, err)
	require.NoError(t, cur.Insert([]byte("k1"), []byte("v1")))
	require.NoError(t, st.Abort())

	st2, err := sess.Transaction()
	require.NoError(t, err)
	defer st2.Close()
	cur2, err := sess.OpenCursor("table:orders")
	require.NoError(t, err)
	_, found, err := cur2.Get([]byte("k1"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestInsertUniqueCollision(t *testing.T) {
	conn := openTestConn(t)
	sess := conn.OpenSession()
	require.NoError(t, sess.Create("table:orders"))

	st, err := sess.Transaction()
	require.NoError(t, err)
	defer st.Close()
	cur, err := sess.OpenCursor("table:orders")
	require.NoError(t, err)

	require.NoError(t, cur.Insert([]byte("k1"), []byte("v1")))
	err = cur.Insert([]byte("k1"), []byte("v2"))
	require.ErrorIs(t, err, common.ErrDuplicateKey)
}

func TestUpdateAndDeleteRequireExistingKey(t *testing.T) {
	conn := openTestConn(t)
	sess := conn.OpenSession()
	require.NoError(t, sess.Create("table:orders"))
	st, err := sess.Transaction()
	require.NoError(t, err)
	defer st.Close()
	cur, err := sess.OpenCursor("table:orders")
	require.NoError(t, err)

	err = cur.Update([]byte("missing"), []byte("v"))
	require.ErrorIs(t, err, common.ErrKeyNotFound)

	err = cur.Delete([]byte("missing"))
	require.ErrorIs(t, err, common.ErrKeyNotFound)

	require.NoError(t, cur.Insert([]byte("k1"), []byte("v1")))
	require.NoError(t, cur.Update([]byte("k1"), []byte("v2")))
	value, found, err := cur.Get([]byte("k1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v2", string(value))

	require.NoError(t, cur.Delete([]byte("k1")))
	_, found, err = cur.Get([]byte("k1"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestScanRangeAcrossCommittedAndPending(t *testing.T) {
	conn := openTestConn(t)
	sess := conn.OpenSession()
	require.NoError(t, sess.Create("table:orders"))

	st, err := sess.Transaction()
	require.NoError(t, err)
	cur, err := sess.OpenCursor("table:orders")
	require.NoError(t, err)
	require.NoError(t, cur.Insert([]byte("a"), []byte("1")))
	require.NoError(t, cur.Insert([]byte("b"), []byte("2")))
	require.NoError(t, cur.Insert([]byte("c"), []byte("3")))
	require.NoError(t, st.Commit())

	st2, err := sess.Transaction()
	require.NoError(t, err)
	defer st2.Close()
	cur2, err := sess.OpenCursor("table:orders")
	require.NoError(t, err)
	cur2.SetRange([]byte("b"), nil)

	var keys []string
	for {
		k, _, found, err := cur2.Next()
		require.NoError(t, err)
		if !found {
			break
		}
		keys = append(keys, string(k))
	}
	require.Equal(t, []string{"b", "c"}, keys)
}

func TestIndexURIBookkeeping(t *testing.T) {
	conn := openTestConn(t)
	sess := conn.OpenSession()
	require.NoError(t, sess.Create("table:orders"))
	require.NoError(t, sess.Create("index:orders:byEmail"))

	cat, err := loadOrCreateIndexCatalog(conn.basePath, "orders")
	require.NoError(t, err)
	storeName, ok := cat.StoreName("byEmail")
	require.True(t, ok)
	require.Equal(t, "orders__idx_byEmail", storeName)

	_, err = os.Stat(filepath.Join(conn.basePath, "orders.meta.json"))
	require.NoError(t, err)
}

func TestInvalidURIRejected(t *testing.T) {
	conn := openTestConn(t)
	sess := conn.OpenSession()

	err := sess.Create("table:")
	require.ErrorIs(t, err, common.ErrInvalidURI)

	err = sess.Create("bogus:thing")
	require.ErrorIs(t, err, common.ErrInvalidURI)

	err = sess.Create("index:orders:")
	require.ErrorIs(t, err, common.ErrInvalidURI)
}

func TestRecoveryReplaysCommittedAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(dir)

	conn, err := Open(dir, cfg)
	require.NoError(t, err)
	sess := conn.OpenSession()
	require.NoError(t, sess.Create("table:orders"))

	st, err := sess.Transaction()
	require.NoError(t, err)
	cur, err := sess.OpenCursor("table:orders")
	require.NoError(t, err)
	require.NoError(t, cur.Insert([]byte("k1"), []byte("v1")))
	require.NoError(t, st.Commit())

	st2, err := sess.Transaction()
	require.NoError(t, err)
	cur2, err := sess.OpenCursor("table:orders")
	require.NoError(t, err)
	require.NoError(t, cur2.Insert([]byte("k2"), []byte("v2")))
	require.NoError(t, st2.Abort())

	require.NoError(t, conn.Close())

	conn2, err := Open(dir, cfg)
	require.NoError(t, err)
	defer conn2.Close()

	sess2 := conn2.OpenSession()
	require.NoError(t, sess2.Create("table:orders"))
	rst, err := sess2.Transaction()
	require.NoError(t, err)
	defer rst.Close()
	rcur, err := sess2.OpenCursor("table:orders")
	require.NoError(t, err)

	value, found, err := rcur.Get([]byte("k1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", string(value))

	_, found, err = rcur.Get([]byte("k2"))
	require.NoError(t, err)
	require.False(t, found, "aborted write must not survive recovery")
}
