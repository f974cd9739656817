package queue_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/downfa11-org/partq/pkg/config"
	"github.com/downfa11-org/partq/pkg/part"
	"github.com/downfa11-org/partq/pkg/queue"
	"github.com/downfa11-org/partq/pkg/record"
)

func testConfig(t testing.TB) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseDir = t.TempDir()
	return cfg
}

func TestOpenCreatesFirstPart(t *testing.T) {
	cfg := testConfig(t)

	q, err := queue.Open(cfg, "orders", record.ModeReadWrite)
	require.NoError(t, err)
	require.True(t, q.IsReady())
	require.Equal(t, "orders", q.Name())
	require.Equal(t, record.ModeReadWrite, q.Mode())

	num, ok := q.ActivePart()
	require.True(t, ok)
	require.Zero(t, num)

	idx, err := q.PushString("hello")
	require.NoError(t, err)
	require.Zero(t, idx)
	idx, err = q.PushObject([]byte{0x01, 0x02})
	require.NoError(t, err)
	require.Equal(t, uint64(1), idx)

	n, err := q.CountPushed()
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)

	require.NoError(t, q.Close())
	require.False(t, q.IsReady())

	info, err := queue.ReadInfo(q.Dir())
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, "orders", info.Name)
	require.Zero(t, info.Part)
	require.Equal(t, q.Session(), info.Session)

	_, err = os.Stat(filepath.Join(q.Dir(), queue.LockFileName))
	require.NoError(t, err)
}

func TestReopenRotates(t *testing.T) {
	cfg := testConfig(t)

	q, err := queue.Open(cfg, "orders", record.ModeReadWrite)
	require.NoError(t, err)
	_, err = q.PushString("message1")
	require.NoError(t, err)
	_, err = q.PushString("message2")
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q, err = queue.Open(cfg, "orders", record.ModeReadWrite)
	require.NoError(t, err)
	defer q.Close()

	num, ok := q.ActivePart()
	require.True(t, ok)
	require.Equal(t, uint64(1), num)

	// count_pushed covers the active part only
	n, err := q.CountPushed()
	require.NoError(t, err)
	require.Zero(t, n)

	meta, err := part.ReadMeta(filepath.Join(q.Dir(), part.FormatMetaName(0)))
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.True(t, meta.Sealed)
	require.Equal(t, uint64(2), meta.Records)
}

func TestReopenAdoptsEmptyPart(t *testing.T) {
	cfg := testConfig(t)

	q, err := queue.Open(cfg, "orders", record.ModeReadWrite)
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q, err = queue.Open(cfg, "orders", record.ModeReadWrite)
	require.NoError(t, err)
	defer q.Close()

	num, ok := q.ActivePart()
	require.True(t, ok)
	require.Zero(t, num, "an empty part must be adopted, not rotated past")
}

func TestWriterLockExcludesSecondWriter(t *testing.T) {
	cfg := testConfig(t)

	q1, err := queue.Open(cfg, "orders", record.ModeReadWrite)
	require.NoError(t, err)

	_, err = queue.Open(cfg, "orders", record.ModeReadWrite)
	require.ErrorIs(t, err, queue.ErrLocked)

	// Default degrades instead of failing.
	q2, err := queue.Open(cfg, "orders", record.ModeDefault)
	require.NoError(t, err)
	require.Equal(t, record.ModeRead, q2.Mode())
	_, err = q2.PushString("nope")
	require.ErrorIs(t, err, queue.ErrReadOnly)
	require.NoError(t, q2.Close())

	require.NoError(t, q1.Close())

	q3, err := queue.Open(cfg, "orders", record.ModeDefault)
	require.NoError(t, err)
	require.Equal(t, record.ModeReadWrite, q3.Mode())
	require.NoError(t, q3.Close())
}

func TestReadOnlyHandle(t *testing.T) {
	cfg := testConfig(t)

	w, err := queue.Open(cfg, "orders", record.ModeReadWrite)
	require.NoError(t, err)
	_, err = w.PushString("a")
	require.NoError(t, err)
	_, err = w.PushString("b")
	require.NoError(t, err)

	// Concurrent with the live writer.
	r, err := queue.Open(cfg, "orders", record.ModeRead)
	require.NoError(t, err)
	require.True(t, r.IsReady())

	_, err = r.PushString("denied")
	require.ErrorIs(t, err, queue.ErrReadOnly)

	_, ok := r.ActivePart()
	require.False(t, ok)

	n, err := r.CountPushed()
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)

	require.NoError(t, r.Close())
	require.NoError(t, w.Close())
}

func TestReadOnlyMissingQueue(t *testing.T) {
	cfg := testConfig(t)

	q, err := queue.Open(cfg, "ghost", record.ModeRead)
	require.NoError(t, err)
	defer q.Close()

	n, err := q.CountPushed()
	require.NoError(t, err)
	require.Zero(t, n)

	// A read-only open must not create anything on disk.
	_, err = os.Stat(q.Dir())
	require.True(t, os.IsNotExist(err))
}

func TestPushRespectsMaxMessageBytes(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxMessageBytes = 4

	q, err := queue.Open(cfg, "orders", record.ModeReadWrite)
	require.NoError(t, err)
	defer q.Close()

	_, err = q.PushString("okay")
	require.NoError(t, err)
	_, err = q.PushString("too large")
	require.ErrorIs(t, err, queue.ErrMessageTooLarge)

	n, err := q.CountPushed()
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)
}

func TestOpenRejectsBadNames(t *testing.T) {
	cfg := testConfig(t)

	for _, name := range []string{"", "..", "a/b", "spaced name"} {
		_, err := queue.Open(cfg, name, record.ModeReadWrite)
		require.ErrorIs(t, err, queue.ErrBadName, "name %q", name)
	}
}

func BenchmarkQueuePush(b *testing.B) {
	cfg := testConfig(b)
	cfg.SyncPolicy = config.SyncPolicyManual

	q, err := queue.Open(cfg, "bench", record.ModeReadWrite)
	if err != nil {
		b.Fatal(err)
	}
	defer q.Close()

	body := make([]byte, 1024)
	b.SetBytes(int64(len(body)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := q.PushObject(body); err != nil {
			b.Fatal(err)
		}
	}
}
