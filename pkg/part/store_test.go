package part_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/downfa11-org/partq/pkg/part"
	"github.com/downfa11-org/partq/pkg/record"
)

func mustAppend(t *testing.T, s *part.Store, bodies ...string) {
	t.Helper()
	for _, body := range bodies {
		_, err := s.Append(record.MsgTypeObject, []byte(body))
		require.NoError(t, err)
	}
}

func readAll(t *testing.T, dir string, num uint64) []string {
	t.Helper()
	r, err := part.OpenReader(dir, num, false)
	require.NoError(t, err)
	defer r.Close()

	var bodies []string
	var off int64
	for {
		rec, next, err := r.ReadRecordAt(off)
		if errors.Is(err, io.EOF) || errors.Is(err, part.ErrTruncated) {
			return bodies
		}
		require.NoError(t, err)
		bodies = append(bodies, string(rec.Body))
		off = next
	}
}

func TestStoreAppendReadBack(t *testing.T) {
	dir := t.TempDir()

	s, err := part.Create(dir, 0, 0, part.SyncAlways)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		idx, err := s.Append(record.MsgTypeObject, []byte(strconv.Itoa(i)))
		require.NoError(t, err)
		require.Equal(t, uint64(i), idx)
	}
	require.Equal(t, uint64(5), s.RecordCount())
	wantLen := int64(5 * (record.Overhead + 1))
	require.Equal(t, wantLen, s.Len())

	require.Equal(t, []string{"0", "1", "2", "3", "4"}, readAll(t, dir, 0))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	meta, err := part.ReadMeta(filepath.Join(dir, part.FormatMetaName(0)))
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.Equal(t, uint64(5), meta.Records)
	require.Equal(t, wantLen, meta.Bytes)
	require.False(t, meta.Sealed)
}

func TestCreateRefusesExistingPart(t *testing.T) {
	dir := t.TempDir()
	s, err := part.Create(dir, 1, 0, part.SyncAlways)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = part.Create(dir, 1, 0, part.SyncAlways)
	require.Error(t, err)
}

func TestAppendAfterCloseFails(t *testing.T) {
	s, err := part.Create(t.TempDir(), 0, 0, part.SyncAlways)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Append(record.MsgTypeString, []byte("late"))
	require.ErrorIs(t, err, part.ErrClosed)
}

func TestAppendRejectsInvalidType(t *testing.T) {
	s, err := part.Create(t.TempDir(), 0, 0, part.SyncAlways)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Append(record.MsgType('X'), []byte("bad"))
	require.ErrorIs(t, err, record.ErrInvalidTag)
	require.Zero(t, s.RecordCount())
	require.Zero(t, s.Len())
}

func TestAttachResumesIndexes(t *testing.T) {
	dir := t.TempDir()

	s, err := part.Create(dir, 0, 0, part.SyncAlways)
	require.NoError(t, err)
	mustAppend(t, s, "a", "b")
	require.NoError(t, s.Close())

	s, err = part.Attach(dir, 0, 0, part.SyncAlways)
	require.NoError(t, err)
	idx, err := s.Append(record.MsgTypeObject, []byte("c"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), idx)
	require.NoError(t, s.Close())

	require.Equal(t, []string{"a", "b", "c"}, readAll(t, dir, 0))
}

func TestAttachTruncatesTornTail(t *testing.T) {
	dir := t.TempDir()

	s, err := part.Create(dir, 0, 0, part.SyncAlways)
	require.NoError(t, err)
	mustAppend(t, s, "alpha", "beta")
	clean := s.Len()
	require.NoError(t, s.Close())

	// A crash mid-append leaves a prefix of a valid frame at the tail.
	frame, err := record.EncodeFrame(record.MsgTypeObject, []byte("gamma"))
	require.NoError(t, err)
	path := filepath.Join(dir, part.FormatDataName(0))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write(frame[:len(frame)-3])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s, err = part.Attach(dir, 0, 0, part.SyncAlways)
	require.NoError(t, err)
	require.Equal(t, clean, s.Len())
	require.Equal(t, uint64(2), s.RecordCount())

	idx, err := s.Append(record.MsgTypeObject, []byte("gamma"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), idx)
	require.NoError(t, s.Close())

	require.Equal(t, []string{"alpha", "beta", "gamma"}, readAll(t, dir, 0))
}

func TestAttachWithoutSidecarRescans(t *testing.T) {
	dir := t.TempDir()

	s, err := part.Create(dir, 0, 0, part.SyncAlways)
	require.NoError(t, err)
	mustAppend(t, s, "one", "two", "three")
	require.NoError(t, s.Close())
	require.NoError(t, os.Remove(filepath.Join(dir, part.FormatMetaName(0))))

	s, err = part.Attach(dir, 0, 0, part.SyncAlways)
	require.NoError(t, err)
	require.Equal(t, uint64(3), s.RecordCount())
	require.NoError(t, s.Close())
}

func TestManualSyncBuffersWrites(t *testing.T) {
	dir := t.TempDir()

	s, err := part.Create(dir, 0, 0, part.SyncManual)
	require.NoError(t, err)
	mustAppend(t, s, "buffered")

	fi, err := os.Stat(filepath.Join(dir, part.FormatDataName(0)))
	require.NoError(t, err)
	require.Zero(t, fi.Size())

	require.NoError(t, s.Sync())
	fi, err = os.Stat(filepath.Join(dir, part.FormatDataName(0)))
	require.NoError(t, err)
	require.Equal(t, s.Len(), fi.Size())
	require.NoError(t, s.Close())
}

func BenchmarkStoreAppend(b *testing.B) {
	for _, size := range []int{64, 1024, 16 * 1024} {
		b.Run(strconv.Itoa(size), func(b *testing.B) {
			s, err := part.Create(b.TempDir(), 0, 0, part.SyncManual)
			if err != nil {
				b.Fatal(err)
			}
			defer s.Close()

			body := make([]byte, size)
			b.SetBytes(int64(size))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := s.Append(record.MsgTypeObject, body); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func TestSealRecordsDurableEnd(t *testing.T) {
	dir := t.TempDir()

	s, err := part.Create(dir, 0, 0, part.SyncAlways)
	require.NoError(t, err)
	mustAppend(t, s, "m1", "m2", "m3")
	clean := s.Len()
	require.NoError(t, s.Close())

	// Garbage past the last full frame must not count but must not be
	// chopped off either; sealed data files are never rewritten.
	path := filepath.Join(dir, part.FormatDataName(0))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xde, 0xad})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	meta, err := part.Seal(dir, 0)
	require.NoError(t, err)
	require.True(t, meta.Sealed)
	require.Equal(t, uint64(3), meta.Records)
	require.Equal(t, clean, meta.Bytes)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, clean+2, fi.Size())
}
