package part_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/downfa11-org/partq/pkg/part"
	"github.com/downfa11-org/partq/pkg/record"
)

func writeFrames(t *testing.T, dir string, num uint64, bodies ...string) int64 {
	t.Helper()
	s, err := part.Create(dir, num, 0, part.SyncAlways)
	require.NoError(t, err)
	for _, b := range bodies {
		_, err := s.Append(record.MsgTypeObject, []byte(b))
		require.NoError(t, err)
	}
	size := s.Len()
	require.NoError(t, s.Close())
	return size
}

func TestReaderCleanEnd(t *testing.T) {
	dir := t.TempDir()
	size := writeFrames(t, dir, 0, "x", "yy")

	r, err := part.OpenReader(dir, 0, false)
	require.NoError(t, err)
	defer r.Close()

	rec, next, err := r.ReadRecordAt(0)
	require.NoError(t, err)
	require.Equal(t, record.MsgTypeObject, rec.Type)
	require.Equal(t, []byte("x"), rec.Body)
	require.Equal(t, record.FrameSize(1), next)

	rec, next, err = r.ReadRecordAt(next)
	require.NoError(t, err)
	require.Equal(t, []byte("yy"), rec.Body)
	require.Equal(t, size, next)

	_, _, err = r.ReadRecordAt(next)
	require.ErrorIs(t, err, io.EOF)

	got, err := r.Size()
	require.NoError(t, err)
	require.Equal(t, size, got)
}

func TestReaderTornTail(t *testing.T) {
	dir := t.TempDir()
	size := writeFrames(t, dir, 0, "whole")

	frame, err := record.EncodeFrame(record.MsgTypeString, []byte("partial"))
	require.NoError(t, err)
	path := filepath.Join(dir, part.FormatDataName(0))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write(frame[:len(frame)-2])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := part.OpenReader(dir, 0, false)
	require.NoError(t, err)
	defer r.Close()

	_, next, err := r.ReadRecordAt(0)
	require.NoError(t, err)
	require.Equal(t, size, next)

	_, _, err = r.ReadRecordAt(next)
	require.ErrorIs(t, err, part.ErrTruncated)
}

func TestReaderCorruptBody(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 0, "stable")

	path := filepath.Join(dir, part.FormatDataName(0))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[record.HeaderSize] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := part.OpenReader(dir, 0, false)
	require.NoError(t, err)
	defer r.Close()

	_, _, err = r.ReadRecordAt(0)
	require.ErrorIs(t, err, record.ErrChecksum)
}

func TestReaderInvalidTagIsCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, part.FormatDataName(0))
	require.NoError(t, os.WriteFile(path, []byte("XXXXXXXXXX"), 0o644))

	r, err := part.OpenReader(dir, 0, false)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadHeaderAt(0)
	require.ErrorIs(t, err, record.ErrInvalidTag)
}

func TestSealedReaderUsesMapping(t *testing.T) {
	dir := t.TempDir()
	size := writeFrames(t, dir, 0, "m1", "m2")
	_, err := part.Seal(dir, 0)
	require.NoError(t, err)

	r, err := part.OpenReader(dir, 0, true)
	require.NoError(t, err)
	defer r.Close()
	require.True(t, r.Sealed())

	got, err := r.Size()
	require.NoError(t, err)
	require.Equal(t, size, got)

	rec, next, err := r.ReadRecordAt(0)
	require.NoError(t, err)
	require.Equal(t, []byte("m1"), rec.Body)

	rec, next, err = r.ReadRecordAt(next)
	require.NoError(t, err)
	require.Equal(t, []byte("m2"), rec.Body)
	require.Equal(t, size, next)

	_, _, err = r.ReadRecordAt(next)
	require.ErrorIs(t, err, io.EOF)
}

func TestCountFrom(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 0, "a", "bb", "ccc")

	r, err := part.OpenReader(dir, 0, false)
	require.NoError(t, err)
	defer r.Close()

	n, err := r.CountFrom(0)
	require.NoError(t, err)
	require.Equal(t, uint64(3), n)

	n, err = r.CountFrom(record.FrameSize(1))
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)

	size, err := r.Size()
	require.NoError(t, err)
	n, err = r.CountFrom(size)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestScanUsable(t *testing.T) {
	f1, err := record.EncodeFrame(record.MsgTypeString, []byte("aa"))
	require.NoError(t, err)
	f2, err := record.EncodeFrame(record.MsgTypeObject, []byte("bbb"))
	require.NoError(t, err)

	var buf []byte
	buf = append(buf, f1...)
	buf = append(buf, f2...)

	end, n, err := part.ScanUsable(bytes.NewReader(buf), 0)
	require.NoError(t, err)
	require.Equal(t, int64(len(buf)), end)
	require.Equal(t, uint64(2), n)

	torn := append(append([]byte{}, buf...), f1[:4]...)
	end, n, err = part.ScanUsable(bytes.NewReader(torn), 0)
	require.NoError(t, err)
	require.Equal(t, int64(len(buf)), end)
	require.Equal(t, uint64(2), n)

	bad := append([]byte{}, buf...)
	bad[len(bad)-1] ^= 0xff
	end, n, err = part.ScanUsable(bytes.NewReader(bad), 0)
	require.NoError(t, err)
	require.Equal(t, int64(len(f1)), end)
	require.Equal(t, uint64(1), n)

	end, n, err = part.ScanUsable(bytes.NewReader(buf), int64(len(f1)))
	require.NoError(t, err)
	require.Equal(t, int64(len(buf)), end)
	require.Equal(t, uint64(1), n)

	end, n, err = part.ScanUsable(bytes.NewReader(nil), 0)
	require.NoError(t, err)
	require.Zero(t, end)
	require.Zero(t, n)
}
