package queue_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/downfa11-org/partq/pkg/config"
	"github.com/downfa11-org/partq/pkg/cursor"
	"github.com/downfa11-org/partq/pkg/part"
	"github.com/downfa11-org/partq/pkg/queue"
	"github.com/downfa11-org/partq/pkg/record"
	"github.com/downfa11-org/partq/util"
)

// buildParts opens a fresh write handle per batch, so each batch after
// the first lands in a newly rotated part.
func buildParts(t *testing.T, cfg *config.Config, name string, batches ...[]string) {
	t.Helper()
	for _, batch := range batches {
		q, err := queue.Open(cfg, name, record.ModeReadWrite)
		require.NoError(t, err)
		for _, body := range batch {
			_, err := q.PushString(body)
			require.NoError(t, err)
		}
		require.NoError(t, q.Close())
	}
}

func TestSweepDeleteRespectsCursors(t *testing.T) {
	cfg := testConfig(t)
	cfg.CleanupPolicy = config.CleanupDelete

	buildParts(t, cfg, "logs", []string{"a1", "a2"}, []string{"b1"}, []string{"c1"})
	dir := filepath.Join(cfg.BaseDir, "logs")

	// No consumers: nothing may go.
	res, err := queue.Sweep(cfg, "logs")
	require.NoError(t, err)
	require.Empty(t, res.Swept)

	// The slowest consumer still needs part 1.
	st := cursor.NewStore(dir)
	require.NoError(t, st.Save("fast", cursor.Cursor{Part: 2, Popped: 3}))
	require.NoError(t, st.Save("slow", cursor.Cursor{Part: 1, Popped: 2}))

	res, err = queue.Sweep(cfg, "logs")
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, res.Swept)

	parts, err := part.Discover(dir)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	require.Equal(t, uint64(1), parts[0].Number)

	_, err = os.Stat(filepath.Join(dir, part.FormatDataName(0)+".deleted"))
	require.NoError(t, err)

	// Once the slow consumer catches up, the next sweep takes part 1.
	require.NoError(t, st.Save("slow", cursor.Cursor{Part: 2, Popped: 3}))
	res, err = queue.Sweep(cfg, "logs")
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, res.Swept)
}

func TestSweepArchiveCompresses(t *testing.T) {
	for _, codec := range []string{util.CodecZstd, util.CodecGzip, util.CodecLz4} {
		t.Run(codec, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.CleanupPolicy = config.CleanupArchive
			cfg.ArchiveCodec = codec

			buildParts(t, cfg, "logs", []string{"a1"}, []string{"b1"})
			dir := filepath.Join(cfg.BaseDir, "logs")
			require.NoError(t, cursor.NewStore(dir).Save("c", cursor.Cursor{Part: 1}))

			res, err := queue.Sweep(cfg, "logs")
			require.NoError(t, err)
			require.Equal(t, []uint64{0}, res.Swept)

			_, err = os.Stat(filepath.Join(dir, part.FormatDataName(0)))
			require.True(t, os.IsNotExist(err))

			// The sidecar stays behind with the archived part's counts.
			meta, err := part.ReadMeta(filepath.Join(dir, part.FormatMetaName(0)))
			require.NoError(t, err)
			require.NotNil(t, meta)
			require.True(t, meta.Sealed)
			require.Equal(t, uint64(1), meta.Records)

			// The archive decompresses back to valid frames.
			f, err := os.Open(filepath.Join(dir, part.FormatDataName(0)+util.ArchiveExt(codec)))
			require.NoError(t, err)
			defer f.Close()
			dec, err := util.NewDecompressor(f, codec)
			require.NoError(t, err)
			defer dec.Close()
			raw, err := io.ReadAll(dec)
			require.NoError(t, err)

			end, n, err := part.ScanUsable(bytes.NewReader(raw), 0)
			require.NoError(t, err)
			require.Equal(t, int64(len(raw)), end)
			require.Equal(t, uint64(1), n)
		})
	}
}

func TestSweepHonorsRetentionHours(t *testing.T) {
	cfg := testConfig(t)
	cfg.CleanupPolicy = config.CleanupDelete
	cfg.RetentionHours = 1

	buildParts(t, cfg, "logs", []string{"a1"}, []string{"b1"})
	dir := filepath.Join(cfg.BaseDir, "logs")
	require.NoError(t, cursor.NewStore(dir).Save("c", cursor.Cursor{Part: 1}))

	// Brand-new files: the age gate holds everything back.
	res, err := queue.Sweep(cfg, "logs")
	require.NoError(t, err)
	require.Empty(t, res.Swept)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, part.FormatDataName(0)), old, old))

	res, err = queue.Sweep(cfg, "logs")
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, res.Swept)
}

func TestSweepNonePolicy(t *testing.T) {
	cfg := testConfig(t)

	buildParts(t, cfg, "logs", []string{"a"}, []string{"b"})
	dir := filepath.Join(cfg.BaseDir, "logs")
	require.NoError(t, cursor.NewStore(dir).Save("c", cursor.Cursor{Part: 1}))

	res, err := queue.Sweep(cfg, "logs")
	require.NoError(t, err)
	require.Empty(t, res.Swept)

	parts, err := part.Discover(dir)
	require.NoError(t, err)
	require.Len(t, parts, 2)
}
