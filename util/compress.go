package util

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec names accepted for compressed part archives.
const (
	CodecZstd = "zstd"
	CodecGzip = "gzip"
	CodecLz4  = "lz4"
)

// KnownCodec reports whether name is a supported archive codec.
func KnownCodec(name string) bool {
	switch name {
	case CodecZstd, CodecGzip, CodecLz4:
		return true
	}
	return false
}

// ArchiveExt returns the filename extension archives use for the codec.
func ArchiveExt(codec string) string {
	switch codec {
	case CodecGzip:
		return ".gz"
	case CodecLz4:
		return ".lz4"
	default:
		return ".zst"
	}
}

// NewCompressor wraps w in a streaming encoder for the codec. Closing
// the returned writer flushes the stream but leaves w open.
func NewCompressor(w io.Writer, codec string) (io.WriteCloser, error) {
	switch codec {
	case CodecZstd:
		return zstd.NewWriter(w)
	case CodecGzip:
		return gzip.NewWriter(w), nil
	case CodecLz4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported archive codec: %s", codec)
	}
}

// NewDecompressor wraps r in a streaming decoder for the codec.
func NewDecompressor(r io.Reader, codec string) (io.ReadCloser, error) {
	switch codec {
	case CodecZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case CodecGzip:
		return gzip.NewReader(r)
	case CodecLz4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported archive codec: %s", codec)
	}
}
