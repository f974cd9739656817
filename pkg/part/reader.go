package part

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/exp/mmap"

	"github.com/downfa11-org/partq/pkg/record"
)

// Record is one fully validated frame read from a part.
type Record struct {
	record.Header
	Body   []byte
	Offset int64
}

// Reader provides positioned record reads over one part file. Sealed
// parts are memory-mapped; the active part is read through plain
// positioned reads so concurrent appends become visible without
// remapping. Every read is three-valued: a record, io.EOF for the clean
// end of durable data, or ErrTruncated for a tail fragment — the latter
// two are interchangeable for consumers.
type Reader struct {
	num    uint64
	path   string
	sealed bool

	f *os.File
	m *mmap.ReaderAt
}

// OpenReader opens one part for reading. sealed selects the mapped
// read path and must only be true for parts that no longer accept
// appends.
func OpenReader(dir string, num uint64, sealed bool) (*Reader, error) {
	path := filepath.Join(dir, FormatDataName(num))
	r := &Reader{num: num, path: path, sealed: sealed}

	if sealed {
		m, err := mmap.Open(path)
		if err != nil {
			return nil, fmt.Errorf("mmap part %d: %w", num, err)
		}
		r.m = m
		return r, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open part %d: %w", num, err)
	}
	advise(f)
	r.f = f
	return r, nil
}

func (r *Reader) Number() uint64 { return r.num }
func (r *Reader) Sealed() bool   { return r.sealed }

// Size returns the currently visible byte length of the part.
func (r *Reader) Size() (int64, error) {
	switch {
	case r.m != nil:
		return int64(r.m.Len()), nil
	case r.f != nil:
		fi, err := r.f.Stat()
		if err != nil {
			return 0, fmt.Errorf("stat part %d: %w", r.num, err)
		}
		return fi.Size(), nil
	default:
		return 0, ErrClosed
	}
}

func (r *Reader) readAt(p []byte, off int64) (int, error) {
	switch {
	case r.m != nil:
		return r.m.ReadAt(p, off)
	case r.f != nil:
		return r.f.ReadAt(p, off)
	default:
		return 0, ErrClosed
	}
}

// ReadHeaderAt decodes the frame header at off. io.EOF means off is the
// clean end of data; ErrTruncated means a partial frame occupies the
// tail. A tag that is not a frame boundary surfaces as a corruption
// error, never as end-of-data.
func (r *Reader) ReadHeaderAt(off int64) (record.Header, error) {
	var hdr [record.HeaderSize]byte
	n, err := r.readAt(hdr[:], off)
	if n < record.HeaderSize {
		switch {
		case err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
			if n == 0 {
				return record.Header{}, io.EOF
			}
			return record.Header{}, ErrTruncated
		default:
			return record.Header{}, fmt.Errorf("read part %d at %d: %w", r.num, off, err)
		}
	}

	h, err := record.DecodeHeader(hdr[:])
	if err != nil {
		return record.Header{}, fmt.Errorf("part %d at offset %d: %w", r.num, off, err)
	}
	return h, nil
}

// ReadRecordAt reads and verifies the full frame at off, returning the
// record and the offset of the frame that follows it.
func (r *Reader) ReadRecordAt(off int64) (*Record, int64, error) {
	h, err := r.ReadHeaderAt(off)
	if err != nil {
		return nil, 0, err
	}

	rest := make([]byte, int(h.BodyLen)+record.CRCSize)
	n, err := r.readAt(rest, off+record.HeaderSize)
	if n < len(rest) {
		switch {
		case err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
			return nil, 0, ErrTruncated
		default:
			return nil, 0, fmt.Errorf("read part %d at %d: %w", r.num, off, err)
		}
	}

	body := rest[:h.BodyLen]
	stored := binary.BigEndian.Uint32(rest[h.BodyLen:])
	var hdrBuf [record.HeaderSize]byte
	record.EncodeHeader(hdrBuf[:], h.Type, h.BodyLen)
	if !record.VerifyChecksum(hdrBuf[:], body, stored) {
		return nil, 0, fmt.Errorf("part %d at offset %d: %w", r.num, off, record.ErrChecksum)
	}

	return &Record{Header: h, Body: body, Offset: off}, off + record.FrameSize(h.BodyLen), nil
}

// CountFrom counts the complete frames between off and the visible end
// of the file.
func (r *Reader) CountFrom(off int64) (uint64, error) {
	size, err := r.Size()
	if err != nil {
		return 0, err
	}
	return r.CountRange(off, size)
}

// CountRange counts the complete frames between off and end, stopping
// without error at a torn tail.
func (r *Reader) CountRange(off, end int64) (uint64, error) {
	var n uint64
	for off < end {
		h, err := r.ReadHeaderAt(off)
		if errors.Is(err, io.EOF) || errors.Is(err, ErrTruncated) {
			break
		}
		if err != nil {
			return n, err
		}
		next := off + record.FrameSize(h.BodyLen)
		if next > end {
			break
		}
		off = next
		n++
	}
	return n, nil
}

func (r *Reader) Close() error {
	switch {
	case r.m != nil:
		err := r.m.Close()
		r.m = nil
		return err
	case r.f != nil:
		err := r.f.Close()
		r.f = nil
		return err
	default:
		return nil
	}
}

// ScanUsable walks complete, checksum-valid frames from start and
// returns the byte offset past the last one plus the number of frames
// walked. A torn or corrupt tail stops the scan without error; only a
// failing read is an error.
func ScanUsable(r io.ReaderAt, start int64) (int64, uint64, error) {
	off := start
	var n uint64
	var hdr [record.HeaderSize]byte
	var rest []byte

	for {
		m, err := r.ReadAt(hdr[:], off)
		if m < record.HeaderSize {
			if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return off, n, nil
			}
			return off, n, err
		}

		h, err := record.DecodeHeader(hdr[:])
		if err != nil {
			return off, n, nil
		}

		need := int(h.BodyLen) + record.CRCSize
		if cap(rest) < need {
			rest = make([]byte, need)
		}
		rest = rest[:need]
		m, err = r.ReadAt(rest, off+record.HeaderSize)
		if m < need {
			if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return off, n, nil
			}
			return off, n, err
		}

		stored := binary.BigEndian.Uint32(rest[h.BodyLen:])
		if !record.VerifyChecksum(hdr[:], rest[:h.BodyLen], stored) {
			return off, n, nil
		}

		off += record.FrameSize(h.BodyLen)
		n++
	}
}
