// Package record defines the on-disk message frame: one tag byte, a
// big-endian uint32 body length, the body bytes, and a trailing CRC32C
// over everything before it. A frame is readable only when all of its
// bytes are present; a shorter tail is "no data yet", never corruption.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// MsgType tags the payload kind. The core never interprets bodies.
type MsgType byte

const (
	MsgTypeString MsgType = 'S'
	MsgTypeObject MsgType = 'O'
)

func (t MsgType) Valid() bool {
	return t == MsgTypeString || t == MsgTypeObject
}

func (t MsgType) String() string {
	switch t {
	case MsgTypeString:
		return "string"
	case MsgTypeObject:
		return "object"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// ParseMsgType maps a tag name to a MsgType.
func ParseMsgType(s string) (MsgType, error) {
	switch s {
	case "string", "S", "s":
		return MsgTypeString, nil
	case "object", "O", "o":
		return MsgTypeObject, nil
	default:
		return 0, fmt.Errorf("unknown message type %q", s)
	}
}

// Mode classifies how a queue or consumer handle is opened.
type Mode int

const (
	// ModeRead opens read-only; no writer lock is taken.
	ModeRead Mode = iota
	// ModeReadWrite opens as the exclusive writer of the active part.
	ModeReadWrite
	// ModeDefault tries ModeReadWrite and degrades to ModeRead when the
	// writer lock is already held.
	ModeDefault
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeReadWrite:
		return "read_write"
	case ModeDefault:
		return "default"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "read", "r":
		return ModeRead, nil
	case "read_write", "rw", "write":
		return ModeReadWrite, nil
	case "default", "":
		return ModeDefault, nil
	default:
		return 0, fmt.Errorf("unknown access mode %q", s)
	}
}

// Frame layout sizes in bytes.
const (
	TagSize    = 1
	LenSize    = 4
	CRCSize    = 4
	HeaderSize = TagSize + LenSize
	// Overhead is the frame size beyond the body.
	Overhead = HeaderSize + CRCSize
)

// MaxBodyLen bounds a single body so a corrupt length field cannot drive
// a reader into a multi-gigabyte allocation.
const MaxBodyLen = 1 << 30

var (
	ErrInvalidTag = errors.New("record: invalid type tag")
	ErrChecksum   = errors.New("record: checksum mismatch")
	ErrTooLarge   = errors.New("record: body exceeds maximum length")
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Header is the fixed prefix of a frame as surfaced to consumers by
// pop_header: the type tag and the body length.
type Header struct {
	Type    MsgType
	BodyLen uint32
}

// FrameSize returns the total on-disk size of a frame with the given
// body length.
func FrameSize(bodyLen uint32) int64 {
	return int64(Overhead) + int64(bodyLen)
}

// EncodeHeader writes the tag and length into dst, which must hold at
// least HeaderSize bytes.
func EncodeHeader(dst []byte, t MsgType, bodyLen uint32) {
	dst[0] = byte(t)
	binary.BigEndian.PutUint32(dst[TagSize:], bodyLen)
}

// DecodeHeader parses the fixed frame prefix. An invalid tag means the
// bytes at this offset are not a frame boundary.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, io.ErrUnexpectedEOF
	}
	h := Header{
		Type:    MsgType(src[0]),
		BodyLen: binary.BigEndian.Uint32(src[TagSize:HeaderSize]),
	}
	if !h.Type.Valid() {
		return Header{}, ErrInvalidTag
	}
	if h.BodyLen > MaxBodyLen {
		return Header{}, ErrTooLarge
	}
	return h, nil
}

// Checksum computes the frame CRC over the encoded header and body.
func Checksum(header []byte, body []byte) uint32 {
	crc := crc32.Update(0, crc32cTable, header)
	return crc32.Update(crc, crc32cTable, body)
}

// VerifyChecksum reports whether the stored CRC matches the frame bytes.
func VerifyChecksum(header, body []byte, stored uint32) bool {
	return Checksum(header, body) == stored
}

// WriteFrame appends one full frame to w and returns the number of bytes
// written. The caller owns flush and sync.
func WriteFrame(w io.Writer, t MsgType, body []byte) (int64, error) {
	if !t.Valid() {
		return 0, ErrInvalidTag
	}
	if len(body) > MaxBodyLen {
		return 0, ErrTooLarge
	}

	var header [HeaderSize]byte
	EncodeHeader(header[:], t, uint32(len(body)))

	var crcBuf [CRCSize]byte
	binary.BigEndian.PutUint32(crcBuf[:], Checksum(header[:], body))

	var n int64
	for _, chunk := range [][]byte{header[:], body, crcBuf[:]} {
		m, err := w.Write(chunk)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// EncodeFrame returns one full frame as a fresh byte slice.
func EncodeFrame(t MsgType, body []byte) ([]byte, error) {
	if !t.Valid() {
		return nil, ErrInvalidTag
	}
	if len(body) > MaxBodyLen {
		return nil, ErrTooLarge
	}

	buf := make([]byte, FrameSize(uint32(len(body))))
	EncodeHeader(buf, t, uint32(len(body)))
	copy(buf[HeaderSize:], body)
	crc := Checksum(buf[:HeaderSize], body)
	binary.BigEndian.PutUint32(buf[HeaderSize+len(body):], crc)
	return buf, nil
}
