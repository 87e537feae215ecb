// Package wire implements the platform's canonical encodings:
// 32 raw bytes on the wire for identifiers, base58 for their string form,
// base64 for arbitrary byte blobs, and a version-prefixed, length-prefixed
// structural encoding for internal types. Document bodies use JSON;
// documents are JSON-schema-derived to begin with.
package wire

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// ID is a 32-byte identifier (identity id, contract id, document id, ...).
type ID [32]byte

func (id ID) String() string { return base58.Encode(id[:]) }

// ParseID decodes a base58 identifier string back into an ID.
func ParseID(s string) (ID, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return ID{}, fmt.Errorf("parse id: %w", err)
	}
	if len(b) != 32 {
		return ID{}, fmt.Errorf("parse id: expected 32 bytes, got %d", len(b))
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

// EncodeBytes renders an arbitrary byte blob using the wire's base64 string
// convention.
func EncodeBytes(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// DecodeBytes parses a base64 blob produced by EncodeBytes.
func DecodeBytes(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// Version bytes for the internal structural encoding. Unknown versions fail
// closed rather than attempting a best-effort decode.
const (
	VersionV0 byte = 0
)

// Encoder produces the version-prefixed, length-prefixed structural
// encoding used for internal types (contracts, actions, flags, ...). It is
// deliberately hand-rolled rather than gob-encoded: gob's wire format is not
// guaranteed byte-stable across Go versions or map iteration order, and
// byte-stable determinism is a load-bearing platform invariant.
type Encoder struct {
	buf []byte
}

func NewEncoder(version byte) *Encoder {
	return &Encoder{buf: []byte{version}}
}

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) WriteBytes(b []byte) {
	e.WriteUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *Encoder) WriteString(s string) { e.WriteBytes([]byte(s)) }

func (e *Encoder) WriteBool(b bool) {
	if b {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// Decoder reads back values written by Encoder, tracking the version byte
// so callers can dispatch on it.
type Decoder struct {
	buf     []byte
	pos     int
	Version byte
}

func NewDecoder(data []byte) (*Decoder, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("decode: empty buffer")
	}
	return &Decoder{buf: data[1:], Version: data[0]}, nil
}

func (d *Decoder) ReadUint64() (uint64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, fmt.Errorf("decode: truncated uint64")
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return v, nil
}

func (d *Decoder) ReadUint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, fmt.Errorf("decode: truncated uint32")
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	if d.pos+int(n) > len(d.buf) {
		return nil, fmt.Errorf("decode: truncated bytes field")
	}
	out := make([]byte, n)
	copy(out, d.buf[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return out, nil
}

func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Decoder) ReadBool() (bool, error) {
	if d.pos+1 > len(d.buf) {
		return false, fmt.Errorf("decode: truncated bool")
	}
	v := d.buf[d.pos] != 0
	d.pos++
	return v, nil
}
