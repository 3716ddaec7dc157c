package ledger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Canonical wire format: fixed field order, fixed-width big-endian integers,
// u32-length-prefixed byte strings. Coin ids and announcement ids are hashes
// over these exact bytes, so the encoding must never change shape for a
// given value.

var ErrTrailingBytes = errors.New("ledger: trailing bytes after decode")

const maxBytesLen = 1 << 24 // sanity bound for length-prefixed fields

type Encoder struct {
	buf bytes.Buffer
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) WriteUint8(v uint8) {
	e.buf.WriteByte(v)
}

func (e *Encoder) WriteUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

// WriteInt64 writes a two's-complement big-endian signed value, used for
// running ring subtotals which may be negative.
func (e *Encoder) WriteInt64(v int64) {
	e.WriteUint64(uint64(v))
}

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

func (e *Encoder) WriteHash(h Hash256) {
	e.buf.Write(h[:])
}

func (e *Encoder) WriteBytes(b []byte) {
	e.WriteUint32(uint32(len(b)))
	e.buf.Write(b)
}

func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

type Decoder struct {
	r   *bytes.Reader
	err error
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{r: bytes.NewReader(b)}
}

func (d *Decoder) setErr(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) read(n int) []byte {
	if d.err != nil {
		return nil
	}
	b := make([]byte, n)
	if _, err := d.r.Read(b); err != nil {
		d.setErr(err)
		return nil
	}
	return b
}

func (d *Decoder) ReadUint8() uint8 {
	b := d.read(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) ReadUint16() uint16 {
	b := d.read(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (d *Decoder) ReadUint32() uint32 {
	b := d.read(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *Decoder) ReadUint64() uint64 {
	b := d.read(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (d *Decoder) ReadInt64() int64 {
	return int64(d.ReadUint64())
}

func (d *Decoder) ReadBool() bool {
	return d.ReadUint8() == 1
}

func (d *Decoder) ReadHash() Hash256 {
	var h Hash256
	b := d.read(32)
	if b != nil {
		copy(h[:], b)
	}
	return h
}

func (d *Decoder) ReadBytes() []byte {
	n := d.ReadUint32()
	if d.err != nil {
		return nil
	}
	if n > maxBytesLen || uint64(n) > uint64(d.r.Len()) {
		d.setErr(fmt.Errorf("ledger: invalid byte string length %d", n))
		return nil
	}
	if n == 0 {
		return nil
	}
	return d.read(int(n))
}

func (d *Decoder) Err() error {
	return d.err
}

// Finish returns the first decode error, or ErrTrailingBytes if input
// remains. Canonical decoding must consume the whole buffer.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.r.Len() != 0 {
		return ErrTrailingBytes
	}
	return nil
}

// checkLen guards slice allocations on untrusted counts.
func (d *Decoder) checkCount(n uint32, minElemSize int) bool {
	if d.err != nil {
		return false
	}
	if minElemSize > 0 && uint64(n)*uint64(minElemSize) > uint64(d.r.Len()) {
		d.setErr(fmt.Errorf("ledger: implausible element count %d", n))
		return false
	}
	if n > math.MaxInt32 {
		d.setErr(fmt.Errorf("ledger: implausible element count %d", n))
		return false
	}
	return true
}
