package wasm

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"math/bits"
)

// ErrLEB128Overflow is returned when a LEB128 value exceeds the expected width.
var ErrLEB128Overflow = errors.New("wasm: leb128 value overflows expected width")

type reader struct {
	b   []byte
	pos int
}

func newReader(b []byte) *reader { return &reader{b: b} }

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.b) {
		return 0, io.ErrUnexpectedEOF
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) bytesN(n int) ([]byte, error) {
	if r.pos+n > len(r.b) {
		return nil, io.ErrUnexpectedEOF
	}
	v := r.b[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *reader) u32le() (uint32, error) {
	bs, err := r.bytesN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(bs), nil
}

func (r *reader) f32() (float32, error) {
	bs, err := r.bytesN(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(bs)), nil
}

func (r *reader) f64bits() (uint64, error) {
	bs, err := r.bytesN(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(bs), nil
}

func (r *reader) v128() (lo, hi uint64, err error) {
	bs, err := r.bytesN(16)
	if err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint64(bs[:8]), binary.LittleEndian.Uint64(bs[8:]), nil
}

// uleb reads an unsigned LEB128 value up to maxBits wide.
func (r *reader) uleb(maxBits int) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.byte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if shift+7 < uint(maxBits) {
				return result, nil
			}
			// Final byte: ensure no bits beyond maxBits are set.
			if shift < uint(maxBits) && bits.Len64(uint64(b&0x7f))+int(shift) > maxBits {
				return 0, ErrLEB128Overflow
			}
			return result, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, ErrLEB128Overflow
		}
	}
}

// sleb reads a signed LEB128 value, sign-extended to 64 bits; maxBits is not
// checked.
func (r *reader) sleb(maxBits int) (int64, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	for {
		b, err = r.byte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
}

func (r *reader) u32() (uint32, error) {
	v, err := r.uleb(32)
	return uint32(v), err
}

func (r *reader) i32() (int32, error) {
	v, err := r.sleb(32)
	return int32(v), err
}

func (r *reader) i64() (int64, error) {
	return r.sleb(64)
}

func (r *reader) name() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	bs, err := r.bytesN(int(n))
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

func (r *reader) valType() (ValType, error) {
	b, err := r.byte()
	return ValType(b), err
}
