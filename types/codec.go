package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Limits on decoded values. They bound the work an adversarial tx can cause
// before its signature is checked.
const (
	MaxStringSetSize = 64
	MaxTagLength     = 256
	MaxCreativeSize  = 64 * 1024
	MaxFieldSize     = 128 * 1024
	MaxTxBytes       = 256 * 1024
)

var errTrailingBytes = errors.New("trailing bytes")

// encoder appends the canonical encoding of primitive values. All integers are
// little endian with fixed width; strings and byte slices are prefixed with
// their length as a little endian uint32.
type encoder struct {
	buf []byte
}

func (e *encoder) uint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) raw(bz []byte) {
	e.buf = append(e.buf, bz...)
}

func (e *encoder) bytes(bz []byte) {
	e.uint32(uint32(len(bz)))
	e.raw(bz)
}

func (e *encoder) string(s string) {
	e.uint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) stringSet(set StringSet) {
	e.uint32(uint32(len(set)))
	for _, s := range set {
		e.string(s)
	}
}

// decoder is the strict inverse of encoder. The first error sticks and every
// later read returns zero values.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) fail(format string, args ...interface{}) {
	if d.err == nil {
		d.err = fmt.Errorf("offset %d: "+format, append([]interface{}{d.off}, args...)...)
	}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.buf)-d.off < n {
		d.fail("need %d bytes, have %d", n, len(d.buf)-d.off)
		return nil
	}
	bz := d.buf[d.off : d.off+n]
	d.off += n
	return bz
}

func (d *decoder) uint32() uint32 {
	bz := d.take(4)
	if bz == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(bz)
}

func (d *decoder) uint64() uint64 {
	bz := d.take(8)
	if bz == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(bz)
}

func (d *decoder) length(max int) int {
	n := d.uint32()
	if d.err != nil {
		return 0
	}
	if uint64(n) > uint64(max) || n > math.MaxInt32 {
		d.fail("length %d exceeds limit %d", n, max)
		return 0
	}
	return int(n)
}

func (d *decoder) bytes(max int) []byte {
	n := d.length(max)
	bz := d.take(n)
	if bz == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, bz)
	return out
}

func (d *decoder) string(max int) string {
	n := d.length(max)
	bz := d.take(n)
	if d.err != nil {
		return ""
	}
	if !utf8.Valid(bz) {
		d.fail("string is not valid utf-8")
		return ""
	}
	return string(bz)
}

func (d *decoder) stringSet() StringSet {
	n := d.length(MaxStringSetSize)
	if d.err != nil {
		return nil
	}
	set := make(StringSet, 0, n)
	for i := 0; i < n; i++ {
		set = append(set, d.string(MaxTagLength))
	}
	if d.err != nil {
		return nil
	}
	if err := set.ValidateBasic(); err != nil {
		d.fail("%v", err)
		return nil
	}
	return set
}

// finish reports the sticky error, or an error if input remains.
func (d *decoder) finish() error {
	if d.err == nil && d.off != len(d.buf) {
		d.fail("%v: %d", errTrailingBytes, len(d.buf)-d.off)
	}
	return d.err
}

// isCanonicalString reports whether s is valid UTF-8 in Unicode normalization
// form C. Two strings that render identically but differ in composition would
// otherwise never match each other.
func isCanonicalString(s string) bool {
	return utf8.ValidString(s) && norm.NFC.IsNormalString(s)
}
