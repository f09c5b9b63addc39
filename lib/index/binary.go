// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"encoding/binary"
	"math"

	"github.com/bureau-foundation/longtail/lib/errno"
)

// Index file magics. Each file starts with its magic followed by a
// u32 format version.
var (
	versionIndexMagic = [4]byte{'L', 'T', 'V', 'I'}
	contentIndexMagic = [4]byte{'L', 'T', 'C', 'I'}
	storeIndexMagic   = [4]byte{'L', 'T', 'S', 'I'}
	archiveIndexMagic = [4]byte{'L', 'T', 'A', 'I'}
)

// formatVersion is the current version of every index format.
const formatVersion uint32 = 1

// encoder appends little-endian fields to a growing buffer.
type encoder struct {
	buffer []byte
}

func (e *encoder) magic(magic [4]byte) {
	e.buffer = append(e.buffer, magic[:]...)
	e.u32(formatVersion)
}

func (e *encoder) u16(value uint16) { e.buffer = binary.LittleEndian.AppendUint16(e.buffer, value) }
func (e *encoder) u32(value uint32) { e.buffer = binary.LittleEndian.AppendUint32(e.buffer, value) }
func (e *encoder) u64(value uint64) { e.buffer = binary.LittleEndian.AppendUint64(e.buffer, value) }

func (e *encoder) u16s(values []uint16) {
	for _, value := range values {
		e.u16(value)
	}
}

func (e *encoder) u32s(values []uint32) {
	for _, value := range values {
		e.u32(value)
	}
}

func (e *encoder) u64s(values []uint64) {
	for _, value := range values {
		e.u64(value)
	}
}

func (e *encoder) str(value string) {
	e.u32(uint32(len(value)))
	e.buffer = append(e.buffer, value...)
}

// decoder reads little-endian fields. The first failure is sticky:
// later reads return zero values and err reports what went wrong, so
// parse functions check once at the end.
type decoder struct {
	data []byte
	what string
	err  error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = errno.Wrap(errno.EBADF, d.what+": "+format, args...)
	}
}

func (d *decoder) take(size int) []byte {
	if d.err != nil {
		return nil
	}
	if size < 0 || size > len(d.data) {
		d.fail("truncated (need %d bytes, have %d)", size, len(d.data))
		return nil
	}
	result := d.data[:size]
	d.data = d.data[size:]
	return result
}

func (d *decoder) magic(magic [4]byte) {
	got := d.take(4)
	if d.err != nil {
		return
	}
	if [4]byte(got) != magic {
		d.fail("bad magic %q", got)
		return
	}
	if version := d.u32(); d.err == nil && version != formatVersion {
		d.fail("unsupported format version %d", version)
	}
}

func (d *decoder) u16() uint16 {
	if raw := d.take(2); raw != nil {
		return binary.LittleEndian.Uint16(raw)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if raw := d.take(4); raw != nil {
		return binary.LittleEndian.Uint32(raw)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if raw := d.take(8); raw != nil {
		return binary.LittleEndian.Uint64(raw)
	}
	return 0
}

// count reads a u32 element count and checks that count elements of
// elementSize bytes could still follow, so a corrupt count cannot
// trigger a huge allocation.
func (d *decoder) count(elementSize int) int {
	value := d.u32()
	if d.err != nil {
		return 0
	}
	if uint64(value)*uint64(elementSize) > uint64(len(d.data)) {
		d.fail("count %d exceeds remaining %d bytes", value, len(d.data))
		return 0
	}
	return int(value)
}

func (d *decoder) u16s(count int) []uint16 {
	raw := d.take(count * 2)
	if raw == nil {
		return nil
	}
	values := make([]uint16, count)
	for i := range values {
		values[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return values
}

func (d *decoder) u32s(count int) []uint32 {
	raw := d.take(count * 4)
	if raw == nil {
		return nil
	}
	values := make([]uint32, count)
	for i := range values {
		values[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return values
}

func (d *decoder) u64s(count int) []uint64 {
	raw := d.take(count * 8)
	if raw == nil {
		return nil
	}
	values := make([]uint64, count)
	for i := range values {
		values[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}
	return values
}

func (d *decoder) str() string {
	length := d.count(1)
	return string(d.take(length))
}

// finish reports trailing garbage as corruption.
func (d *decoder) finish() error {
	if d.err == nil && len(d.data) != 0 {
		d.fail("%d trailing bytes", len(d.data))
	}
	return d.err
}

// checkCount rejects element counts that do not fit the u32 fields
// of the formats.
func checkCount(what string, count int) error {
	if uint64(count) > math.MaxUint32 {
		return errno.Wrap(errno.EINVAL, "%s count %d exceeds format limit", what, count)
	}
	return nil
}
