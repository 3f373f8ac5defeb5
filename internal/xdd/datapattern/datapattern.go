// Package datapattern implements the buffer-fill strategies ("-datapattern"
// and its sequenced/hex/file/prefix variants) as strategy objects with a
// single fill(buffer, offset) method, plus the "-verify {contents|location}"
// content-checksum path.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package datapattern

import (
	"encoding/binary"
	"os"

	"github.com/OneOfOne/xxhash"

	"github.com/xdd-project/xdd/internal/xdd/xerrors"
)

// Kind enumerates the generator variant tag.
type Kind int

const (
	KindConstant Kind = iota // a single repeated byte
	KindSequenced            // incrementing byte sequence
	KindHex                  // fixed hex byte sequence
	KindFile                 // bytes sourced from a file, repeated/tiled
	KindPrefix               // a fixed prefix string repeated to fill
)

// Filler is the strategy object interface: one fill method, callers never
// branch on Kind themselves.
type Filler interface {
	Fill(buf []byte, offset int64)
}

type constantFiller struct{ b byte }

func (f constantFiller) Fill(buf []byte, _ int64) {
	for i := range buf {
		buf[i] = f.b
	}
}

type sequencedFiller struct{}

func (sequencedFiller) Fill(buf []byte, offset int64) {
	for i := range buf {
		buf[i] = byte(offset + int64(i))
	}
}

type hexFiller struct{ pattern []byte }

func (f hexFiller) Fill(buf []byte, _ int64) {
	if len(f.pattern) == 0 {
		return
	}
	for i := range buf {
		buf[i] = f.pattern[i%len(f.pattern)]
	}
}

type prefixFiller struct{ prefix []byte }

func (f prefixFiller) Fill(buf []byte, _ int64) {
	if len(f.prefix) == 0 {
		return
	}
	for i := range buf {
		buf[i] = f.prefix[i%len(f.prefix)]
	}
}

type fileFiller struct{ data []byte }

func (f fileFiller) Fill(buf []byte, offset int64) {
	if len(f.data) == 0 {
		return
	}
	for i := range buf {
		buf[i] = f.data[(offset+int64(i))%int64(len(f.data))]
	}
}

// NewConstant builds a filler that repeats a single byte throughout (the
// "-datapattern 'A'" form).
func NewConstant(b byte) Filler { return constantFiller{b: b} }

// NewSequenced builds a filler whose byte at each position is its absolute
// offset truncated to a byte.
func NewSequenced() Filler { return sequencedFiller{} }

// NewHex builds a filler tiling a fixed hex byte sequence.
func NewHex(pattern []byte) Filler { return hexFiller{pattern: append([]byte(nil), pattern...)} }

// NewPrefix builds a filler tiling a literal prefix string.
func NewPrefix(prefix string) Filler { return prefixFiller{prefix: []byte(prefix)} }

// NewFromFile loads a file's bytes once and tiles them as the fill source.
func NewFromFile(path string) (Filler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(err, "datapattern: read source file")
	}
	return fileFiller{data: data}, nil
}

// Checksum computes the xxhash32 digest of buf, used by "-verify contents"
// to detect silent data corruption between write and read-back without
// keeping the whole buffer around.
func Checksum(buf []byte) uint32 {
	return xxhash.Checksum32(buf)
}

// VerifyContents regenerates the expected bytes for [offset, offset+len(buf))
// via filler and compares checksums rather than byte-for-byte, matching the
// "-verify contents" mode's intent without doubling memory traffic.
func VerifyContents(filler Filler, buf []byte, offset int64) bool {
	expect := make([]byte, len(buf))
	filler.Fill(expect, offset)
	return Checksum(expect) == Checksum(buf)
}

// VerifyLocation checks that the first 8 bytes of buf encode the offset at
// which it was written, the "-verify location" mode's contract.
func VerifyLocation(buf []byte, offset int64) bool {
	if len(buf) < 8 {
		return false
	}
	got := int64(binary.LittleEndian.Uint64(buf[:8]))
	return got == offset
}

// StampLocation writes offset into the first 8 bytes of buf, used by
// writers operating under "-verify location".
func StampLocation(buf []byte, offset int64) {
	if len(buf) < 8 {
		return
	}
	binary.LittleEndian.PutUint64(buf[:8], uint64(offset))
}
