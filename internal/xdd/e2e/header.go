// Package e2e implements the End-to-End copy protocol: a fixed 64-byte
// header, a source (sender) and destination (receiver) side, and a
// multi-host/port address table. The wire is little-endian with the field
// order below, fixed so independent implementations can interoperate.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package e2e

import (
	"encoding/binary"
	"errors"

	"github.com/xdd-project/xdd/internal/xdd/xerrors"
)

// Magic values from the original xdd_e2e_msg ("PTDS_E2E_MAGIC"/"_MAGIQ").
const (
	MagicDataReady uint32 = 0x07201959
	MagicEOF       uint32 = 0x07201960
)

// HeaderSize is the fixed on-wire header size: the live fields occupy 48
// bytes; the remaining 16 are reserved padding, keeping the header a round
// 64 bytes.
const HeaderSize = 64

const liveFieldBytes = 48

// Header is the 64-byte E2E trailer placed immediately before the payload.
type Header struct {
	Magic      uint32
	SendQNum   int32
	Sequence   int64
	SendTimeNs int64
	RecvTimeNs int64
	Location   int64
	Length     int64
}

// Encode writes h into a freshly allocated HeaderSize-byte little-endian
// buffer.
func Encode(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.SendQNum))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.Sequence))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.SendTimeNs))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.RecvTimeNs))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.Location))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(h.Length))
	return buf
}

// Decode parses a HeaderSize-byte buffer into a Header.
func Decode(buf []byte) (Header, error) {
	if len(buf) < liveFieldBytes {
		return Header{}, xerrors.Wrap(errShortHeader, "e2e: decode header")
	}
	var h Header
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.SendQNum = int32(binary.LittleEndian.Uint32(buf[4:8]))
	h.Sequence = int64(binary.LittleEndian.Uint64(buf[8:16]))
	h.SendTimeNs = int64(binary.LittleEndian.Uint64(buf[16:24]))
	h.RecvTimeNs = int64(binary.LittleEndian.Uint64(buf[24:32]))
	h.Location = int64(binary.LittleEndian.Uint64(buf[32:40]))
	h.Length = int64(binary.LittleEndian.Uint64(buf[40:48]))
	if h.Magic != MagicDataReady && h.Magic != MagicEOF {
		return h, xerrors.Wrap(errBadMagic, "e2e: decode header")
	}
	return h, nil
}

var (
	errShortHeader = errors.New("buffer shorter than a header")
	errBadMagic    = errors.New("unrecognized magic value")
)
