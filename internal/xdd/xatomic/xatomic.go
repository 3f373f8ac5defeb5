// Package xatomic re-exports the atomic primitives used across the engine
// so call sites read Store/Load/CAS rather than sprinkling sync/atomic
// function calls around.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package xatomic

import "go.uber.org/atomic"

type (
	Int32 = atomic.Int32
	Int64 = atomic.Int64
	Uint32 = atomic.Uint32
	Uint64 = atomic.Uint64
	Bool   = atomic.Bool
)

// Bits is a lock-free bitmask used for worker/target state words and
// target option flags.
type Bits struct{ v atomic.Uint64 }

func (b *Bits) Set(mask uint64)   { b.v.Store(b.v.Load() | mask) }
func (b *Bits) Clear(mask uint64) { b.v.Store(b.v.Load() &^ mask) }
func (b *Bits) Has(mask uint64) bool { return b.v.Load()&mask == mask }
func (b *Bits) Load() uint64      { return b.v.Load() }
func (b *Bits) Store(v uint64)    { b.v.Store(v) }

// SetExclusive atomically replaces the bits in mask, leaving the rest intact.
func (b *Bits) SetExclusive(mask, value uint64) {
	for {
		old := b.v.Load()
		nv := (old &^ mask) | (value & mask)
		if b.v.CompareAndSwap(old, nv) {
			return
		}
	}
}
