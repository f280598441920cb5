// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package checksum implements the two checksums the core codecs need as
// incremental-update/final-value contracts: bzip2's bit-reversed CRC-32
// and DEFLATE/zlib's Adler-32. Both update their running value from
// successive byte spans and expose the final value on demand.
package checksum

import (
	"hash/crc32"
	"math/bits"
)

// BZ2CRC is bzip2's variant of CRC-32: the standard IEEE polynomial applied
// to a bit-reversed view of the input, with the running value itself kept
// bit-reversed between updates. This mirrors the reference bzip2 encoder,
// which runs its CRC the "wrong way around" relative to every other CRC-32
// user and must be matched bit-for-bit to decode real bzip2 streams.
type BZ2CRC struct {
	val uint32
	buf [256]byte
}

// Update folds buf into the running checksum.
func (c *BZ2CRC) Update(buf []byte) {
	v := bits.Reverse32(c.val)
	for len(buf) > 0 {
		n := copy(c.buf[:], buf)
		buf = buf[n:]
		for i, b := range c.buf[:n] {
			c.buf[i] = bits.Reverse8(b)
		}
		v = crc32.Update(v, crc32.IEEETable, c.buf[:n])
	}
	c.val = bits.Reverse32(v)
}

// Sum32 returns the current checksum value.
func (c *BZ2CRC) Sum32() uint32 {
	return c.val
}

// Reset zeros the running checksum.
func (c *BZ2CRC) Reset() {
	c.val = 0
}

// CombineBlockCRC folds a completed block's CRC into a stream-level
// combined CRC, per the bzip2 framing rule in spec §3: rotate left by one
// bit, then XOR in the block CRC.
func CombineBlockCRC(combined, block uint32) uint32 {
	return (combined<<1 | combined>>31) ^ block
}

// Adler32 is the running-sum checksum DEFLATE's zlib wrapper uses.
type Adler32 struct {
	a, b uint32
}

// NewAdler32 returns an Adler-32 accumulator initialized to 1/0, as RFC 1950
// requires.
func NewAdler32() *Adler32 {
	return &Adler32{a: 1}
}

const adlerMod = 65521

// Update folds buf into the running checksum using the standard modular
// reduction every 5552 bytes, just often enough to avoid overflowing the
// uint32 accumulators before the next reduction.
func (a *Adler32) Update(buf []byte) {
	av, bv := a.a, a.b
	for len(buf) > 0 {
		n := len(buf)
		if n > 5552 {
			n = 5552
		}
		for _, c := range buf[:n] {
			av += uint32(c)
			bv += av
		}
		av %= adlerMod
		bv %= adlerMod
		buf = buf[n:]
	}
	a.a, a.b = av, bv
}

// Sum32 returns the current checksum, b in the high 16 bits and a in the low.
func (a *Adler32) Sum32() uint32 {
	return a.b<<16 | a.a
}

// Reset resets the checksum to its initial state.
func (a *Adler32) Reset() {
	a.a, a.b = 1, 0
}
