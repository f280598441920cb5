// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package flate implements RFC 1951 DEFLATE compression and decompression:
// LZ77 matching against a 32KB sliding window, combined with per-block
// canonical Huffman entropy coding (stored, fixed and dynamic blocks).
package flate

const (
	maxCodeLen    = 15
	windowSize    = 32768
	windowMask    = windowSize - 1
	minMatchLen   = 3
	maxMatchLen   = 258
	maxDistance   = windowSize
	hashBits      = 15
	hashSize      = 1 << hashBits
	hashMask      = hashSize - 1
	hashShift     = (hashBits + minMatchLen - 1) / minMatchLen
	maxBlockSize  = 1 << 16
	numLitSymbols = 286
	numDistSymbol = 30
	endOfBlock    = 256
)

// lengthBase and lengthExtraBits give, for each length code (257-285, zero
// indexed here as 0-28), the smallest length it represents and the number
// of extra bits following it in the bitstream (RFC 1951 §3.2.5).
var lengthBase = [29]uint16{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
	35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
}

var lengthExtraBits = [29]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
	3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
}

// distBase and distExtraBits give the same for the 30 distance codes.
var distBase = [30]uint16{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
	257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145,
	8193, 12289, 16385, 24577,
}

var distExtraBits = [30]uint8{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
	7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
}

// codeLengthOrder is the order in which a dynamic block's code-length
// code lengths are transmitted (RFC 1951 §3.2.7).
var codeLengthOrder = [19]uint8{
	16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15,
}

// fixedLitLengths and fixedDistLengths are the static Huffman code lengths
// for a "fixed" block (RFC 1951 §3.2.6).
var fixedLitLengths = func() []uint8 {
	l := make([]uint8, numLitSymbols)
	for i := range l {
		switch {
		case i < 144:
			l[i] = 8
		case i < 256:
			l[i] = 9
		case i < 280:
			l[i] = 7
		default:
			l[i] = 8
		}
	}
	return l
}()

var fixedDistLengths = func() []uint8 {
	l := make([]uint8, numDistSymbol)
	for i := range l {
		l[i] = 5
	}
	return l
}()

func lengthCode(n int) int {
	for i := len(lengthBase) - 1; i >= 0; i-- {
		if n >= int(lengthBase[i]) {
			return i
		}
	}
	return 0
}

func distCode(n int) int {
	for i := len(distBase) - 1; i >= 0; i-- {
		if n >= int(distBase[i]) {
			return i
		}
	}
	return 0
}
