// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package bzip2 implements the bzip2 block format: Burrows-Wheeler
// transform, move-to-front plus two-layer run-length coding, and
// multi-group canonical Huffman entropy coding, framed per the de facto
// bzip2 stream layout documented at https://en.wikipedia.org/wiki/Bzip2.
// There is no RFC for bzip2; the wire format below and the worked example
// in Wikipedia's article are the closest things to a specification, and
// this package is cross-checked against the reference bzip2 implementation
// rather than any written standard.
package bzip2

// FileMagic is the two byte "BZ" signature that opens every bzip2 stream.
var FileMagic = [2]byte{0x42, 0x5a}

// BlockMagic is the 48-bit marker that precedes each compressed block.
const BlockMagic = 0x314159265359

// EOSMagic is the 48-bit marker that closes the stream, followed by the
// 32-bit combined stream CRC.
const EOSMagic = 0x177245385090

// MinBlockSize100k and MaxBlockSize100k bound the block size parameter: the
// block is blockSize100k * 100000 bytes.
const (
	MinBlockSize100k = 1
	MaxBlockSize100k = 9
)

// groupSize is the number of MTF symbols covered by a single Huffman table
// selector.
const groupSize = 50

// minNumTrees and maxNumTrees bound how many Huffman tables a block may use.
const (
	minNumTrees = 2
	maxNumTrees = 6
)

// maxCodeLen is the longest Huffman code bzip2 permits.
const maxCodeLen = 20
