// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

import (
	"io"
	"math"

	"github.com/CaveSystems/cave-compression/bitio"
	"github.com/CaveSystems/cave-compression/checksum"
)

// DecodeStats accumulates per-block offsets and CRCs for a stream decoded
// with WithStats; it mirrors the teacher's Stats type and supports the
// checksum/cross-compat testable properties of spec §8.
type DecodeStats struct {
	// BlockStartOffsets holds the bit offset of each block's magic number,
	// from the start of the stream.
	BlockStartOffsets []uint
	// EndOfStreamOffset is the bit offset of the end-of-stream marker.
	EndOfStreamOffset uint
	// BlockCRCs holds each block's stored CRC-32, in order.
	BlockCRCs []uint32
	// StreamCRC is the stream's combined CRC-32.
	StreamCRC uint32
}

type readerOptions struct {
	recordStats bool
}

// ReaderOption configures a Reader constructed with NewReader.
type ReaderOption func(*readerOptions)

// WithStats enables DecodeStats collection; retrieve it afterwards with
// (*Reader).Stats.
func WithStats() ReaderOption {
	return func(o *readerOptions) { o.recordStats = true }
}

// Reader decompresses a bzip2 stream. It implements io.Reader and is the
// BZip2Decoder of spec §4.2: a pull interface over the decompressed bytes
// that suspends internally on block boundaries but never on partial bits,
// since the underlying bitio.Reader blocks for more input via the ordinary
// io.Reader it wraps.
type Reader struct {
	br           *bitio.Reader
	fileCRC      uint32
	blockCRC     checksum.BZ2CRC
	wantBlockCRC uint32
	setupDone    bool
	blockSize    int
	eof          bool
	c            [256]uint
	tt           []uint32
	tPos         uint32

	preRLE      []uint32
	preRLEUsed  int
	lastByte    int
	byteRepeats uint
	repeats     uint

	opts  readerOptions
	stats DecodeStats
}

// NewReader returns a Reader that decompresses bzip2 data read from r.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	bz := &Reader{br: bitio.NewReader(r), lastByte: -1}
	for _, o := range opts {
		o(&bz.opts)
	}
	return bz
}

// Stats returns the statistics accumulated so far, if WithStats was passed
// to NewReader; otherwise it returns a zero DecodeStats.
func (bz *Reader) Stats() DecodeStats {
	return bz.stats
}

func (bz *Reader) setup(needMagic bool) error {
	br := bz.br
	if needMagic {
		magic := br.ReadBits(16)
		if br.Err() != nil {
			return br.Err()
		}
		if magic != 0x425a {
			return corruptf("bad file magic value")
		}
	}
	t := br.ReadBits(8)
	if br.Err() != nil {
		return br.Err()
	}
	if t != 'h' {
		return corruptf("non-Huffman entropy encoding")
	}
	level := br.ReadBits(8)
	if br.Err() != nil {
		return br.Err()
	}
	if level < '1' || level > '9' {
		return corruptf("invalid compression level %q", rune(level))
	}
	bz.fileCRC = 0
	bz.blockSize = 100 * 1000 * (int(level) - '0')
	if bz.blockSize > len(bz.tt) {
		bz.tt = make([]uint32, bz.blockSize)
	}
	return nil
}

// Read implements io.Reader.
func (bz *Reader) Read(buf []byte) (int, error) {
	if bz.eof {
		return 0, io.EOF
	}
	if !bz.setupDone {
		if err := bz.setup(true); err != nil {
			return 0, err
		}
		bz.setupDone = true
	}
	n, err := bz.read(buf)
	return n, err
}

func (bz *Reader) readFromBlock(buf []byte) int {
	n := 0
	for (bz.repeats > 0 || bz.preRLEUsed < len(bz.preRLE)) && n < len(buf) {
		if bz.repeats > 0 {
			buf[n] = byte(bz.lastByte)
			n++
			bz.repeats--
			if bz.repeats == 0 {
				bz.lastByte = -1
			}
			continue
		}
		bz.tPos = bz.preRLE[bz.tPos]
		b := byte(bz.tPos)
		bz.tPos >>= 8
		bz.preRLEUsed++

		if bz.byteRepeats == 3 {
			bz.repeats = uint(b)
			bz.byteRepeats = 0
			continue
		}
		if bz.lastByte == int(b) {
			bz.byteRepeats++
		} else {
			bz.byteRepeats = 0
		}
		bz.lastByte = int(b)
		buf[n] = b
		n++
	}
	return n
}

func (bz *Reader) read(buf []byte) (int, error) {
	for {
		n := bz.readFromBlock(buf)
		if n > 0 || len(buf) == 0 {
			bz.blockCRC.Update(buf[:n])
			return n, nil
		}

		if bz.blockCRC.Sum32() != bz.wantBlockCRC {
			return 0, checksumf("block checksum mismatch")
		}
		if bz.opts.recordStats && len(bz.stats.BlockCRCs) < len(bz.stats.BlockStartOffsets) {
			bz.stats.BlockCRCs = append(bz.stats.BlockCRCs, bz.blockCRC.Sum32())
		}

		br := bz.br
		magic := br.ReadBits64(48)
		if err := br.Err(); err != nil {
			return 0, err
		}
		switch magic {
		default:
			return 0, corruptf("bad block magic value")

		case BlockMagic:
			if bz.opts.recordStats {
				bz.stats.BlockStartOffsets = append(bz.stats.BlockStartOffsets, br.BitsConsumed()-48)
			}
			if err := bz.readBlock(); err != nil {
				return 0, err
			}

		case EOSMagic:
			if bz.opts.recordStats {
				bz.stats.EndOfStreamOffset = br.BitsConsumed() - 48
			}
			wantFileCRC := uint32(br.ReadBits64(32))
			if err := br.Err(); err != nil {
				return 0, err
			}
			if bz.fileCRC != wantFileCRC {
				return 0, checksumf("stream checksum mismatch")
			}
			if bz.opts.recordStats {
				bz.stats.StreamCRC = bz.fileCRC
			}
			bz.eof = true
			return 0, io.EOF
		}
	}
}

func (bz *Reader) readBlock() error {
	br := bz.br
	bz.wantBlockCRC = uint32(br.ReadBits64(32))
	bz.blockCRC = checksum.BZ2CRC{}
	bz.fileCRC = checksum.CombineBlockCRC(bz.fileCRC, bz.wantBlockCRC)
	randomized := br.ReadBits(1)
	origPtr := uint(br.ReadBits(24))
	if err := br.Err(); err != nil {
		return err
	}

	symbolRangeUsedBitmap := br.ReadBits(16)
	symbolPresent := make([]bool, 256)
	numSymbols := 0
	for symRange := uint(0); symRange < 16; symRange++ {
		if symbolRangeUsedBitmap&(1<<(15-symRange)) != 0 {
			bits := br.ReadBits(16)
			for symbol := uint(0); symbol < 16; symbol++ {
				if bits&(1<<(15-symbol)) != 0 {
					symbolPresent[16*symRange+symbol] = true
					numSymbols++
				}
			}
		}
	}
	if err := br.Err(); err != nil {
		return err
	}
	if numSymbols == 0 {
		return corruptf("no symbols present in block")
	}

	numHuffmanTrees := int(br.ReadBits(3))
	if numHuffmanTrees < minNumTrees || numHuffmanTrees > maxNumTrees {
		return corruptf("invalid number of Huffman trees: %d", numHuffmanTrees)
	}

	numSelectors := int(br.ReadBits(15))
	if err := br.Err(); err != nil {
		return err
	}
	treeIndexes := make([]uint8, numSelectors)
	mtfTree := newMTFTreeDecoder(numHuffmanTrees)
	for i := range treeIndexes {
		c := 0
		for {
			inc := br.ReadBits(1)
			if br.Err() != nil {
				return br.Err()
			}
			if inc == 0 {
				break
			}
			c++
			if c >= numHuffmanTrees {
				return corruptf("tree selector unary code too long")
			}
		}
		treeIndexes[i] = mtfTree.Decode(c)
	}

	symbols := make([]byte, numSymbols)
	next := 0
	for i := 0; i < 256; i++ {
		if symbolPresent[i] {
			symbols[next] = byte(i)
			next++
		}
	}
	mtf := newMTFDecoder(symbols)

	numSymbols += 2 // RUNA, RUNB
	huffmanTrees := make([]huffmanTree, numHuffmanTrees)
	lengths := make([]uint8, numSymbols)
	for i := range huffmanTrees {
		length := int(br.ReadBits(5))
		for j := range lengths {
			for {
				if length < 1 || length > maxCodeLen {
					return corruptf("Huffman code length out of range: %d", length)
				}
				if !br.ReadBit() {
					break
				}
				if br.ReadBit() {
					length--
				} else {
					length++
				}
			}
			lengths[j] = uint8(length)
		}
		if err := br.Err(); err != nil {
			return err
		}
		var err error
		huffmanTrees[i], err = newHuffmanTree(lengths)
		if err != nil {
			return err
		}
	}

	if len(treeIndexes) == 0 {
		return corruptf("no tree selectors present")
	}
	if int(treeIndexes[0]) >= len(huffmanTrees) {
		return corruptf("tree selector out of range")
	}
	currentTree := huffmanTrees[treeIndexes[0]]
	selectorIndex := 1
	bufIndex := 0
	repeat := 0
	repeatPower := 0

	for i := range bz.c {
		bz.c[i] = 0
	}

	decoded := 0
	for {
		if decoded == groupSize {
			if selectorIndex >= numSelectors {
				return corruptf("insufficient selectors for group count")
			}
			if int(treeIndexes[selectorIndex]) >= len(huffmanTrees) {
				return corruptf("tree selector out of range")
			}
			currentTree = huffmanTrees[treeIndexes[selectorIndex]]
			selectorIndex++
			decoded = 0
		}

		v := currentTree.Decode(br)
		if err := br.Err(); err != nil {
			return err
		}
		decoded++

		if v < 2 {
			if repeat == 0 {
				repeatPower = 1
			}
			repeat += repeatPower << v
			repeatPower <<= 1
			if repeat > 2*1024*1024 {
				return corruptf("RLE2 repeat count too large")
			}
			continue
		}

		if repeat > 0 {
			if repeat > bz.blockSize-bufIndex {
				return corruptf("RLE2 repeats overflow block")
			}
			b := mtf.First()
			bz.c[b] += uint(repeat)
			for i := 0; i < repeat; i++ {
				bz.tt[bufIndex+i] = uint32(b)
			}
			bufIndex += repeat
			repeat = 0
		}

		if int(v) == numSymbols-1 {
			break // EOB
		}

		b := mtf.Decode(int(v) - 1)
		if bufIndex >= bz.blockSize {
			return corruptf("block data exceeds block size")
		}
		bz.tt[bufIndex] = uint32(b)
		bz.c[b]++
		bufIndex++
	}

	if bufIndex > math.MaxUint32 {
		return internalf("block too large for inverse BWT")
	}
	if origPtr >= uint(bufIndex) {
		return corruptf("origPtr out of range")
	}

	bz.preRLE = bz.tt[:bufIndex]
	bz.preRLEUsed = 0
	bz.tPos = inverseBWT(bz.preRLE, origPtr, bz.c[:])
	bz.lastByte = -1
	bz.byteRepeats = 0
	bz.repeats = 0

	if randomized != 0 {
		derandomizeBWTOutput(bz.preRLE, bz.tPos)
	}

	return nil
}

// inverseBWT implements the inverse Burrows-Wheeler transform via the
// "single array" method from the reference bzip2 source (spec §4.2): it
// leaves the shuffled output in the bottom 8 bits of tt with the index of
// the next byte in the upper 24 bits, and returns the index of the first
// byte to emit.
func inverseBWT(tt []uint32, origPtr uint, c []uint) uint32 {
	sum := uint(0)
	for i := 0; i < 256; i++ {
		sum += c[i]
		c[i] = sum - c[i]
	}
	for i := range tt {
		b := tt[i] & 0xff
		tt[c[b]] |= uint32(i) << 8
		c[b]++
	}
	return tt[origPtr] >> 8
}

// derandomizeBWTOutput XORs every byte whose randomNumbers countdown
// reaches zero with 1, in BWT output order, per spec §4.2's randomisation
// path. tPos is the starting index into tt returned by inverseBWT.
func derandomizeBWTOutput(tt []uint32, tPos uint32) {
	r := newRandomizer()
	pos := tPos
	for i := 0; i < len(tt); i++ {
		if r.next() {
			tt[pos] ^= 1
		}
		pos = tt[pos] >> 8
	}
}
