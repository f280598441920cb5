// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

import (
	"io"

	"github.com/CaveSystems/cave-compression/bitio"
	"github.com/CaveSystems/cave-compression/checksum"
)

// numSendIters is the number of selector/table refinement passes
// sendMTFValues runs before committing to a final assignment, mirroring
// the reference encoder's iterative optimization (spec §4.3).
const numSendIters = 4

// Encoder compresses data into the bzip2 block format described in
// spec §4.3: RLE1, Burrows-Wheeler sort, move-to-front plus RLE2, and
// multi-table canonical Huffman coding. It implements io.WriteCloser.
type Encoder struct {
	w             *bitio.Writer
	blockSize100k int
	limit         int
	wroteHeader   bool
	closed        bool

	buf      []byte
	lastByte int
	runLen   int
	extra    int

	blockCRC    checksum.BZ2CRC
	combinedCRC uint32
}

// NewWriter returns an Encoder that writes a bzip2 stream to w, using
// blocks of blockSize100k * 100000 bytes (1-9, spec §4.1).
func NewWriter(w io.Writer, blockSize100k int) (*Encoder, error) {
	if blockSize100k < MinBlockSize100k || blockSize100k > MaxBlockSize100k {
		return nil, paramf("block size must be in [%d,%d] (100kB units), got %d",
			MinBlockSize100k, MaxBlockSize100k, blockSize100k)
	}
	return &Encoder{
		w:             bitio.NewWriter(w),
		blockSize100k: blockSize100k,
		limit:         blockSize100k*100000 - 20,
		lastByte:      -1,
		buf:           make([]byte, 0, blockSize100k*100000),
	}, nil
}

func (e *Encoder) writeStreamHeader() {
	e.w.WriteBits(uint32(FileMagic[0]), 8)
	e.w.WriteBits(uint32(FileMagic[1]), 8)
	e.w.WriteBits('h', 8)
	e.w.WriteBits(uint32('0'+e.blockSize100k), 8)
}

// Write implements io.Writer, feeding p through RLE1 into the current
// block, flushing full blocks as they fill.
func (e *Encoder) Write(p []byte) (int, error) {
	if e.closed {
		return 0, paramf("write to closed encoder")
	}
	if !e.wroteHeader {
		e.writeStreamHeader()
		e.wroteHeader = true
	}
	n := len(p)
	for _, b := range p {
		e.blockCRC.Update([]byte{b})
		e.feedRLE1(b)
		if len(e.buf) >= e.limit {
			e.flushRun()
			if err := e.endBlock(); err != nil {
				return 0, err
			}
		}
	}
	if err := e.w.Err(); err != nil {
		return 0, err
	}
	return n, nil
}

// feedRLE1 applies one byte of RLE1 encoding (spec §4.3): runs of four
// identical bytes are followed by a single count byte (0-255) giving the
// number of additional repeats, so a run longer than 259 bytes is split
// into successive 4-literal-plus-count chunks.
func (e *Encoder) feedRLE1(b byte) {
	if e.runLen > 0 && b == byte(e.lastByte) {
		e.runLen++
	} else {
		e.flushRun()
		e.lastByte = int(b)
		e.runLen = 1
	}
	if e.runLen <= 4 {
		e.buf = append(e.buf, b)
		return
	}
	e.extra++
	if e.extra == 255 {
		e.buf = append(e.buf, 255)
		e.runLen = 0
		e.extra = 0
		e.lastByte = -1
	}
}

// flushRun closes out any run in progress, emitting its count byte if it
// reached the literal-run threshold.
func (e *Encoder) flushRun() {
	if e.runLen >= 4 {
		e.buf = append(e.buf, byte(e.extra))
	}
	e.runLen = 0
	e.extra = 0
	e.lastByte = -1
}

// endBlock sorts the accumulated block, entropy-codes it, and writes it
// out, then resets state for the next block. The RLE1 state is block
// scoped, matching the decoder's per-block reset.
func (e *Encoder) endBlock() error {
	data := e.buf
	n := len(data)
	if n == 0 {
		return nil
	}

	blockCRC := e.blockCRC.Sum32()
	e.combinedCRC = checksum.CombineBlockCRC(e.combinedCRC, blockCRC)

	ptr, origPtr, randomized := sortBlock(data)

	l := make([]byte, n)
	for i, p := range ptr {
		idx := int(p) - 1
		if idx < 0 {
			idx += n
		}
		l[i] = data[idx]
	}

	e.writeBlockHeader(blockCRC, randomized, origPtr, l)

	mtfSyms, alphaSize, symFreq := generateMTFValues(l)
	if err := e.sendMTFValues(mtfSyms, alphaSize, symFreq); err != nil {
		return err
	}

	e.buf = e.buf[:0]
	e.blockCRC.Reset()
	e.lastByte = -1
	e.runLen = 0
	e.extra = 0
	return e.w.Err()
}

func (e *Encoder) writeBlockHeader(blockCRC uint32, randomized bool, origPtr uint32, l []byte) {
	w := e.w
	w.WriteBits64(BlockMagic, 48)
	w.WriteBits(blockCRC, 32)
	w.WriteBit(randomized)
	w.WriteBits(origPtr, 24)

	var present [256]bool
	for _, b := range l {
		present[b] = true
	}
	var rangeBits [16]uint32
	var rangeUsed uint32
	for r := 0; r < 16; r++ {
		for s := 0; s < 16; s++ {
			if present[16*r+s] {
				rangeBits[r] |= 1 << uint(15-s)
			}
		}
		if rangeBits[r] != 0 {
			rangeUsed |= 1 << uint(15-r)
		}
	}
	w.WriteBits(rangeUsed, 16)
	for r := 0; r < 16; r++ {
		if rangeBits[r] != 0 {
			w.WriteBits(rangeBits[r], 16)
		}
	}
}

// generateMTFValues runs the move-to-front transform over the BWT output l,
// folding runs of the most-recent symbol into a bijective base-2 RUNA/RUNB
// encoding (spec §4.3 "RLE2"), and appends the end-of-block symbol. It
// returns the resulting symbol stream, the alphabet size (distinct bytes in
// l, plus RUNA, RUNB and EOB), and each symbol's frequency.
func generateMTFValues(l []byte) ([]uint16, int, []int32) {
	var present [256]bool
	for _, b := range l {
		present[b] = true
	}
	var symbols []byte
	for i := 0; i < 256; i++ {
		if present[i] {
			symbols = append(symbols, byte(i))
		}
	}
	alphaSize := len(symbols) + 2
	freq := make([]int32, alphaSize)

	mtf := newMTFEncoder(symbols)
	out := make([]uint16, 0, len(l)+1)

	runLen := 0
	flush := func() {
		for runLen > 0 {
			if runLen&1 != 0 {
				out = append(out, 0) // RUNA
				freq[0]++
				runLen = (runLen - 1) / 2
			} else {
				out = append(out, 1) // RUNB
				freq[1]++
				runLen = (runLen - 2) / 2
			}
		}
	}

	for _, b := range l {
		idx := mtf.Encode(b)
		if idx == 0 {
			runLen++
			continue
		}
		flush()
		sym := uint16(idx + 1)
		out = append(out, sym)
		freq[sym]++
	}
	flush()

	eob := uint16(alphaSize - 1)
	out = append(out, eob)
	freq[eob]++
	return out, alphaSize, freq
}

func selectNumGroups(nMTF int) int {
	switch {
	case nMTF < 200:
		return 2
	case nMTF < 600:
		return 3
	case nMTF < 1200:
		return 4
	case nMTF < 2400:
		return 5
	default:
		return 6
	}
}

// sendMTFValues picks a set of Huffman tables and a per-group selector for
// the symbol stream, refining both over a few passes (spec §4.3), then
// writes the table count, selectors, tables and entropy-coded symbols.
func (e *Encoder) sendMTFValues(mtfSyms []uint16, alphaSize int, symFreq []int32) error {
	nMTF := len(mtfSyms)
	nGroups := selectNumGroups(nMTF)
	nSelectors := (nMTF + groupSize - 1) / groupSize

	lengths := make([][]uint8, nGroups)
	seed := hbMakeCodeLengths(symFreq, maxCodeLen)
	for g := range lengths {
		lengths[g] = append([]uint8(nil), seed...)
	}

	selectors := make([]uint8, nSelectors)

	for iter := 0; iter < numSendIters; iter++ {
		groupFreq := make([][]int32, nGroups)
		for g := range groupFreq {
			groupFreq[g] = make([]int32, alphaSize)
		}

		for gi := 0; gi < nSelectors; gi++ {
			lo := gi * groupSize
			hi := lo + groupSize
			if hi > nMTF {
				hi = nMTF
			}
			group := mtfSyms[lo:hi]

			best, bestCost := 0, int64(-1)
			for g := 0; g < nGroups; g++ {
				cost := int64(0)
				for _, s := range group {
					cost += int64(lengths[g][s])
				}
				if bestCost < 0 || cost < bestCost {
					bestCost, best = cost, g
				}
			}
			selectors[gi] = uint8(best)
			for _, s := range group {
				groupFreq[best][s]++
			}
		}

		if iter < numSendIters-1 {
			for g := 0; g < nGroups; g++ {
				lengths[g] = hbMakeCodeLengths(groupFreq[g], maxCodeLen)
			}
		}
	}

	w := e.w
	w.WriteBits(uint32(nGroups), 3)
	w.WriteBits(uint32(nSelectors), 15)

	order := make([]uint8, nGroups)
	for i := range order {
		order[i] = uint8(i)
	}
	for _, sel := range selectors {
		pos := 0
		for order[pos] != sel {
			pos++
		}
		for i := 0; i < pos; i++ {
			w.WriteBit(true)
		}
		w.WriteBit(false)
		copy(order[1:pos+1], order[:pos])
		order[0] = sel
	}

	codes := make([][]uint32, nGroups)
	for g := 0; g < nGroups; g++ {
		writeLengthTable(w, lengths[g])
		codes[g] = assignCanonicalCodes(lengths[g])
	}

	for gi := 0; gi < nSelectors; gi++ {
		lo := gi * groupSize
		hi := lo + groupSize
		if hi > nMTF {
			hi = nMTF
		}
		g := selectors[gi]
		for _, s := range mtfSyms[lo:hi] {
			w.WriteBits(codes[g][s], uint(lengths[g][s]))
		}
	}

	return w.Err()
}

// writeLengthTable writes a Huffman code length table as a 5-bit starting
// value followed by per-symbol unary delta codes, matching the decoder's
// incremental length reconstruction exactly.
func writeLengthTable(w *bitio.Writer, lens []uint8) {
	cur := int(lens[0])
	w.WriteBits(uint32(cur), 5)
	for _, l := range lens {
		target := int(l)
		for cur != target {
			w.WriteBit(true)
			if cur > target {
				w.WriteBit(true)
				cur--
			} else {
				w.WriteBit(false)
				cur++
			}
		}
		w.WriteBit(false)
	}
}

// assignCanonicalCodes builds the canonical Huffman code for each symbol
// from its code length, shortest codes first and ties broken by symbol
// value, which is the same mapping any canonical-Huffman tree (including
// the decoder's) derives from the same length table.
func assignCanonicalCodes(lengths []uint8) []uint32 {
	var blCount [maxCodeLen + 2]int
	maxLen := 0
	for _, l := range lengths {
		blCount[l]++
		if int(l) > maxLen {
			maxLen = int(l)
		}
	}
	code := 0
	var nextCode [maxCodeLen + 2]int
	for bits := 1; bits <= maxLen; bits++ {
		code = (code + blCount[bits-1]) << 1
		nextCode[bits] = code
	}
	codes := make([]uint32, len(lengths))
	for i, l := range lengths {
		if l == 0 {
			continue
		}
		codes[i] = uint32(nextCode[l])
		nextCode[l]++
	}
	return codes
}

// Close flushes any pending block and writes the stream trailer. It does
// not close the underlying writer.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if !e.wroteHeader {
		e.writeStreamHeader()
	}
	e.flushRun()
	if err := e.endBlock(); err != nil {
		return err
	}
	e.w.WriteBits64(EOSMagic, 48)
	e.w.WriteBits(e.combinedCRC, 32)
	return e.w.Flush()
}
