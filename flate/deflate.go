// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package flate

import "io"

// token is one LZ77-coded unit: either a literal byte or a length/distance
// back-reference into the already-seen window.
type token struct {
	isMatch  bool
	lit      byte
	length   int
	distance int
}

// Writer compresses data into a raw DEFLATE stream (RFC 1951, no zlib or
// gzip framing). It implements io.WriteCloser; Close must be called to
// flush the final block.
//
// Input is buffered in full and matched against in one pass on Close,
// trading streaming output for a simpler, single hash-chain match phase;
// it suits the bounded-size payloads this package targets (archive
// members) rather than unbounded network streams.
type Writer struct {
	bw     *bitWriter
	buf    []byte
	closed bool
}

// NewWriter returns a Writer compressing data to a raw DEFLATE stream
// written to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: newBitWriter(w)}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, paramf("write to closed encoder")
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Close flushes the compressed stream. It does not close the underlying
// writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.encode(); err != nil {
		return err
	}
	return w.bw.Flush()
}

const maxChainLen = 128
const tokensPerBlock = 1 << 15

func (w *Writer) encode() error {
	if len(w.buf) == 0 {
		return w.writeEmptyBlock()
	}
	tokens := w.match()
	for start := 0; start < len(tokens); start += tokensPerBlock {
		stop := start + tokensPerBlock
		if stop > len(tokens) {
			stop = len(tokens)
		}
		final := stop == len(tokens)
		if err := w.writeBlock(tokens[start:stop], final); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeEmptyBlock() error {
	w.bw.writeBit(1)
	w.bw.writeBits(0, 2)
	w.bw.alignToByte()
	w.bw.writeByteAligned(0)
	w.bw.writeByteAligned(0)
	w.bw.writeByteAligned(0xff)
	w.bw.writeByteAligned(0xff)
	return w.bw.Err()
}

func hash3(buf []byte, i int) uint32 {
	h := uint32(buf[i])<<16 | uint32(buf[i+1])<<8 | uint32(buf[i+2])
	return (h * 2654435761) >> (32 - hashBits)
}

func matchLen(buf []byte, a, b int) int {
	max := maxMatchLen
	if rem := len(buf) - b; rem < max {
		max = rem
	}
	n := 0
	for n < max && buf[a+n] == buf[b+n] {
		n++
	}
	return n
}

// match runs a hash-chain LZ77 search over the whole buffer: for each
// position it hashes the next three bytes, walks a bounded chain of prior
// positions sharing that hash, and keeps the longest match found within
// windowSize, falling back to a literal token when nothing reaches
// minMatchLen (spec §4.5's "hashed sliding window" matcher).
func (w *Writer) match() []token {
	buf := w.buf
	n := len(buf)
	var head [hashSize]int32
	for i := range head {
		head[i] = -1
	}
	prev := make([]int32, n)

	insert := func(i int) {
		if i+minMatchLen > n {
			return
		}
		h := hash3(buf, i)
		prev[i] = head[h]
		head[h] = int32(i)
	}

	var tokens []token
	i := 0
	for i < n {
		bestLen, bestDist := 0, 0
		if i+minMatchLen <= n {
			h := hash3(buf, i)
			cand := head[h]
			chain := 0
			for cand >= 0 && chain < maxChainLen {
				dist := i - int(cand)
				if dist > maxDistance {
					break
				}
				l := matchLen(buf, int(cand), i)
				if l > bestLen {
					bestLen, bestDist = l, dist
				}
				cand = prev[cand]
				chain++
			}
		}

		if bestLen >= minMatchLen {
			tokens = append(tokens, token{isMatch: true, length: bestLen, distance: bestDist})
			end := i + bestLen
			for ; i < end; i++ {
				insert(i)
			}
		} else {
			tokens = append(tokens, token{lit: buf[i]})
			insert(i)
			i++
		}
	}
	return tokens
}

func sumFreq(f []int32) int64 {
	var s int64
	for _, v := range f {
		s += int64(v)
	}
	return s
}

func lastNonZero(lengths []uint8, min int) int {
	n := len(lengths)
	for n > min && lengths[n-1] == 0 {
		n--
	}
	if n < min {
		n = min
	}
	return n
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func writeCode(bw *bitWriter, code uint16, length uint8) {
	if length == 0 {
		return
	}
	rev := reverseBits(code, int(length))
	bw.writeBits(uint32(rev), uint(length))
}

// writeBlock writes a dynamic Huffman block (RFC 1951 §3.2.7) for tokens.
// It always uses dynamic tables rather than choosing between stored,
// fixed and dynamic per block; a real compressor also weighs an
// uncompressed fallback, but a freshly built table is never worse than
// static here since it is built from this block's own frequencies.
//
// The code-length alphabet that frames the dynamic tables is transmitted
// without the 16/17/18 repeat codes: every length is sent individually.
// This gives up a little header compression for a substantially simpler
// encoder and has no effect on what a conforming decoder accepts.
func (w *Writer) writeBlock(tokens []token, final bool) error {
	litFreq := make([]int32, numLitSymbols)
	distFreq := make([]int32, numDistSymbol)
	for _, t := range tokens {
		if !t.isMatch {
			litFreq[t.lit]++
			continue
		}
		lc := lengthCode(t.length)
		litFreq[257+lc]++
		dc := distCode(t.distance)
		distFreq[dc]++
	}
	litFreq[endOfBlock]++
	if sumFreq(distFreq) == 0 {
		distFreq[0] = 1
	}

	litLengths := hbMakeCodeLengths(litFreq, maxCodeLen)
	distLengths := hbMakeCodeLengths(distFreq, maxCodeLen)

	hlit := lastNonZero(litLengths, 257)
	hdist := lastNonZero(distLengths, 1)

	combined := make([]uint8, 0, hlit+hdist)
	combined = append(combined, litLengths[:hlit]...)
	combined = append(combined, distLengths[:hdist]...)

	clFreq := make([]int32, 19)
	for _, l := range combined {
		clFreq[l]++
	}
	clLengths := hbMakeCodeLengths(clFreq, 7)

	nclen := 19
	for nclen > 4 && clLengths[codeLengthOrder[nclen-1]] == 0 {
		nclen--
	}
	clCodes := assignCanonicalCodes(clLengths)

	bw := w.bw
	bw.writeBit(boolBit(final))
	bw.writeBits(2, 2)
	bw.writeBits(uint32(hlit-257), 5)
	bw.writeBits(uint32(hdist-1), 5)
	bw.writeBits(uint32(nclen-4), 4)
	for i := 0; i < nclen; i++ {
		bw.writeBits(uint32(clLengths[codeLengthOrder[i]]), 3)
	}
	for _, l := range combined {
		writeCode(bw, clCodes[l], clLengths[l])
	}

	litCodes := assignCanonicalCodes(litLengths)
	distCodes := assignCanonicalCodes(distLengths)
	for _, t := range tokens {
		if !t.isMatch {
			writeCode(bw, litCodes[t.lit], litLengths[t.lit])
			continue
		}
		lc := lengthCode(t.length)
		writeCode(bw, litCodes[257+lc], litLengths[257+lc])
		if eb := lengthExtraBits[lc]; eb > 0 {
			bw.writeBits(uint32(t.length-int(lengthBase[lc])), uint(eb))
		}
		dc := distCode(t.distance)
		writeCode(bw, distCodes[dc], distLengths[dc])
		if eb := distExtraBits[dc]; eb > 0 {
			bw.writeBits(uint32(t.distance-int(distBase[dc])), uint(eb))
		}
	}
	writeCode(bw, litCodes[endOfBlock], litLengths[endOfBlock])

	return bw.Err()
}
