// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package flate

import (
	"bufio"
	"io"
)

var fixedLitDecoder, fixedDistDecoder *huffmanDecoder

func init() {
	var err error
	fixedLitDecoder, err = buildHuffmanDecoder(fixedLitLengths)
	if err != nil {
		panic(err)
	}
	fixedDistDecoder, err = buildHuffmanDecoder(fixedDistLengths)
	if err != nil {
		panic(err)
	}
}

// Reader decompresses a raw DEFLATE stream (RFC 1951, no zlib or gzip
// framing). It implements io.Reader.
type Reader struct {
	br   *bitReader
	hist []byte
	pos  int
	done bool
	err  error
}

// NewReader returns a Reader decompressing DEFLATE data read from r.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{br: newBitReader(br)}
}

// ReadTrailer reads len(buf) raw bytes immediately following the stream's
// final block, through the same byte source the stream was decoded from.
// A caller wrapping Reader in a framing format with a trailer (zlib's
// Adler-32) must use this instead of reading the underlying io.Reader
// directly: NewReader may have installed a buffered reader ahead of
// decoding, and that buffer's read-ahead can already hold the trailer's
// bytes by the time the final block is decoded.
func (r *Reader) ReadTrailer(buf []byte) error {
	r.br.alignToByte()
	for i := range buf {
		buf[i] = r.br.readByteAligned()
		if err := r.br.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	for r.pos >= len(r.hist) && !r.done {
		if err := r.decodeBlock(); err != nil {
			r.err = err
			return 0, err
		}
	}
	if r.pos >= len(r.hist) {
		r.err = io.EOF
		return 0, io.EOF
	}
	n := copy(p, r.hist[r.pos:])
	r.pos += n
	r.trim()
	return n, nil
}

// trim drops consumed history beyond one window's worth, bounding memory
// use for long streams without disturbing any future back-reference, since
// distances never exceed windowSize.
func (r *Reader) trim() {
	if r.pos > windowSize*2 {
		drop := r.pos - windowSize
		r.hist = append(r.hist[:0], r.hist[drop:]...)
		r.pos -= drop
	}
}

func (r *Reader) decodeBlock() error {
	final := r.br.readBit()
	btype := r.br.readBits(2)
	if err := r.br.Err(); err != nil {
		return unexpectedEOFf("block header: %v", err)
	}

	switch btype {
	case 0:
		if err := r.readStored(); err != nil {
			return err
		}
	case 1:
		if err := r.readHuffmanBlock(fixedLitDecoder, fixedDistDecoder); err != nil {
			return err
		}
	case 2:
		lit, dist, err := r.readDynamicTables()
		if err != nil {
			return err
		}
		if err := r.readHuffmanBlock(lit, dist); err != nil {
			return err
		}
	default:
		return corruptf("reserved block type 3")
	}

	if final == 1 {
		r.done = true
	}
	return nil
}

func (r *Reader) readStored() error {
	r.br.alignToByte()
	lenLo := r.br.readByteAligned()
	lenHi := r.br.readByteAligned()
	nlenLo := r.br.readByteAligned()
	nlenHi := r.br.readByteAligned()
	if err := r.br.Err(); err != nil {
		return unexpectedEOFf("stored block header: %v", err)
	}
	length := int(lenLo) | int(lenHi)<<8
	nlen := int(nlenLo) | int(nlenHi)<<8
	if length^0xffff != nlen {
		return corruptf("stored block length check failed")
	}
	for i := 0; i < length; i++ {
		b := r.br.readByteAligned()
		if err := r.br.Err(); err != nil {
			return unexpectedEOFf("stored block data: %v", err)
		}
		r.hist = append(r.hist, b)
	}
	return nil
}

func (r *Reader) readHuffmanBlock(lit, dist *huffmanDecoder) error {
	for {
		sym, err := lit.decode(r.br)
		if err != nil {
			return err
		}
		if sym < 256 {
			r.hist = append(r.hist, byte(sym))
			continue
		}
		if sym == endOfBlock {
			return nil
		}

		lengthIdx := int(sym) - 257
		if lengthIdx < 0 || lengthIdx >= len(lengthBase) {
			return corruptf("invalid length code %d", sym)
		}
		length := int(lengthBase[lengthIdx])
		if eb := lengthExtraBits[lengthIdx]; eb > 0 {
			length += int(r.br.readBits(uint(eb)))
		}

		distSym, err := dist.decode(r.br)
		if err != nil {
			return err
		}
		if int(distSym) >= len(distBase) {
			return corruptf("invalid distance code %d", distSym)
		}
		distance := int(distBase[distSym])
		if eb := distExtraBits[distSym]; eb > 0 {
			distance += int(r.br.readBits(uint(eb)))
		}
		if err := r.br.Err(); err != nil {
			return unexpectedEOFf("match extra bits: %v", err)
		}
		if distance > len(r.hist) {
			return corruptf("distance %d exceeds available history (%d)", distance, len(r.hist))
		}

		start := len(r.hist) - distance
		for i := 0; i < length; i++ {
			r.hist = append(r.hist, r.hist[start+i])
		}
	}
}

func (r *Reader) readDynamicTables() (*huffmanDecoder, *huffmanDecoder, error) {
	hlit := int(r.br.readBits(5)) + 257
	hdist := int(r.br.readBits(5)) + 1
	hclen := int(r.br.readBits(4)) + 4
	if err := r.br.Err(); err != nil {
		return nil, nil, unexpectedEOFf("dynamic block header: %v", err)
	}

	var clLengths [19]uint8
	for i := 0; i < hclen; i++ {
		clLengths[codeLengthOrder[i]] = uint8(r.br.readBits(3))
	}
	if err := r.br.Err(); err != nil {
		return nil, nil, unexpectedEOFf("code length table: %v", err)
	}

	clDec, err := buildHuffmanDecoder(clLengths[:])
	if err != nil {
		return nil, nil, err
	}

	total := hlit + hdist
	lengths := make([]uint8, total)
	i := 0
	var prev uint8
	for i < total {
		sym, err := clDec.decode(r.br)
		if err != nil {
			return nil, nil, err
		}
		switch {
		case sym < 16:
			lengths[i] = uint8(sym)
			prev = uint8(sym)
			i++
		case sym == 16:
			if i == 0 {
				return nil, nil, corruptf("repeat code with no previous length")
			}
			n := int(r.br.readBits(2)) + 3
			for j := 0; j < n && i < total; j++ {
				lengths[i] = prev
				i++
			}
		case sym == 17:
			n := int(r.br.readBits(3)) + 3
			for j := 0; j < n && i < total; j++ {
				lengths[i] = 0
				i++
			}
		case sym == 18:
			n := int(r.br.readBits(7)) + 11
			for j := 0; j < n && i < total; j++ {
				lengths[i] = 0
				i++
			}
		default:
			return nil, nil, corruptf("invalid code length symbol %d", sym)
		}
	}
	if err := r.br.Err(); err != nil {
		return nil, nil, unexpectedEOFf("code lengths: %v", err)
	}

	litDec, err := buildHuffmanDecoder(lengths[:hlit])
	if err != nil {
		return nil, nil, err
	}
	distDec, err := buildHuffmanDecoder(lengths[hlit:])
	if err != nil {
		return nil, nil, err
	}
	return litDec, distDec, nil
}
