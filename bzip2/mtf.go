// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

// mtfDecoder implements move-to-front decoding over the live symbol
// alphabet that spec §4.2's RLE2/MTF inversion describes.
type mtfDecoder struct {
	symbols []byte
}

func newMTFDecoder(symbols []byte) *mtfDecoder {
	return &mtfDecoder{symbols: symbols}
}

// First returns the symbol currently at the front of the list, without
// moving anything (used when expanding a RUNA/RUNB run).
func (m *mtfDecoder) First() byte {
	return m.symbols[0]
}

// Decode moves the symbol at index to the front and returns it.
func (m *mtfDecoder) Decode(index int) byte {
	v := m.symbols[index]
	copy(m.symbols[1:index+1], m.symbols[:index])
	m.symbols[0] = v
	return v
}

// mtfTreeDecoder decodes the selector stream's MTF-coded tree indexes
// (spec §4.2 "Huffman group decoding").
type mtfTreeDecoder struct {
	order []uint8
}

func newMTFTreeDecoder(numTrees int) *mtfTreeDecoder {
	order := make([]uint8, numTrees)
	for i := range order {
		order[i] = uint8(i)
	}
	return &mtfTreeDecoder{order: order}
}

func (m *mtfTreeDecoder) Decode(index int) uint8 {
	v := m.order[index]
	copy(m.order[1:index+1], m.order[:index])
	m.order[0] = v
	return v
}

// mtfEncoder implements the encoder-side move-to-front transform: Encode
// returns the current index of b in the live list and moves it to front.
type mtfEncoder struct {
	symbols []byte
	index   [256]int16 // -1 if the byte is not in the live alphabet
}

func newMTFEncoder(symbols []byte) *mtfEncoder {
	e := &mtfEncoder{symbols: append([]byte(nil), symbols...)}
	for i := range e.index {
		e.index[i] = -1
	}
	for i, b := range e.symbols {
		e.index[b] = int16(i)
	}
	return e
}

// Encode returns the current MTF index of b and moves it to the front.
func (e *mtfEncoder) Encode(b byte) int {
	idx := int(e.index[b])
	if idx == 0 {
		return 0
	}
	copy(e.symbols[1:idx+1], e.symbols[:idx])
	e.symbols[0] = b
	for i := 0; i <= idx; i++ {
		e.index[e.symbols[i]] = int16(i)
	}
	return idx
}
