// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package flate

import "io"

// huffmanDecoder is a flat lookup table over the next maxCodeLen bits of
// the stream: entries are replicated across every suffix so a single
// maxCodeLen-bit peek resolves any code in one probe, the standard trick
// for decoding canonical Huffman codes at speed (mirrors bzip2's
// shortcutEntry, generalized to the full code-length range DEFLATE
// allows).
type huffmanDecoder struct {
	table []huffmanEntry
}

type huffmanEntry struct {
	symbol uint16
	length uint8
}

// buildHuffmanDecoder constructs a decode table from per-symbol code
// lengths (RFC 1951 §3.2.2's canonical assignment).
func buildHuffmanDecoder(lengths []uint8) (*huffmanDecoder, error) {
	var blCount [maxCodeLen + 1]int
	maxLen := 0
	for _, l := range lengths {
		if l == 0 {
			continue
		}
		if int(l) > maxCodeLen {
			return nil, corruptf("code length %d exceeds maximum", l)
		}
		blCount[l]++
		if int(l) > maxLen {
			maxLen = int(l)
		}
	}
	if maxLen == 0 {
		return &huffmanDecoder{table: nil}, nil
	}

	code := 0
	var nextCode [maxCodeLen + 1]int
	for bits := 1; bits <= maxLen; bits++ {
		code = (code + blCount[bits-1]) << 1
		nextCode[bits] = code
	}

	d := &huffmanDecoder{table: make([]huffmanEntry, 1<<uint(maxLen))}
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		c := nextCode[l]
		nextCode[l]++
		rev := reverseBits(uint16(c), int(l))
		for fill := 0; fill < 1<<(maxLen-int(l)); fill++ {
			idx := int(rev) | fill<<int(l)
			d.table[idx] = huffmanEntry{symbol: uint16(sym), length: l}
		}
	}
	return d, nil
}

func (d *huffmanDecoder) maxLen() int {
	n := len(d.table)
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}

// decode reads one symbol from br using this table.
func (d *huffmanDecoder) decode(br *bitReader) (uint16, error) {
	if len(d.table) == 0 {
		return 0, corruptf("empty Huffman table used for decoding")
	}
	n := uint(d.maxLen())
	br.fill(n)
	if br.err == io.EOF && br.bits > 0 {
		// The stream may end on a code shorter than the table's longest
		// one; resolve it from the bits that are left.
		br.err = nil
	}
	if err := br.Err(); err != nil {
		return 0, err
	}
	e := d.table[br.acc&((1<<n)-1)]
	if e.length == 0 || uint(e.length) > br.bits {
		return 0, corruptf("invalid Huffman code")
	}
	br.dropBits(uint(e.length))
	return e.symbol, nil
}

func reverseBits(v uint16, n int) uint16 {
	var r uint16
	for i := 0; i < n; i++ {
		r = r<<1 | (v & 1)
		v >>= 1
	}
	return r
}

// hbMakeCodeLengths builds canonical code lengths for a symbol-frequency
// table with a package-local priority-queue Huffman construction,
// enforcing maxLen the same way bzip2's hbMakeCodeLengths does: clamp any
// over-long code then rebalance against Kraft's inequality.
func hbMakeCodeLengths(freq []int32, maxLen int) []uint8 {
	n := len(freq)
	lengths := make([]uint8, n)

	type item struct {
		w   int64
		idx int32
	}
	var live []item
	for i, f := range freq {
		if f > 0 {
			live = append(live, item{int64(f) << 8, int32(i)})
		}
	}
	if len(live) == 0 {
		return lengths
	}
	if len(live) == 1 {
		lengths[live[0].idx] = 1
		return lengths
	}

	parent := make([]int32, 2*n)
	weight := make([]int64, 2*n)
	for i := range parent {
		parent[i] = -1
	}
	for _, it := range live {
		weight[it.idx] = it.w
	}

	heap := append([]item(nil), live...)
	less := func(i, j int) bool { return heap[i].w < heap[j].w }
	sortItems := func() {
		for i := 1; i < len(heap); i++ {
			for j := i; j > 0 && less(j, j-1); j-- {
				heap[j], heap[j-1] = heap[j-1], heap[j]
			}
		}
	}
	pop := func() item {
		sortItems()
		v := heap[0]
		heap = heap[1:]
		return v
	}

	nextNode := int32(n)
	for len(heap) > 1 {
		a := pop()
		b := pop()
		parent[a.idx] = nextNode
		parent[b.idx] = nextNode
		aw, ad := a.w>>8, a.w&0xff
		bw, bd := b.w>>8, b.w&0xff
		d := ad
		if bd > d {
			d = bd
		}
		w := ((aw + bw) << 8) | (d + 1)
		weight[nextNode] = w
		heap = append(heap, item{w, nextNode})
		nextNode++
	}

	root := heap[0].idx
	for _, it := range live {
		depth := uint8(0)
		for p := it.idx; p != root; {
			p = parent[p]
			depth++
		}
		if depth == 0 {
			depth = 1
		}
		lengths[it.idx] = depth
	}

	needsRebalance := false
	for i, l := range lengths {
		if int(l) > maxLen {
			lengths[i] = uint8(maxLen)
			needsRebalance = true
		}
	}
	if needsRebalance {
		rebalanceLengths(lengths, maxLen)
	}
	return lengths
}

func rebalanceLengths(lengths []uint8, maxLen int) {
	for {
		budget := 0.0
		shortest := -1
		for i, l := range lengths {
			if l == 0 {
				continue
			}
			budget += 1.0 / float64(uint64(1)<<uint(l))
			if shortest == -1 || l < lengths[shortest] {
				shortest = i
			}
		}
		if budget <= 1.0 || shortest == -1 {
			return
		}
		if int(lengths[shortest])+1 > maxLen {
			return
		}
		lengths[shortest]++
	}
}

// assignCanonicalCodes builds the canonical code for each symbol from its
// length, in the MSB-first form RFC 1951 §3.2.2 specifies; writeCode
// reverses it before emitting, since the bit stream itself is LSB-first.
func assignCanonicalCodes(lengths []uint8) []uint16 {
	var blCount [maxCodeLen + 1]int
	maxLen := 0
	for _, l := range lengths {
		blCount[l]++
		if int(l) > maxLen {
			maxLen = int(l)
		}
	}
	code := 0
	var nextCode [maxCodeLen + 1]int
	for bits := 1; bits <= maxLen; bits++ {
		code = (code + blCount[bits-1]) << 1
		nextCode[bits] = code
	}
	codes := make([]uint16, len(lengths))
	for i, l := range lengths {
		if l == 0 {
			continue
		}
		codes[i] = uint16(nextCode[l])
		nextCode[l]++
	}
	return codes
}
