// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

import (
	"sort"

	"github.com/CaveSystems/cave-compression/bitio"
)

// huffmanTree is a binary tree navigated bit-by-bit to reach a symbol, per
// spec §4.2's HbCreateDecodeTables. nodes[0] is the root; nextNode tracks
// the next free slot while building.
type huffmanTree struct {
	nodes    []huffmanNode
	nextNode int
	shortcut [256]shortcutEntry
}

// huffmanNode holds child indices into nodes, or invalidNodeValue if that
// child is itself a leaf, in which case *Value holds the decoded symbol.
//
// Symbols are uint16 because bzip2 encodes not only MTF indexes but RUNA,
// RUNB and an EOB symbol, so more than 256 values are possible.
type huffmanNode struct {
	left, right           uint16
	leftValue, rightValue uint16
}

const invalidNodeValue = 0xffff

// shortcutEntry lets Decode skip the first 8 bits of tree traversal: bit 3
// flags whether this is a terminal symbol, bits 0-2 give the code length
// minus one in that case, and the remaining bits hold either the symbol or the node to
// resume traversal from.
type shortcutEntry uint16

func (s shortcutEntry) isSymbol() bool { return s&0x8 != 0 }
func (s shortcutEntry) codeLen() uint  { return uint(s&0x7) + 1 }
func (s shortcutEntry) value() uint16  { return uint16(s >> 4) }

// Decode reads bits from br and walks the tree until it reaches a symbol.
func (t *huffmanTree) Decode(br *bitio.Reader) uint16 {
	b := br.Peek(8)
	se := t.shortcut[b]
	if se.isSymbol() {
		br.Drop(se.codeLen())
		return se.value()
	}
	br.Drop(8)
	nodeIndex := se.value()

	for {
		node := &t.nodes[nodeIndex]
		bit := br.ReadBits(1)

		l, r := node.left, node.right
		if bit == 1 {
			nodeIndex = l
		} else {
			nodeIndex = r
		}
		if nodeIndex == invalidNodeValue {
			if bit == 1 {
				return node.leftValue
			}
			return node.rightValue
		}
	}
}

func (t *huffmanTree) buildShortcut() {
	for b := range t.shortcut {
		n := uint16(0)
		for i := 0; i < 8; i++ {
			node := &t.nodes[n]
			var v uint16
			if (b>>(7-i))&1 != 0 {
				n = node.left
				v = node.leftValue
			} else {
				n = node.right
				v = node.rightValue
			}
			if n == invalidNodeValue {
				t.shortcut[b] = shortcutEntry(v<<4 | 0x8 | uint16(i))
				break
			}
		}
		if n != invalidNodeValue {
			t.shortcut[b] = shortcutEntry(n << 4)
		}
	}
}

// newHuffmanTree builds a canonical Huffman tree from per-symbol code
// lengths (min 1, max maxCodeLen; spec §4.2).
func newHuffmanTree(lengths []uint8) (huffmanTree, error) {
	if len(lengths) < 2 {
		return huffmanTree{}, internalf("too few symbols for a Huffman tree")
	}

	type pair struct {
		value  uint16
		length uint8
	}
	pairs := make([]pair, len(lengths))
	for i, l := range lengths {
		pairs[i] = pair{value: uint16(i), length: l}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].length != pairs[j].length {
			return pairs[i].length < pairs[j].length
		}
		return pairs[i].value < pairs[j].value
	})

	codes := make([]huffmanCode, len(lengths))
	c := uint32(0)
	length := uint8(32)
	for i := len(pairs) - 1; i >= 0; i-- {
		if length > pairs[i].length {
			length = pairs[i].length
		}
		codes[i] = huffmanCode{code: c, codeLen: length, value: pairs[i].value}
		c += 1 << (32 - length)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i].code < codes[j].code })

	var t huffmanTree
	t.nodes = make([]huffmanNode, len(codes))
	_, err := buildHuffmanNode(&t, codes, 0)
	t.buildShortcut()
	return t, err
}

// huffmanCode is a symbol paired with its canonical code and code length,
// used only while constructing a huffmanTree.
type huffmanCode struct {
	code    uint32
	codeLen uint8
	value   uint16
}

func buildHuffmanNode(t *huffmanTree, codes []huffmanCode, level uint32) (uint16, error) {
	test := uint32(1) << (31 - level)

	split := len(codes)
	for i, cd := range codes {
		if cd.code&test != 0 {
			split = i
			break
		}
	}
	left, right := codes[:split], codes[split:]

	if len(left) == 0 || len(right) == 0 {
		if len(codes) < 2 {
			return 0, corruptf("empty Huffman tree")
		}
		if level == 31 {
			return 0, corruptf("equal symbols in Huffman tree")
		}
		if len(left) == 0 {
			return buildHuffmanNode(t, right, level+1)
		}
		return buildHuffmanNode(t, left, level+1)
	}

	nodeIndex := uint16(t.nextNode)
	node := &t.nodes[t.nextNode]
	t.nextNode++

	var err error
	if len(left) == 1 {
		node.left = invalidNodeValue
		node.leftValue = left[0].value
	} else {
		node.left, err = buildHuffmanNode(t, left, level+1)
		if err != nil {
			return 0, err
		}
	}
	if len(right) == 1 {
		node.right = invalidNodeValue
		node.rightValue = right[0].value
	} else {
		node.right, err = buildHuffmanNode(t, right, level+1)
		if err != nil {
			return 0, err
		}
	}
	return nodeIndex, nil
}

// heapItem is a Huffman priority-queue entry: a packed (frequency<<8|depth)
// weight and the index of the tree node it refers to.
type heapItem struct {
	w   int64
	idx int32
}

// hbMakeCodeLengths builds canonical code lengths for a symbol-frequency
// table using a simple priority-queue Huffman construction, then enforces
// maxCodeLen via the "weight-rebalancing fallback" spec §4.3 calls for when
// a code would otherwise exceed 20 bits.
func hbMakeCodeLengths(freq []int32, maxLen int) []uint8 {
	n := len(freq)
	lengths := make([]uint8, n)
	if n == 0 {
		return lengths
	}
	if n == 1 {
		lengths[0] = 1
		return lengths
	}

	// parent[i] records the Huffman merge tree used to recover depths.
	parent := make([]int32, 2*n)
	weight := make([]int64, 2*n)
	for i := 0; i < n; i++ {
		f := freq[i]
		if f == 0 {
			f = 1
		}
		weight[i] = int64(f) << 8
		parent[i] = -1
	}

	hl := &huffHeap{items: make([]heapItem, n)}
	for i := 0; i < n; i++ {
		hl.items[i] = heapItem{weight[i], int32(i)}
	}
	sort.Sort(hl)

	nNodes := int32(n)
	for hl.Len() > 1 {
		n1 := hl.pop()
		n2 := hl.pop()
		parent[n1.idx] = nNodes
		parent[n2.idx] = nNodes
		w := addWeights(n1.w, n2.w)
		weight[nNodes] = w
		hl.push(heapItem{w, nNodes})
		nNodes++
	}

	root := hl.pop().idx
	for i := int32(0); i < int32(n); i++ {
		depth := 0
		for p := i; p != root; {
			p = parent[p]
			depth++
		}
		lengths[i] = uint8(depth)
	}

	// Enforce the maximum code length: clamp then rebalance against
	// Kraft's inequality. bzip2's tables are small (at most 258
	// symbols) so a direct cap-and-renormalize pass suffices; this is the
	// "weight-rebalancing fallback" of spec §4.3.
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

// addWeights combines two packed (frequency<<8|depth) values, taking the
// max of the depth bytes plus one so the eventual code length tracks the
// deepest merge, while summing the frequency.
func addWeights(a, b int64) int64 {
	af, ad := a>>8, a&0xff
	bf, bd := b>>8, b&0xff
	d := ad
	if bd > d {
		d = bd
	}
	return ((af + bf) << 8) | (d + 1)
}

// rebalanceLengths adjusts a set of code lengths, already individually
// clamped to maxLen, so that Kraft's inequality (sum 2^-len <= 1) holds and
// a canonical assignment is possible; it does so by lengthening the
// shortest codes until the budget balances.
func rebalanceLengths(lengths []uint8, maxLen int) {
	for {
		budget := 0.0
		for _, l := range lengths {
			budget += 1.0 / float64(uint64(1)<<uint(l))
		}
		if budget <= 1.0 {
			return
		}
		// find the shortest code and lengthen it
		shortest := 0
		for i := 1; i < len(lengths); i++ {
			if lengths[i] < lengths[shortest] {
				shortest = i
			}
		}
		if int(lengths[shortest])+1 > maxLen {
			// nothing left to do without violating maxLen; this would be
			// an InternalError in practice, but bzip2's group sizes never
			// reach this for groupSize-sized frequency tables.
			return
		}
		lengths[shortest]++
	}
}

// huffHeap is a priority queue of heapItem re-sorted on every pop; tables
// are small enough (at most 258 symbols) that re-sorting beats the
// bookkeeping of a real binary heap.
type huffHeap struct {
	items []heapItem
}

func (h *huffHeap) Len() int           { return len(h.items) }
func (h *huffHeap) Less(i, j int) bool { return h.items[i].w < h.items[j].w }
func (h *huffHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *huffHeap) pop() heapItem {
	sort.Sort(h)
	out := h.items[0]
	h.items = h.items[1:]
	return out
}

func (h *huffHeap) push(it heapItem) {
	h.items = append(h.items, it)
}
