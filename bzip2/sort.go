// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

// This file implements the block sort the encoder needs: building the
// Burrows-Wheeler transform of a block by sorting all rotations of it. It
// follows the reference bzip2 implementation's approach (spec §4.3):
// multikey quicksort with a Shellsort fallback for small or deeply nested
// ranges, bounded by a work limit that falls back to randomizing the block
// and resorting it if honest sorting would take too long.

const (
	ssSmallThresh = 20
	ssDepthThresh = 10
	workFactor    = 30
)

var incs = [...]int{1, 4, 13, 40, 121, 364, 1093, 3280, 9841, 29524, 88573,
	265720, 797161, 2391484}

// blockSorter holds the working state for one call to sort: the block data
// (indexed mod n so wraparound never goes out of range) and the array of
// rotation start indexes being sorted into place.
type blockSorter struct {
	block []byte // length n, extended conceptually via mod n indexing
	n     int
	ptr   []uint32

	workDone  int64
	workLimit int64
	randomize bool
}

// sortBlock computes the BWT of block, returning the permutation (ptr, such
// that ptr[i] is the starting offset of the i'th rotation in sorted order)
// and the original string's index within that permutation. If the honest
// sort exceeds its work budget it randomizes the block in place (spec §4.3,
// §9) and resorts; randomized reports whether that happened, since the
// decoder needs to know to derandomize.
func sortBlock(block []byte) (ptr []uint32, origPtr uint32, randomized bool) {
	n := len(block)
	s := &blockSorter{
		block:     block,
		n:         n,
		ptr:       make([]uint32, n),
		workLimit: int64(workFactor) * int64(n),
	}
	for i := range s.ptr {
		s.ptr[i] = uint32(i)
	}

	s.mainSort()

	if s.workDone > s.workLimit {
		randomizeBlock(block)
		s2 := &blockSorter{
			block:     block,
			n:         n,
			ptr:       s.ptr,
			workLimit: 1 << 62, // the resort always runs to completion
		}
		for i := range s2.ptr {
			s2.ptr[i] = uint32(i)
		}
		s2.mainSort()
		randomized = true
		s = s2
	}

	for i, p := range s.ptr {
		if p == 0 {
			origPtr = uint32(i)
			break
		}
	}
	return s.ptr, origPtr, randomized
}

// randomizeBlock XORs the block with the same randomNumbers sequence the
// decoder's derandomization path consumes, walking it in plain byte order
// (the encoder has no BWT permutation to follow yet).
func randomizeBlock(block []byte) {
	r := newRandomizer()
	for i := range block {
		if r.next() {
			block[i] ^= 1
		}
	}
}

// at returns the byte at logical offset i (mod n) of the doubled block, as
// the reference implementation's BZ_ITER/fullGtU wraparound addressing
// does.
func (s *blockSorter) at(i int) byte {
	if i >= s.n {
		i -= s.n
	}
	return s.block[i]
}

// mainSort buckets rotations by their first two bytes (a 16-bit radix) and
// then quicksorts each bucket, per spec §4.3's "MainSort" stage.
func (s *blockSorter) mainSort() {
	n := s.n
	if n == 0 {
		return
	}

	var ftab [65537]int32
	for i := 0; i < n; i++ {
		k := (int(s.block[i]) << 8) | int(s.at(i+1))
		ftab[k+1]++
	}
	for i := 1; i <= 65536; i++ {
		ftab[i] += ftab[i-1]
	}

	bucketOf := make([]int32, n)
	cursor := make([]int32, 65537)
	copy(cursor, ftab[:])
	for i := 0; i < n; i++ {
		k := (int(s.block[i]) << 8) | int(s.at(i+1))
		bucketOf[cursor[k]] = int32(i)
		cursor[k]++
	}
	copy(s.ptr, asUint32(bucketOf))

	for k := 0; k < 65536; k++ {
		lo := int(ftab[k])
		hi := int(ftab[k+1]) - 1
		if lo < hi {
			s.qSort3(lo, hi, 2)
		}
	}
}

func asUint32(in []int32) []uint32 {
	out := make([]uint32, len(in))
	for i, v := range in {
		out[i] = uint32(v)
	}
	return out
}

// fullGtU reports whether the rotation starting at i1 sorts after the one
// starting at i2, comparing byte by byte with wraparound modulo n.
//
// The reference implementation's original comparator indexed with a plain
// running offset that could walk past n without wrapping, which is provably
// wrong whenever two rotations share a period dividing n (spec §9 flags
// this as a correctness bug to fix, not preserve); this version always
// takes the offset modulo n so every comparison is well-defined for ties of
// any length, including a block of one repeated byte.
func (s *blockSorter) fullGtU(i1, i2 int) bool {
	n := s.n
	for k := 0; k < n; k++ {
		b1 := s.block[(i1+k)%n]
		b2 := s.block[(i2+k)%n]
		if b1 != b2 {
			return b1 > b2
		}
		s.workDone++
		if k&3 == 3 && s.workDone > s.workLimit {
			return false
		}
	}
	return false // identical rotations; never happens for k == n unless i1 == i2
}

// qSort3 is a Bentley-McIlroy three-way multikey quicksort over s.ptr[lo:hi],
// comparing rotations byte-by-byte starting at offset depth. Equal-prefix
// runs recurse at depth+1 so common prefixes are only compared once more
// rather than being repeatedly rescanned, the core idea behind the
// reference sort's performance on real text.
func (s *blockSorter) qSort3(lo, hi, depth int) {
	for {
		if hi-lo < ssSmallThresh || depth > ssDepthThresh {
			s.simpleSort(lo, hi)
			return
		}
		if s.workDone > s.workLimit {
			return
		}

		mid := lo + (hi-lo)/2
		pivot := s.charAt(s.ptr[mid], depth)

		a, b, c, d := lo, lo, hi, hi
		for {
			for b <= c && s.charAt(s.ptr[b], depth) <= pivot {
				if s.charAt(s.ptr[b], depth) == pivot {
					s.ptr[a], s.ptr[b] = s.ptr[b], s.ptr[a]
					a++
				}
				b++
			}
			for b <= c && s.charAt(s.ptr[c], depth) >= pivot {
				if s.charAt(s.ptr[c], depth) == pivot {
					s.ptr[c], s.ptr[d] = s.ptr[d], s.ptr[c]
					d--
				}
				c--
			}
			if b > c {
				break
			}
			s.ptr[b], s.ptr[c] = s.ptr[c], s.ptr[b]
			b++
			c--
		}

		n1 := min(a-lo, b-a)
		swapRange(s.ptr, lo, b-n1, n1)
		n2 := min(d-c, hi-d)
		swapRange(s.ptr, b, hi+1-n2, n2)

		lt := lo + (b - a)
		gt := hi - (d - c)

		if lt-lo > 1 {
			s.qSort3(lo, lt-1, depth)
		}
		if lt <= gt {
			s.qSort3(lt, gt, depth+1)
		}
		if hi-gt > 1 {
			lo, hi = gt+1, hi
			continue
		}
		return
	}
}

func (s *blockSorter) charAt(rotStart uint32, depth int) int {
	if depth >= s.n {
		return -1
	}
	return int(s.at(int(rotStart) + depth))
}

func swapRange(a []uint32, lo, from int, n int) {
	for i := 0; i < n; i++ {
		a[lo+i], a[from+i] = a[from+i], a[lo+i]
	}
}

// simpleSort is a Shellsort over s.ptr[lo:hi] using the reference
// implementation's increment sequence, comparing whole rotations with
// fullGtU. It handles the small-range and deep-recursion cases qSort3 bails
// out to, where multikey quicksort's overhead stops paying for itself.
func (s *blockSorter) simpleSort(lo, hi int) {
	n := hi - lo + 1
	if n < 2 {
		return
	}

	hp := len(incs) - 1
	for incs[hp] > n {
		hp--
	}

	for ; hp >= 0; hp-- {
		h := incs[hp]
		for i := lo + h; i <= hi; i++ {
			v := s.ptr[i]
			j := i
			for j-h >= lo && s.fullGtU(int(s.ptr[j-h]), int(v)) {
				s.ptr[j] = s.ptr[j-h]
				j -= h
			}
			s.ptr[j] = v
			if s.workDone > s.workLimit {
				return
			}
		}
	}
}
