// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

import (
	"bytes"

	"github.com/CaveSystems/cave-compression/bitio"
)

// DecodeBlockAt decodes exactly one block out of src without touching any
// other block in the stream, given the block's byte size (blockSize100k *
// 100000, as carried in the stream header) and the bit offset of its magic
// number, typically taken from a DecodeStats.BlockStartOffsets entry
// recorded by a prior full decode with WithStats. It is the single-block
// random access primitive: blocks are independently addressable once their
// offsets are known, even though seeking within the entropy-coded
// bitstream itself is not supported.
func DecodeBlockAt(blockSize int, src []byte, bitOffset uint) ([]byte, error) {
	bz := &Reader{
		setupDone: true,
		blockSize: blockSize,
		tt:        make([]uint32, blockSize),
		br:        bitio.NewReader(bytes.NewReader(src)),
		lastByte:  -1,
	}
	skipBits(bz.br, bitOffset)
	if err := bz.br.Err(); err != nil {
		return nil, err
	}
	magic := bz.br.ReadBits64(48)
	if err := bz.br.Err(); err != nil {
		return nil, err
	}
	if magic != BlockMagic {
		return nil, corruptf("bad block magic value")
	}
	if err := bz.readBlock(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n := bz.readFromBlock(buf)
		if n == 0 {
			break
		}
		bz.blockCRC.Update(buf[:n])
		out.Write(buf[:n])
	}
	if bz.blockCRC.Sum32() != bz.wantBlockCRC {
		return nil, checksumf("block checksum mismatch")
	}
	return out.Bytes(), nil
}

// skipBits discards n bits from br, 32 bits at a time, the largest chunk
// ReadBits accepts.
func skipBits(br *bitio.Reader, n uint) {
	for n > 0 && br.Err() == nil {
		chunk := n
		if chunk > 32 {
			chunk = 32
		}
		br.ReadBits(chunk)
		n -= chunk
	}
}
