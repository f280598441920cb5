// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

import (
	"bytes"
	"io"
	"math/rand"
	"strings"
	"testing"
)

func compress(t *testing.T, data []byte, blockSize100k int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, blockSize100k)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func decompress(t *testing.T, data []byte) []byte {
	t.Helper()
	r := NewReader(bytes.NewReader(data))
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return got
}

func TestRoundTrip(t *testing.T) {
	cases := map[string][]byte{
		"empty":        {},
		"single byte":  []byte("a"),
		"short text":   []byte("the quick brown fox jumps over the lazy dog"),
		"one run":      bytes.Repeat([]byte{'x'}, 10000),
		"exact rle run": bytes.Repeat([]byte{'q'}, 4),
		"long rle run":  bytes.Repeat([]byte{'z'}, 1000),
		"repeated text": bytes.Repeat([]byte("abcabcabcabad "), 5000),
		"all byte values": func() []byte {
			b := make([]byte, 4096)
			for i := range b {
				b[i] = byte(i % 256)
			}
			return b
		}(),
	}

	for name, data := range cases {
		for _, bs := range []int{1, 9} {
			t.Run(name, func(t *testing.T) {
				compressed := compress(t, data, bs)
				got := decompress(t, compressed)
				if !bytes.Equal(got, data) {
					t.Fatalf("round trip mismatch for blockSize100k=%d: got %d bytes, want %d", bs, len(got), len(data))
				}
			})
		}
	}
}

func TestRoundTripPseudoRandom(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	data := make([]byte, 200000)
	rnd.Read(data)

	compressed := compress(t, data, 3)
	got := decompress(t, compressed)
	if !bytes.Equal(got, data) {
		t.Fatal("round trip mismatch on pseudo-random data")
	}
}

func TestRoundTripAcrossBlockBoundary(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 20000) // spans multiple 100k blocks at level 1
	compressed := compress(t, data, 1)
	got := decompress(t, compressed)
	if !bytes.Equal(got, data) {
		t.Fatal("round trip mismatch across block boundary")
	}
}

func TestDecoderRejectsBadMagic(t *testing.T) {
	r := NewReader(strings.NewReader("not a bzip2 stream"))
	if _, err := io.ReadAll(r); err == nil {
		t.Fatal("expected error for bad file magic")
	}
}

func TestDecoderRejectsTruncatedStream(t *testing.T) {
	compressed := compress(t, bytes.Repeat([]byte("hello world "), 500), 1)
	truncated := compressed[:len(compressed)-10]
	r := NewReader(bytes.NewReader(truncated))
	if _, err := io.ReadAll(r); err == nil {
		t.Fatal("expected error for truncated stream")
	}
}

func TestWithStats(t *testing.T) {
	data := bytes.Repeat([]byte("statistics test data "), 10000)
	compressed := compress(t, data, 1)

	r := NewReader(bytes.NewReader(compressed), WithStats())
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("stats-collecting read produced wrong data")
	}
	stats := r.Stats()
	if len(stats.BlockStartOffsets) == 0 {
		t.Fatal("expected at least one recorded block offset")
	}
	if len(stats.BlockCRCs) != len(stats.BlockStartOffsets) {
		t.Fatalf("%d block CRCs recorded for %d blocks", len(stats.BlockCRCs), len(stats.BlockStartOffsets))
	}
	if stats.StreamCRC == 0 {
		t.Fatal("expected a non-zero stream CRC for non-empty input")
	}
}

func TestDecodeBlockAt(t *testing.T) {
	data := bytes.Repeat([]byte("random access probe data "), 8000)
	compressed := compress(t, data, 1)

	r := NewReader(bytes.NewReader(compressed), WithStats())
	want, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	stats := r.Stats()
	if len(stats.BlockStartOffsets) == 0 {
		t.Fatal("expected at least one block")
	}

	blockSize := 1 * 100 * 1000
	got, err := DecodeBlockAt(blockSize, compressed, stats.BlockStartOffsets[0])
	if err != nil {
		t.Fatalf("DecodeBlockAt: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected non-empty block content")
	}
	if !bytes.HasPrefix(want, got) {
		t.Fatal("DecodeBlockAt content is not the leading block's content")
	}
}

func TestMTFRoundTrip(t *testing.T) {
	symbols := []byte{'c', 'a', 'b', 'd'}
	enc := newMTFEncoder(symbols)
	input := []byte{'a', 'a', 'b', 'd', 'c', 'a'}
	var indexes []int
	for _, b := range input {
		indexes = append(indexes, enc.Encode(b))
	}

	dec := newMTFDecoder(append([]byte(nil), symbols...))
	for i, idx := range indexes {
		got := dec.Decode(idx)
		if got != input[i] {
			t.Fatalf("index %d: decoded %q, want %q", i, got, input[i])
		}
	}
}

func TestRandomizerDeterministic(t *testing.T) {
	a := newRandomizer()
	b := newRandomizer()
	for i := 0; i < 1000; i++ {
		if a.next() != b.next() {
			t.Fatalf("randomizer diverged at step %d", i)
		}
	}
}
