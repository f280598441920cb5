// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package flate

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func roundTrip(t *testing.T, data []byte) {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := NewReader(&buf)
	got, err := readAll(r)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(data))
	}
}

func readAll(r *Reader) ([]byte, error) {
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
	}
}

func TestRoundTrip(t *testing.T) {
	cases := map[string][]byte{
		"empty":      {},
		"single":     []byte("x"),
		"short text": []byte("the quick brown fox jumps over the lazy dog"),
		"run":        bytes.Repeat([]byte{'a'}, 5000),
		"repeated pattern": bytes.Repeat(
			[]byte("abcabcabcabcabc123123123123"), 500),
		"long text": []byte(strings.Repeat(
			"it was the best of times, it was the worst of times; ", 2000)),
		"binary": func() []byte {
			b := make([]byte, 10000)
			x := uint32(12345)
			for i := range b {
				x = x*1664525 + 1013904223
				b[i] = byte(x >> 24)
			}
			return b
		}(),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			roundTrip(t, data)
		})
	}
}

func TestSlidingWindowOverlap(t *testing.T) {
	// Exercises matches whose distance is shorter than their length, which
	// forces the copy to read bytes it only just wrote.
	data := make([]byte, 65537)
	for i := range data {
		data[i] = byte(i % 251)
	}
	roundTrip(t, data)
}

func TestRoundTripAcrossBlockBoundary(t *testing.T) {
	// Pseudo-random bytes yield mostly literal tokens, so the token stream
	// runs past tokensPerBlock and is split across several blocks.
	data := make([]byte, 3*tokensPerBlock)
	x := uint32(1)
	for i := range data {
		x = x*1664525 + 1013904223
		data[i] = byte(x >> 24)
	}
	roundTrip(t, data)
}

func TestZlibRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("zlib wrapped deflate data ", 1000))

	var buf bytes.Buffer
	zw := NewZlibWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	zr, err := NewZlibReader(&buf)
	if err != nil {
		t.Fatalf("NewZlibReader: %v", err)
	}
	var out []byte
	p := make([]byte, 4096)
	for {
		n, err := zr.Read(p)
		out = append(out, p[:n]...)
		if err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("Read: %v", err)
		}
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("zlib round trip mismatch: got %d bytes, want %d", len(out), len(data))
	}
}

func TestZlibBadHeader(t *testing.T) {
	_, err := NewZlibReader(bytes.NewReader([]byte{0x00, 0x00}))
	if err == nil {
		t.Fatal("expected an error for a corrupt zlib header")
	}
}

func TestStoredEmptyBlock(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	r := NewReader(&buf)
	got, err := readAll(r)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no output, got %d bytes", len(got))
	}
}
