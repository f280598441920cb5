// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package tar

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{
		Name:     "foo/bar.txt",
		Linkname: "",
		Size:     1234,
		Mode:     0o644,
		UID:      1000,
		GID:      1000,
		Uname:    "gopher",
		Gname:    "gopher",
		ModTime:  time.Unix(1_600_000_000, 0).UTC(),
		Typeflag: TypeReg,
	}
	blk := h.marshal(h.Name, h.Linkname, h.Size)
	got, err := unmarshalHeader(blk)
	if err != nil {
		t.Fatalf("unmarshalHeader: %v", err)
	}
	if got.Name != h.Name || got.Size != h.Size || got.Mode != h.Mode ||
		got.UID != h.UID || got.GID != h.GID || got.Uname != h.Uname ||
		got.Gname != h.Gname || got.Typeflag != h.Typeflag ||
		!got.ModTime.Equal(h.ModTime) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestHeaderChecksumMismatch(t *testing.T) {
	h := &Header{Name: "x", Size: 1, Typeflag: TypeReg}
	blk := h.marshal(h.Name, "", h.Size)
	blk[0] ^= 0xff
	if _, err := unmarshalHeader(blk); err == nil {
		t.Fatal("expected checksum error")
	}
}

func writeArchive(t *testing.T, entries []*Header, contents []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for i, h := range entries {
		if err := w.WriteHeader(h); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if contents[i] != "" {
			if _, err := w.Write([]byte(contents[i])); err != nil {
				t.Fatalf("Write: %v", err)
			}
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestWriterReaderRoundTrip(t *testing.T) {
	entries := []*Header{
		{Name: "short.txt", Size: 5, Mode: 0o644, Typeflag: TypeReg, ModTime: time.Unix(1000, 0)},
		{Name: "dir/", Typeflag: TypeDir, Mode: 0o755, ModTime: time.Unix(1000, 0)},
		{Name: "dir/nested.txt", Size: 11, Mode: 0o644, Typeflag: TypeReg, ModTime: time.Unix(1000, 0)},
	}
	contents := []string{"hello", "", "world again"}

	data := writeArchive(t, entries, contents)
	r := NewReader(bytes.NewReader(data))

	for i := range entries {
		h, err := r.Next()
		if err != nil {
			t.Fatalf("Next(%d): %v", i, err)
		}
		if h.Name != entries[i].Name {
			t.Fatalf("entry %d: name = %q, want %q", i, h.Name, entries[i].Name)
		}
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("entry %d: ReadAll: %v", i, err)
		}
		if string(got) != contents[i] {
			t.Fatalf("entry %d: content = %q, want %q", i, got, contents[i])
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("final Next: err = %v, want io.EOF", err)
	}
}

func TestGNULongNameRoundTrip(t *testing.T) {
	longName := strings.Repeat("a/", 60) + "file.txt"
	longLink := strings.Repeat("b", 200)
	entries := []*Header{
		{Name: longName, Linkname: longLink, Size: 0, Typeflag: TypeSymlink, ModTime: time.Unix(1, 0)},
	}
	data := writeArchive(t, entries, []string{""})

	r := NewReader(bytes.NewReader(data))
	h, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if h.Name != longName {
		t.Fatalf("Name = %q, want %q", h.Name, longName)
	}
	if h.Linkname != longLink {
		t.Fatalf("Linkname = %q, want %q", h.Linkname, longLink)
	}
}

func TestPAXSizeRoundTrip(t *testing.T) {
	h := &Header{Name: "big.bin", Size: maxOctalSize + 1, Typeflag: TypeReg, ModTime: time.Unix(1, 0)}
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteHeader(h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	r := NewReader(bytes.NewReader(buf.Bytes()))
	got, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got.Size != maxOctalSize+1 {
		t.Fatalf("Size = %d, want %d", got.Size, maxOctalSize+1)
	}
}

func TestParsePAX(t *testing.T) {
	data := []byte("14 path=short\n" + "12 size=100\n")
	recs, err := parsePAX(data)
	if err != nil {
		t.Fatalf("parsePAX: %v", err)
	}
	if recs["path"] != "short" {
		t.Fatalf("path = %q", recs["path"])
	}
	if recs["size"] != "100" {
		t.Fatalf("size = %q", recs["size"])
	}
}

func TestSafeJoinRejectsEscapes(t *testing.T) {
	cases := []string{
		"/etc/passwd",
		"../escape.txt",
		"a/../../escape.txt",
		"..",
	}
	for _, name := range cases {
		if _, err := safeJoin("/tmp/dest", name); err == nil {
			t.Fatalf("safeJoin(%q): expected error", name)
		}
	}
}

func TestSafeJoinAcceptsNormal(t *testing.T) {
	target, err := safeJoin("/tmp/dest", "a/b/c.txt")
	if err != nil {
		t.Fatalf("safeJoin: %v", err)
	}
	if !strings.HasPrefix(target, "/tmp/dest") {
		t.Fatalf("target = %q, want prefix /tmp/dest", target)
	}
}

func TestWriterEnforcesDeclaredSize(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteHeader(&Header{Name: "f", Size: 2, Typeflag: TypeReg}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := w.Write([]byte("abc")); err == nil {
		t.Fatal("expected error writing past declared size")
	}
}

func TestEndOfArchiveToleratesSingleZeroBlock(t *testing.T) {
	entries := []*Header{{Name: "a.txt", Size: 1, Typeflag: TypeReg, ModTime: time.Unix(1, 0)}}
	data := writeArchive(t, entries, []string{"x"})

	// A single trailing zero block (archive truncated right after it) is
	// tolerated as end-of-archive rather than rejected.
	truncated := data[:len(data)-blockSize]
	r := NewReader(bytes.NewReader(truncated))
	if _, err := r.Next(); err != nil {
		t.Fatalf("Next(entry): %v", err)
	}
	if _, err := io.ReadAll(r); err != nil {
		t.Fatalf("ReadAll(entry): %v", err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next() after truncated trailer: err = %v, want io.EOF", err)
	}
}

func TestFormatPAXRecordSelfConsistent(t *testing.T) {
	rec := formatPAXRecord("path", "foo")
	sp := strings.IndexByte(string(rec), ' ')
	if sp < 0 {
		t.Fatal("missing space")
	}
	if n, err := strconv.Atoi(string(rec[:sp])); err != nil || n != len(rec) || len(rec) != sp+1+len("path=foo\n") {
		t.Fatalf("record length mismatch: %q", rec)
	}
}
