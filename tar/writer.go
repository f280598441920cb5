// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package tar

import (
	"io"
	"strconv"
	"time"
)

// maxOctalSize is the largest value the 12-byte octal size field can hold
// (11 usable digits); larger sizes are carried in a PAX extended header.
const maxOctalSize = 1<<(11*3) - 1

// Writer writes a tar archive one entry at a time: call WriteHeader, then
// write exactly Size bytes of content, then WriteHeader again for the
// next entry (or Close to terminate the archive).
type Writer struct {
	w         io.Writer
	curRemain int64
	pad       int64
	closed    bool
	err       error
}

// NewWriter returns a Writer writing a tar archive to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes h, emitting a GNU long-name/long-link block ahead of
// it when Name or Linkname is 100 bytes or longer (the USTAR field then
// holds the first 99 bytes), and a PAX extended header when Size is
// negative or exceeds the 12-byte octal field's range.
func (tw *Writer) WriteHeader(h *Header) error {
	if tw.err != nil {
		return tw.err
	}
	if err := tw.finishEntry(); err != nil {
		tw.err = err
		return err
	}

	if len(h.Name) > nameSize-1 {
		if err := tw.writeGNUBlock(TypeGNULongName, h.Name); err != nil {
			tw.err = err
			return err
		}
	}
	if len(h.Linkname) > nameSize-1 {
		if err := tw.writeGNUBlock(TypeGNULongLink, h.Linkname); err != nil {
			tw.err = err
			return err
		}
	}

	// A symlink or hardlink's target lives in Linkname, not the entry
	// body; USTAR and every reader in the wild expect these to carry no
	// content regardless of what the caller set Size to.
	if h.Typeflag == TypeSymlink || h.Typeflag == TypeLink {
		h.Size = 0
	}

	if h.Size < 0 || h.Size > maxOctalSize {
		pax := map[string]string{paxSize: strconv.FormatInt(h.Size, 10)}
		if err := tw.writePAXBlock(pax); err != nil {
			tw.err = err
			return err
		}
	}

	name, linkname := h.Name, h.Linkname
	if len(name) > nameSize-1 {
		name = name[:nameSize-1]
	}
	if len(linkname) > nameSize-1 {
		linkname = linkname[:nameSize-1]
	}
	size := h.Size
	if size < 0 || size > maxOctalSize {
		size = 0
	}

	blk := h.marshal(name, linkname, size)
	if _, err := tw.w.Write(blk[:]); err != nil {
		tw.err = err
		return err
	}

	tw.curRemain = h.Size
	tw.pad = paddingFor(h.Size)
	return nil
}

// Write implements io.Writer over the content of the entry most recently
// passed to WriteHeader; writing more than Size bytes is an error.
func (tw *Writer) Write(p []byte) (int, error) {
	if tw.err != nil {
		return 0, tw.err
	}
	if int64(len(p)) > tw.curRemain {
		return 0, paramf("write exceeds declared entry size by %d bytes", int64(len(p))-tw.curRemain)
	}
	n, err := tw.w.Write(p)
	tw.curRemain -= int64(n)
	if err != nil {
		tw.err = err
	}
	return n, err
}

func (tw *Writer) finishEntry() error {
	if tw.curRemain != 0 {
		return paramf("previous entry is missing %d bytes of content", tw.curRemain)
	}
	if tw.pad > 0 {
		var zeros [blockSize]byte
		if _, err := tw.w.Write(zeros[:tw.pad]); err != nil {
			return err
		}
		tw.pad = 0
	}
	return nil
}

// Close finishes the current entry and writes the archive's two
// terminating zero blocks. It does not close the underlying writer.
func (tw *Writer) Close() error {
	if tw.closed {
		return tw.err
	}
	tw.closed = true
	if err := tw.finishEntry(); err != nil {
		tw.err = err
		return err
	}
	var zeros [blockSize]byte
	if _, err := tw.w.Write(zeros[:]); err != nil {
		tw.err = err
		return err
	}
	if _, err := tw.w.Write(zeros[:]); err != nil {
		tw.err = err
		return err
	}
	return nil
}

func (tw *Writer) writeRawPadded(data []byte) error {
	if _, err := tw.w.Write(data); err != nil {
		return err
	}
	if pad := paddingFor(int64(len(data))); pad > 0 {
		var zeros [blockSize]byte
		if _, err := tw.w.Write(zeros[:pad]); err != nil {
			return err
		}
	}
	return nil
}

func (tw *Writer) writeGNUBlock(typeflag byte, value string) error {
	data := []byte(value + "\x00")
	gh := &Header{Name: "././@LongLink", Typeflag: typeflag}
	blk := gh.marshal(gh.Name, "", int64(len(data)))
	if _, err := tw.w.Write(blk[:]); err != nil {
		return err
	}
	return tw.writeRawPadded(data)
}

func (tw *Writer) writePAXBlock(records map[string]string) error {
	var buf []byte
	for k, v := range records {
		buf = append(buf, formatPAXRecord(k, v)...)
	}
	ph := &Header{Name: "pax_global_header", Typeflag: TypeXHeader, ModTime: time.Now()}
	blk := ph.marshal(ph.Name, "", int64(len(buf)))
	if _, err := tw.w.Write(blk[:]); err != nil {
		return err
	}
	return tw.writeRawPadded(buf)
}

// formatPAXRecord renders one "<length> <key>=<value>\n" record, solving
// for length including its own digit count (POSIX.1-2001 §A.2).
func formatPAXRecord(k, v string) []byte {
	fixed := len(k) + len(v) + 3 // ' ' + '=' + '\n'
	size := fixed
	for {
		total := len(strconv.Itoa(size)) + fixed
		if total == size {
			break
		}
		size = total
	}
	return []byte(strconv.Itoa(size) + " " + k + "=" + v + "\n")
}
