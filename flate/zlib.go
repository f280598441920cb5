// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package flate

import (
	"io"

	"github.com/CaveSystems/cave-compression/checksum"
)

// zlib's 2-byte header (RFC 1950 §2.2): CMF selects a 32KB window with the
// deflate method, FLG's check bits make the pair a multiple of 31, and the
// preset-dictionary bit is left unset since this package never uses one.
const zlibCMF = 0x78
const zlibFLGNoDict = 0x9c

// ZlibWriter wraps a raw DEFLATE stream in the zlib framing (RFC 1950): a
// 2-byte header followed by the compressed data and a big-endian Adler-32
// trailer over the uncompressed bytes.
type ZlibWriter struct {
	dw     *Writer
	adler  *checksum.Adler32
	header bool
	closed bool
	out    io.Writer
}

// NewZlibWriter returns a WriteCloser that zlib-wraps a DEFLATE stream
// written to w.
func NewZlibWriter(w io.Writer) *ZlibWriter {
	return &ZlibWriter{dw: NewWriter(w), adler: checksum.NewAdler32(), out: w}
}

func (z *ZlibWriter) Write(p []byte) (int, error) {
	if z.closed {
		return 0, paramf("write to closed zlib writer")
	}
	if !z.header {
		if _, err := z.out.Write([]byte{zlibCMF, zlibFLGNoDict}); err != nil {
			return 0, err
		}
		z.header = true
	}
	z.adler.Update(p)
	return z.dw.Write(p)
}

// Close flushes the DEFLATE stream and writes the Adler-32 trailer. It
// does not close the underlying writer.
func (z *ZlibWriter) Close() error {
	if z.closed {
		return nil
	}
	z.closed = true
	if !z.header {
		if _, err := z.out.Write([]byte{zlibCMF, zlibFLGNoDict}); err != nil {
			return err
		}
		z.header = true
	}
	if err := z.dw.Close(); err != nil {
		return err
	}
	sum := z.adler.Sum32()
	_, err := z.out.Write([]byte{
		byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum),
	})
	return err
}

// ZlibReader decompresses a zlib-framed DEFLATE stream (RFC 1950),
// verifying the trailing Adler-32 once the underlying stream reaches EOF.
type ZlibReader struct {
	r        io.Reader
	inflate  *Reader
	adler    *checksum.Adler32
	headerOK bool
	err      error
}

// NewZlibReader returns a Reader decompressing a zlib stream read from r.
func NewZlibReader(r io.Reader) (*ZlibReader, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, unexpectedEOFf("zlib header: %v", err)
	}
	if hdr[0]&0x0f != 8 {
		return nil, corruptf("unsupported zlib compression method")
	}
	if (uint16(hdr[0])<<8|uint16(hdr[1]))%31 != 0 {
		return nil, corruptf("zlib header check failed")
	}
	if hdr[1]&0x20 != 0 {
		return nil, paramf("zlib preset dictionaries are not supported")
	}
	return &ZlibReader{r: r, inflate: NewReader(r), adler: checksum.NewAdler32(), headerOK: true}, nil
}

func (z *ZlibReader) Read(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	n, err := z.inflate.Read(p)
	if n > 0 {
		z.adler.Update(p[:n])
	}
	if err == io.EOF {
		var trailer [4]byte
		if terr := z.inflate.ReadTrailer(trailer[:]); terr != nil {
			z.err = unexpectedEOFf("zlib trailer: %v", terr)
			return n, z.err
		}
		want := uint32(trailer[0])<<24 | uint32(trailer[1])<<16 | uint32(trailer[2])<<8 | uint32(trailer[3])
		if want != z.adler.Sum32() {
			z.err = checksumf("adler-32 mismatch")
			return n, z.err
		}
		z.err = io.EOF
		return n, io.EOF
	}
	if err != nil {
		z.err = err
	}
	return n, err
}
