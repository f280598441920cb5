// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package tar

import (
	"io"
	"strconv"
	"time"
)

// Reader reads a tar archive as a sequence of entries: call Next to
// advance to each entry's Header, then Read its content before calling
// Next again. It implements io.Reader over the current entry.
type Reader struct {
	r         io.Reader
	curRemain int64
	pad       int64
	err       error

	// globalPAX holds the most recently seen PAX global header's records,
	// which apply to every subsequent entry until a new global header
	// replaces them (POSIX.1-2001).
	globalPAX map[string]string
}

// NewReader returns a Reader reading a tar archive from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next advances to the next entry, resolving any GNU long-name/long-link
// blocks and PAX extended headers that precede it. It returns io.EOF once
// the archive's terminating zero block is reached.
func (tr *Reader) Next() (*Header, error) {
	if tr.err != nil {
		return nil, tr.err
	}
	if err := tr.skipUnread(); err != nil {
		tr.err = err
		return nil, err
	}

	var pendingName, pendingLinkname string
	var sawPending bool
	var paxRecords map[string]string

	for {
		var blk [blockSize]byte
		if _, err := io.ReadFull(tr.r, blk[:]); err != nil {
			tr.err = io.EOF
			return nil, io.EOF
		}
		if isZeroBlock(blk) {
			// End-of-archive is two consecutive zero blocks; a lone zero
			// block (e.g. a stream truncated right after it) is tolerated
			// as end-of-archive too rather than rejected.
			var blk2 [blockSize]byte
			if _, err := io.ReadFull(tr.r, blk2[:]); err != nil || isZeroBlock(blk2) {
				tr.err = io.EOF
				return nil, io.EOF
			}
			blk = blk2
		}
		h, err := unmarshalHeader(blk)
		if err != nil {
			tr.err = err
			return nil, err
		}

		switch h.Typeflag {
		case TypeGNULongName:
			data, err := tr.readMetaEntry(h)
			if err != nil {
				tr.err = err
				return nil, err
			}
			pendingName, sawPending = cString(data), true
			continue
		case TypeGNULongLink:
			data, err := tr.readMetaEntry(h)
			if err != nil {
				tr.err = err
				return nil, err
			}
			pendingLinkname, sawPending = cString(data), true
			continue
		case TypeXHeader:
			data, err := tr.readMetaEntry(h)
			if err != nil {
				tr.err = err
				return nil, err
			}
			recs, err := parsePAX(data)
			if err != nil {
				tr.err = err
				return nil, err
			}
			paxRecords, sawPending = recs, true
			continue
		case TypeXGlobalHeader:
			data, err := tr.readMetaEntry(h)
			if err != nil {
				tr.err = err
				return nil, err
			}
			recs, err := parsePAX(data)
			if err != nil {
				tr.err = err
				return nil, err
			}
			tr.globalPAX = recs
			continue
		}

		if len(tr.globalPAX) > 0 {
			applyPAX(h, tr.globalPAX)
		}
		if sawPending {
			if pendingName != "" {
				h.Name = pendingName
			}
			if pendingLinkname != "" {
				h.Linkname = pendingLinkname
			}
			if paxRecords != nil {
				applyPAX(h, paxRecords)
			}
		}

		tr.curRemain = h.Size
		tr.pad = paddingFor(h.Size)
		return h, nil
	}
}

// Read implements io.Reader over the content of the entry most recently
// returned by Next.
func (tr *Reader) Read(p []byte) (int, error) {
	if tr.curRemain <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > tr.curRemain {
		p = p[:tr.curRemain]
	}
	n, err := tr.r.Read(p)
	tr.curRemain -= int64(n)
	if err == io.EOF && tr.curRemain > 0 {
		return n, unexpectedEOFf("truncated entry data, %d bytes missing", tr.curRemain)
	}
	return n, err
}

func (tr *Reader) skipUnread() error {
	skip := tr.curRemain + tr.pad
	tr.curRemain, tr.pad = 0, 0
	if skip == 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, tr.r, skip); err != nil {
		return unexpectedEOFf("skipping entry: %v", err)
	}
	return nil
}

func (tr *Reader) readMetaEntry(h *Header) ([]byte, error) {
	data := make([]byte, h.Size)
	if _, err := io.ReadFull(tr.r, data); err != nil {
		return nil, unexpectedEOFf("extension entry data: %v", err)
	}
	if pad := paddingFor(h.Size); pad > 0 {
		if _, err := io.CopyN(io.Discard, tr.r, pad); err != nil {
			return nil, unexpectedEOFf("extension entry padding: %v", err)
		}
	}
	return data, nil
}

func paddingFor(size int64) int64 {
	rem := size % blockSize
	if rem == 0 {
		return 0
	}
	return blockSize - rem
}

// parsePAX decodes the "<length> <key>=<value>\n" records of a PAX
// extended header (POSIX.1-2001 §A.2).
func parsePAX(data []byte) (map[string]string, error) {
	records := map[string]string{}
	for len(data) > 0 {
		sp := indexByte(data, ' ')
		if sp < 0 {
			return nil, corruptf("malformed PAX record: missing length")
		}
		length, err := strconv.Atoi(string(data[:sp]))
		if err != nil || length <= 0 || length > len(data) {
			return nil, corruptf("malformed PAX record length")
		}
		rec := data[:length]
		data = data[length:]

		rest := rec[sp+1:]
		if len(rest) > 0 && rest[len(rest)-1] == '\n' {
			rest = rest[:len(rest)-1]
		}
		eq := indexByte(rest, '=')
		if eq < 0 {
			return nil, corruptf("malformed PAX record: missing '='")
		}
		records[string(rest[:eq])] = string(rest[eq+1:])
	}
	return records, nil
}

func applyPAX(h *Header, recs map[string]string) {
	if v, ok := recs[paxPath]; ok {
		h.Name = v
	}
	if v, ok := recs[paxLinkpath]; ok {
		h.Linkname = v
	}
	if v, ok := recs[paxSize]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			h.Size = n
		}
	}
	if v, ok := recs[paxUID]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			h.UID = n
		}
	}
	if v, ok := recs[paxGID]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			h.GID = n
		}
	}
	if v, ok := recs[paxUname]; ok {
		h.Uname = v
	}
	if v, ok := recs[paxGname]; ok {
		h.Gname = v
	}
	if v, ok := recs[paxMtime]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			sec := int64(f)
			nsec := int64((f - float64(sec)) * 1e9)
			h.ModTime = time.Unix(sec, nsec).UTC()
		}
	}
	h.PAXRecords = recs
}
