// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package tar implements reading and writing of USTAR-format tar archives,
// including the GNU long-name extension and PAX extended headers, per the
// de facto archive layout documented at
// https://www.gnu.org/software/tar/manual/html_node/Standard.html.
package tar

const (
	blockSize = 512
	nameSize  = 100
)

// Typeflag values (USTAR §"typeflag field", plus the GNU and PAX
// extensions this package understands).
const (
	TypeReg           = '0'
	TypeRegA          = '\x00' // pre-POSIX tar wrote a NUL here for regular files
	TypeLink          = '1'
	TypeSymlink       = '2'
	TypeChar          = '3'
	TypeBlock         = '4'
	TypeDir           = '5'
	TypeFifo          = '6'
	TypeCont          = '7'
	TypeXHeader       = 'x' // PAX per-file extended header
	TypeXGlobalHeader = 'g' // PAX global extended header
	TypeGNULongName   = 'L'
	TypeGNULongLink   = 'K'
)

var magicUSTAR = [6]byte{'u', 's', 't', 'a', 'r', 0}
var versionUSTAR = [2]byte{'0', '0'}

// PAX extended header key names this package recognizes (the PAX format
// permits arbitrary keys; unrecognized ones are preserved in
// Header.PAXRecords but otherwise ignored).
const (
	paxPath     = "path"
	paxLinkpath = "linkpath"
	paxSize     = "size"
	paxUID      = "uid"
	paxGID      = "gid"
	paxUname    = "uname"
	paxGname    = "gname"
	paxMtime    = "mtime"
)
