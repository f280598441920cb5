// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package cerrors defines the error taxonomy shared by the bzip2, flate and
// tar codecs, per spec §7. Each codec wraps one of these sentinels with
// fmt.Errorf("...: %w", ...) so that callers can test the category with
// errors.Is regardless of which codec raised it, while still getting a
// codec-specific message.
package cerrors

import "errors"

var (
	// CorruptData marks any structural violation of a compressed or framed
	// format: bad magic, inconsistent Huffman tables, an out-of-range
	// symbol, and so on.
	CorruptData = errors.New("corrupt data")

	// UnexpectedEndOfInput marks input exhausted mid-field where the format
	// demands more bytes. This is distinct from cooperative suspension
	// ("needs input"), which is not an error at all.
	UnexpectedEndOfInput = errors.New("unexpected end of input")

	// ChecksumMismatch marks a block CRC, stream CRC, Adler-32, or tar
	// header checksum failure.
	ChecksumMismatch = errors.New("checksum mismatch")

	// InvalidParameter marks caller misuse: finish called twice, input
	// supplied before the previous input was drained, a dictionary supplied
	// when none was requested, a negative offset, and so on.
	InvalidParameter = errors.New("invalid parameter")

	// InvalidPath marks a tar extraction path that escapes the extraction
	// root, or an absolute path supplied where one is not permitted.
	InvalidPath = errors.New("invalid path")

	// InternalError marks an invariant violated inside an encoder's sort or
	// Huffman path. It should be unreachable; treat it as fatal.
	InternalError = errors.New("internal error")
)
