// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package flate

import (
	"fmt"

	"github.com/CaveSystems/cave-compression/cerrors"
)

var (
	errCorrupt = cerrors.CorruptData
	errParam   = cerrors.InvalidParameter
	errChecked = cerrors.ChecksumMismatch
	errUnexp   = cerrors.UnexpectedEndOfInput
)

func corruptf(format string, args ...any) error {
	return fmt.Errorf("flate: %w: %s", errCorrupt, fmt.Sprintf(format, args...))
}

func paramf(format string, args ...any) error {
	return fmt.Errorf("flate: %w: %s", errParam, fmt.Sprintf(format, args...))
}

func checksumf(format string, args ...any) error {
	return fmt.Errorf("flate: %w: %s", errChecked, fmt.Sprintf(format, args...))
}

func unexpectedEOFf(format string, args ...any) error {
	return fmt.Errorf("flate: %w: %s", errUnexp, fmt.Sprintf(format, args...))
}
