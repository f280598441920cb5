// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

import (
	"fmt"

	"github.com/CaveSystems/cave-compression/cerrors"
)

var (
	errCorrupt  = cerrors.CorruptData
	errChecksum = cerrors.ChecksumMismatch
	errParam    = cerrors.InvalidParameter
	errInternal = cerrors.InternalError
)

// corruptf reports a structural format violation, per spec §7 CorruptData.
func corruptf(format string, args ...any) error {
	return fmt.Errorf("bzip2: %w: %s", errCorrupt, fmt.Sprintf(format, args...))
}

func checksumf(format string, args ...any) error {
	return fmt.Errorf("bzip2: %w: %s", errChecksum, fmt.Sprintf(format, args...))
}

func paramf(format string, args ...any) error {
	return fmt.Errorf("bzip2: %w: %s", errParam, fmt.Sprintf(format, args...))
}

func internalf(format string, args ...any) error {
	return fmt.Errorf("bzip2: %w: %s", errInternal, fmt.Sprintf(format, args...))
}
