// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package tar

import (
	"fmt"

	"github.com/CaveSystems/cave-compression/cerrors"
)

var (
	errCorrupt = cerrors.CorruptData
	errParam   = cerrors.InvalidParameter
	errPath    = cerrors.InvalidPath
	errUnexp   = cerrors.UnexpectedEndOfInput
)

func corruptf(format string, args ...any) error {
	return fmt.Errorf("tar: %w: %s", errCorrupt, fmt.Sprintf(format, args...))
}

func paramf(format string, args ...any) error {
	return fmt.Errorf("tar: %w: %s", errParam, fmt.Sprintf(format, args...))
}

func pathf(format string, args ...any) error {
	return fmt.Errorf("tar: %w: %s", errPath, fmt.Sprintf(format, args...))
}

func unexpectedEOFf(format string, args ...any) error {
	return fmt.Errorf("tar: %w: %s", errUnexp, fmt.Sprintf(format, args...))
}
