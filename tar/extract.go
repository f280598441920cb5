// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package tar

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extract reads every entry from r and recreates it under destDir,
// rejecting any entry whose Name would resolve outside destDir (an
// absolute path, a Windows drive-letter path, or one escaping via "..").
// Only regular files, directories and symlinks are materialized; other
// typeflags are skipped.
func Extract(r *Reader, destDir string) error {
	for {
		h, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target, err := safeJoin(destDir, h.Name)
		if err != nil {
			return err
		}
		if err := extractEntry(r, h, target); err != nil {
			return err
		}
	}
}

// safeJoin resolves name against destDir and verifies the result does
// not escape destDir, returning the cleaned absolute path on success.
func safeJoin(destDir, name string) (string, error) {
	if name == "" {
		return "", pathf("empty entry name")
	}
	if filepath.IsAbs(name) || isWindowsAbs(name) {
		return "", pathf("entry has an absolute path: %q", name)
	}
	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", pathf("entry escapes destination: %q", name)
	}

	base, err := filepath.Abs(destDir)
	if err != nil {
		return "", pathf("resolving destination: %v", err)
	}
	target := filepath.Join(base, clean)
	if target != base && !strings.HasPrefix(target, base+string(filepath.Separator)) {
		return "", pathf("entry escapes destination: %q", name)
	}
	return target, nil
}

func isWindowsAbs(name string) bool {
	return len(name) >= 2 && name[1] == ':' && ((name[0] >= 'a' && name[0] <= 'z') || (name[0] >= 'A' && name[0] <= 'Z'))
}

func extractEntry(r *Reader, h *Header, target string) error {
	switch h.Typeflag {
	case TypeDir:
		return os.MkdirAll(target, os.FileMode(h.Mode)|0o700)
	case TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Symlink(h.Linkname, target)
	case TypeReg, TypeRegA, TypeCont:
		if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
			return err
		}
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(h.Mode)|0o600)
		if err != nil {
			return err
		}
		_, copyErr := io.Copy(f, r)
		closeErr := f.Close()
		if copyErr != nil {
			return copyErr
		}
		return closeErr
	default:
		return nil
	}
}
