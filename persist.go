// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// defaultBootCounterPath returns the per-engineID boot counter file under
// the OS temp directory: one file per engineID so multiple engines on the
// same host don't collide.
func defaultBootCounterPath(engineID string) string {
	name := hex.EncodeToString([]byte(engineID))
	return filepath.Join(os.TempDir(), "snmpengine", name+".boots")
}

// loadAndIncrementBootCounter reads the persisted engineBoots value,
// increments it, and atomically rewrites the file (temp file + rename) so a
// crash mid-write never leaves a torn value behind. A missing or corrupt
// file is treated as boots=0 before incrementing, per RFC 3414 §2.2.2's
// note that a newly commissioned engine starts at 1.
func loadAndIncrementBootCounter(path string) (uint32, error) {
	var current uint64
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		text := strings.TrimSpace(string(data))
		v, perr := strconv.ParseUint(text, 10, 32)
		if perr == nil {
			current = v
		}
	case os.IsNotExist(err):
		current = 0
	default:
		return 0, fmt.Errorf("reading boot counter: %w", err)
	}

	next := current + 1
	if next > 0xFFFFFFFF {
		// RFC 3414 §2.2.2: engineBoots latches at its maximum instead of
		// wrapping, since a wrap would let a replayed message with an old,
		// now-reused boots value slip past the time-window check.
		next = 0xFFFFFFFF
	}

	if err := writeBootCounterAtomic(path, next); err != nil {
		return uint32(next), err
	}
	return uint32(next), nil
}

func writeBootCounterAtomic(path string, value uint64) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating boot counter directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".boots-*")
	if err != nil {
		return fmt.Errorf("creating temp boot counter file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(strconv.FormatUint(value, 10)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp boot counter file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp boot counter file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp boot counter file: %w", err)
	}
	return nil
}
