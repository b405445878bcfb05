// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package docid canonicalizes the caller-supplied source string into the
// SourceId used as the cache key throughout DC and BL (SPEC_FULL.md §3).
package docid

import (
	"os"
	"path/filepath"
	"strings"
)

// SourceId is a stable, canonical identifier. Equality defines cache
// identity: two Canonicalize calls over equivalent file paths must agree.
type SourceId string

// Canonicalize derives a SourceId from raw. Filesystem-path-shaped inputs
// are made absolute and cleaned; URL-shaped strings and arbitrary
// identifiers pass through verbatim (the core only distinguishes "looks
// like an accessible file path" from everything else, per §6).
func Canonicalize(raw string) SourceId {
	if !LooksLikeFilePath(raw) {
		return SourceId(raw)
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return SourceId(raw)
	}
	return SourceId(filepath.Clean(abs))
}

// LooksLikeFilePath reports whether raw should be treated as a filesystem
// path for mtime/staleness purposes, rather than an opaque identifier.
func LooksLikeFilePath(raw string) bool {
	if raw == "" {
		return false
	}
	if strings.Contains(raw, "://") {
		return false
	}
	return true
}

// Stat is the minimal filesystem surface §6 requires: exists, is-regular,
// size, mtime. StatPath fills it directly from os.Stat's result.
type Stat struct {
	Exists   bool
	IsDir    bool
	Size     int64
	ModTime  int64 // unix nanos, monotonic-safe for comparisons within a run
}

// StatPath stats the file-shaped SourceId id. A non-existent or
// unreachable path reports Exists=false rather than returning an error:
// callers treat that as "stale"/"gone", never as an open failure.
func StatPath(id SourceId) Stat {
	info, err := os.Stat(string(id))
	if err != nil {
		return Stat{}
	}
	return Stat{
		Exists:  true,
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime().UnixNano(),
	}
}
