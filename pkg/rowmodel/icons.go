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

package rowmodel

import (
	"strings"
	"sync"
)

// iconCache maps a file extension to an opaque icon token, lazily
// populated, with folder/file defaults pinned (SPEC_FULL.md §4.7). The
// real glyph a token maps to is the embedding GUI's concern; this package
// only produces the stable string identifier.
type iconCache struct {
	mu     sync.Mutex
	tokens map[string]string
}

const (
	iconTokenFolder  = "icon:folder"
	iconTokenDefault = "icon:file"
)

func newIconCache() *iconCache {
	return &iconCache{tokens: map[string]string{
		"":  iconTokenDefault,
		".": iconTokenFolder,
	}}
}

// tokenFor returns the icon token for a RowEntry, deriving it from the
// file extension on first sight and caching it thereafter.
func (c *iconCache) tokenFor(name string, isDir bool) string {
	if isDir {
		return iconTokenFolder
	}
	ext := extensionOf(name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if tok, ok := c.tokens[ext]; ok {
		return tok
	}
	tok := iconTokenDefault
	if ext != "" {
		tok = "icon:" + strings.TrimPrefix(ext, ".")
	}
	c.tokens[ext] = tok
	return tok
}

func extensionOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i:])
}
