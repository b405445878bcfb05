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

package loader

import (
	"sync"

	"github.com/kraklabs/docstream/pkg/docid"
)

// Registry maintains an ordered collection of Loaders and selects the
// first whose Supports(source) is true (SPEC_FULL.md §4.2). The registry
// owns no loader state.
type Registry struct {
	mu      sync.RWMutex
	loaders []Loader
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register appends l to the ordered list of loaders consulted by GetLoader.
// Order matters: earlier registrations take priority over later ones.
func (r *Registry) Register(l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders = append(r.loaders, l)
}

// GetLoader returns the first registered loader that supports source, or
// nil if none does.
func (r *Registry) GetLoader(source docid.SourceId) Loader {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.loaders {
		if l.Supports(source) {
			return l
		}
	}
	return nil
}

// SupportedKinds returns the union of every registered loader's kinds.
func (r *Registry) SupportedKinds() []DocumentKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[DocumentKind]bool)
	var out []DocumentKind
	for _, l := range r.loaders {
		for _, k := range l.KindsSupported() {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// NewDefaultRegistry returns a Registry pre-populated with every concrete
// loader this package ships, in a sensible precedence order (more specific
// extensions before the plain-text catch-all).
func NewDefaultRegistry(cfg Config) *Registry {
	r := NewRegistry()
	r.Register(NewMarkdownLoader(cfg))
	r.Register(NewHTMLLoader(cfg))
	r.Register(NewCSVLoader(cfg))
	r.Register(NewJSONLoader(cfg))
	r.Register(NewXMLLoader(cfg))
	r.Register(NewPDFLoader(cfg))
	r.Register(NewTextLoader(cfg))
	return r
}
