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

package loader_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"

	"github.com/kraklabs/docstream/pkg/docid"
	"github.com/kraklabs/docstream/pkg/loader"
)

// Example_progressCallback shows a realistic consumer driving a terminal
// progress bar off LoadProgress snapshots, the ambient-stack use of
// schollz/progressbar/v3 named in SPEC_FULL.md §10.
func Example_progressCallback() {
	dir, err := os.MkdirTemp("", "docstream-example")
	if err != nil {
		fmt.Println("setup failed")
		return
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello, streaming world"), 0o644); err != nil {
		fmt.Println("setup failed")
		return
	}

	cfg := loader.DefaultConfig()
	l := loader.NewTextLoader(cfg)
	bar := progressbar.NewOptions64(-1, progressbar.OptionSetWriter(os.Stderr))

	result := loader.LoadComplete(context.Background(), l, docid.Canonicalize(path), func(p loader.LoadProgress) {
		_ = bar.Set64(p.BytesProcessed)
	})

	fmt.Println(result.OK)
	fmt.Println(result.Text())
	// Output:
	// true
	// hello, streaming world
}
