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
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/kraklabs/docstream/internal/errs"
	"github.com/kraklabs/docstream/pkg/docid"
)

// PDFLoader is metadata-only by design: no rendering, per §1's Non-goals.
// It splits the raw byte stream into equal windows of len(raw)/page_count
// bytes, one per counted page plus any remainder; the windows are not
// aligned to page objects (opaque to callers; rendering text from them is a
// collaborator's job, out of scope here).
// page_count is derived by counting "/Type /Page" object markers, a
// byte-scan heuristic: no PDF library appears anywhere in the example
// pack (DESIGN.md), and full parsing would require one.
type PDFLoader struct {
	cfg Config
}

func NewPDFLoader(cfg Config) *PDFLoader { return &PDFLoader{cfg: cfg} }

func (l *PDFLoader) KindsSupported() []DocumentKind { return []DocumentKind{KindPDF} }

func (l *PDFLoader) Supports(source docid.SourceId) bool {
	return strings.HasSuffix(strings.ToLower(string(source)), ".pdf")
}

func (l *PDFLoader) Open(ctx context.Context, source docid.SourceId) (*Stream, error) {
	f, err := openForRead(source)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, errs.Wrap(errs.SeverityError, errs.CodeReadFailed, string(source), err)
	}

	st := docid.StatPath(source)
	meta := &DocumentMetadata{Source: source, Kind: KindPDF, Encoding: "binary"}
	if st.Exists {
		meta.SizeBytes = st.Size
	}
	pages := countPDFPages(raw)
	meta.PageCount = &pages

	pageSize := len(raw)
	if pages > 0 {
		pageSize = len(raw) / pages
		if pageSize <= 0 {
			pageSize = len(raw)
		}
	}
	chunks := chunkString(string(raw), pageSize)
	idx := 0
	next := func(ctx context.Context, s *Stream) (string, error) {
		if idx == 0 {
			s.feedHash(raw)
		}
		if idx >= len(chunks) {
			return "", io.EOF
		}
		c := chunks[idx]
		idx++
		return c, nil
	}
	return newStream(source, KindPDF, pageSize, l.cfg, closerFunc(func() error { return nil }), next, meta), nil
}

var pdfPageMarker = []byte("/Type /Page")
var pdfPageMarkerCompact = []byte("/Type/Page")

func countPDFPages(raw []byte) int {
	count := bytes.Count(raw, pdfPageMarker) + bytes.Count(raw, pdfPageMarkerCompact)
	// "/Type /Pages" (the page tree root) also contains "/Type /Page" as a
	// prefix; each occurrence of the plural form over-counts by one node
	// that is never an actual page, so subtract those back out.
	count -= bytes.Count(raw, []byte("/Type /Pages")) + bytes.Count(raw, []byte("/Type/Pages"))
	if count < 0 {
		count = 0
	}
	return count
}
