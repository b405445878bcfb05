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
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"strings"

	"github.com/kraklabs/docstream/internal/errs"
	"github.com/kraklabs/docstream/pkg/docid"
)

// JSONLoader and XMLLoader are metadata/whole-document oriented: single-
// chunk loads below StructuredSizeCeiling, degrading to the byte-window
// chunker above it (SPEC_FULL.md §4.1). No third-party JSON/XML parsing
// library appears anywhere in the example pack; encoding/json and
// encoding/xml are the idiomatic stdlib choice here (DESIGN.md).
type JSONLoader struct{ cfg Config }
type XMLLoader struct{ cfg Config }

func NewJSONLoader(cfg Config) *JSONLoader { return &JSONLoader{cfg: cfg} }
func NewXMLLoader(cfg Config) *XMLLoader   { return &XMLLoader{cfg: cfg} }

func (l *JSONLoader) KindsSupported() []DocumentKind { return []DocumentKind{KindJSON} }
func (l *XMLLoader) KindsSupported() []DocumentKind  { return []DocumentKind{KindXML} }

func (l *JSONLoader) Supports(source docid.SourceId) bool {
	return strings.HasSuffix(strings.ToLower(string(source)), ".json")
}

func (l *XMLLoader) Supports(source docid.SourceId) bool {
	s := strings.ToLower(string(source))
	return strings.HasSuffix(s, ".xml")
}

func (l *JSONLoader) Open(ctx context.Context, source docid.SourceId) (*Stream, error) {
	return openStructured(ctx, source, KindJSON, l.cfg, validateJSON)
}

func (l *XMLLoader) Open(ctx context.Context, source docid.SourceId) (*Stream, error) {
	return openStructured(ctx, source, KindXML, l.cfg, validateXML)
}

func validateJSON(raw []byte) error {
	if !json.Valid(raw) {
		return errs.New(errs.SeverityWarning, errs.CodeDecodeFailed, "", "document is not well-formed JSON")
	}
	return nil
}

func validateXML(raw []byte) error {
	d := xml.NewDecoder(strings.NewReader(string(raw)))
	for {
		if _, err := d.Token(); err != nil {
			if err == io.EOF {
				return nil
			}
			return errs.New(errs.SeverityWarning, errs.CodeDecodeFailed, "", "document is not well-formed XML")
		}
	}
}

// openStructured implements the shared JSON/XML loading strategy: read the
// whole document, validate (warning only, per §4.1's "decode issues don't
// terminate the stream" policy), then emit it as a single chunk if it fits
// under the size ceiling, otherwise fall back to byte windows.
func openStructured(ctx context.Context, source docid.SourceId, kind DocumentKind, cfg Config, validate func([]byte) error) (*Stream, error) {
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
	meta := &DocumentMetadata{Source: source, Kind: kind, Encoding: "utf-8"}
	if st.Exists {
		meta.SizeBytes = st.Size
	}

	var vErr error
	if err := validate(raw); err != nil {
		vErr = err
	}

	ceiling := cfg.StructuredSizeCeiling
	if ceiling <= 0 {
		ceiling = 1 << 20
	}
	var chunks []string
	if int64(len(raw)) <= ceiling {
		chunks = []string{string(raw)}
	} else {
		chunks = chunkString(string(raw), cfg.ChunkSize)
	}

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
	stream := newStream(source, kind, cfg.ChunkSize, cfg, closerFunc(func() error { return nil }), next, meta)
	if vErr != nil {
		stream.warn(vErr)
	}
	return stream, nil
}
