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
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kraklabs/docstream/internal/errs"
	"github.com/kraklabs/docstream/pkg/docid"
)

// TextLoader handles plain-text sources: the catch-all family. Its chunk
// unit is ChunkSize bytes; decoding tries UTF-8, then an ordered fallback
// list, then a lossy replace of undecodable bytes.
type TextLoader struct {
	cfg Config
}

func NewTextLoader(cfg Config) *TextLoader { return &TextLoader{cfg: cfg} }

func (l *TextLoader) KindsSupported() []DocumentKind { return []DocumentKind{KindText} }

// Supports accepts anything a more specific loader hasn't claimed; as the
// registry's last entry it is effectively "everything else".
func (l *TextLoader) Supports(source docid.SourceId) bool {
	return docid.LooksLikeFilePath(string(source))
}

func (l *TextLoader) Open(ctx context.Context, source docid.SourceId) (*Stream, error) {
	f, err := openForRead(source)
	if err != nil {
		return nil, err
	}
	st := docid.StatPath(source)
	meta := &DocumentMetadata{Source: source, Kind: KindText, Encoding: "utf-8"}
	if st.Exists {
		meta.SizeBytes = st.Size
		total := st.Size
		stream := newStream(source, KindText, l.cfg.ChunkSize, l.cfg, f, textNext(l.cfg), meta)
		stream.progress.TotalBytes = &total
		return stream, nil
	}
	return newStream(source, KindText, l.cfg.ChunkSize, l.cfg, f, textNext(l.cfg), meta), nil
}

// openForRead opens source for sequential byte reads, translating os errors
// into the closed LoadError code table (SPEC_FULL.md §7).
func openForRead(source docid.SourceId) (*os.File, error) {
	f, err := os.Open(string(source))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.SeverityError, errs.CodeFileNotFound, string(source), err)
		}
		if os.IsPermission(err) {
			return nil, errs.Wrap(errs.SeverityError, errs.CodePermissionDenied, string(source), err)
		}
		return nil, errs.Wrap(errs.SeverityError, errs.CodeFileOpenFailed, string(source), err)
	}
	return f, nil
}

// textNext returns a nextFunc reading cfg.ChunkSize-byte windows, decoding
// each with the fallback chain and emitting ENCODING_FALLBACK/LOSSY_DECODING
// warnings as needed (at most once per stream, per kind, per §4.1).
func textNext(cfg Config) nextFunc {
	var fallbackWarned, lossyWarned bool
	return func(ctx context.Context, s *Stream) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", errs.New(errs.SeverityError, errs.CodeCancelled, string(s.Source), "cancelled")
		}
		buf := make([]byte, s.ChunkSize)
		r, ok := s.closer.(io.Reader)
		if !ok {
			return "", errs.New(errs.SeverityError, errs.CodeReadFailed, string(s.Source), "stream has no reader")
		}
		n, err := r.Read(buf)
		if n > 0 {
			raw := buf[:n]
			s.feedHash(raw)
			text, usedFallback, lossy := decodeWithFallback(raw, cfg.EncodingFallbacks)
			if usedFallback && !fallbackWarned {
				fallbackWarned = true
				s.warn(errs.New(errs.SeverityWarning, errs.CodeEncodingFallback, string(s.Source), "primary encoding failed, used fallback"))
			}
			if lossy && !lossyWarned {
				lossyWarned = true
				s.warn(errs.New(errs.SeverityWarning, errs.CodeLossyDecoding, string(s.Source), "undecodable bytes replaced"))
			}
			if err == io.EOF {
				return text, nil
			}
			if err != nil {
				return text, errs.Wrap(errs.SeverityError, errs.CodeReadFailed, string(s.Source), err)
			}
			return text, nil
		}
		if err == io.EOF {
			return "", io.EOF
		}
		if err != nil {
			return "", errs.Wrap(errs.SeverityError, errs.CodeReadFailed, string(s.Source), err)
		}
		return "", nil
	}
}

// decodeWithFallback tries UTF-8, then each of fallbacks (ISO-8859-1 /
// Windows-1252 style single-byte decodes), then a lossy UTF-8 replace.
// No third-party encoding-detection library appears anywhere in the
// example pack, so this implements the minimal single-byte fallback tables
// directly (DESIGN.md).
func decodeWithFallback(raw []byte, fallbacks []string) (text string, usedFallback, lossy bool) {
	if utf8.Valid(raw) {
		return string(raw), false, false
	}
	for _, enc := range fallbacks {
		if decoded, ok := decodeSingleByte(raw, enc); ok {
			return decoded, true, false
		}
	}
	return strings.ToValidUTF8(string(raw), "�"), true, true
}

// cp1252Overrides maps the 0x80-0x9F range Windows-1252 redefines away
// from Latin-1's C1 control codes to printable punctuation.
var cp1252Overrides = map[byte]rune{
	0x80: '€', 0x82: '‚', 0x83: 'ƒ', 0x84: '„',
	0x85: '…', 0x86: '†', 0x87: '‡', 0x88: 'ˆ',
	0x89: '‰', 0x8A: 'Š', 0x8B: '‹', 0x8C: 'Œ',
	0x8E: 'Ž', 0x91: '‘', 0x92: '’', 0x93: '“',
	0x94: '”', 0x95: '•', 0x96: '–', 0x97: '—',
	0x98: '˜', 0x99: '™', 0x9A: 'š', 0x9B: '›',
	0x9C: 'œ', 0x9E: 'ž', 0x9F: 'Ÿ',
}

func decodeSingleByte(raw []byte, enc string) (string, bool) {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, b := range raw {
		if enc == "windows-1252" {
			if r, ok := cp1252Overrides[b]; ok {
				sb.WriteRune(r)
				continue
			}
		}
		// ISO-8859-1 maps every byte directly to the same-numbered
		// Unicode code point.
		sb.WriteRune(rune(b))
	}
	return sb.String(), true
}
