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
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	shtml "github.com/smacker/go-tree-sitter/html"

	"github.com/kraklabs/docstream/internal/errs"
	"github.com/kraklabs/docstream/pkg/docid"
)

// HTMLLoader decodes HTML by walking a tree-sitter parse tree and emitting
// only text-node content, mirroring the teacher's sync.Pool-per-grammar
// pattern (pkg/ingestion/parser_treesitter.go, deleted after grounding
// this file — see DESIGN.md). On parse failure it falls back to a regex
// tag-stripper and emits a warning, the same "try AST, fall back to a
// simpler pass" shape the teacher uses for unsupported languages.
type HTMLLoader struct {
	cfg      Config
	pool     sync.Pool
	poolInit sync.Once
}

func NewHTMLLoader(cfg Config) *HTMLLoader { return &HTMLLoader{cfg: cfg} }

func (l *HTMLLoader) KindsSupported() []DocumentKind { return []DocumentKind{KindHTML} }

func (l *HTMLLoader) Supports(source docid.SourceId) bool {
	s := strings.ToLower(string(source))
	return strings.HasSuffix(s, ".html") || strings.HasSuffix(s, ".htm")
}

func (l *HTMLLoader) initPool() {
	l.poolInit.Do(func() {
		l.pool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(shtml.GetLanguage())
			return p
		}
	})
}

func (l *HTMLLoader) Open(ctx context.Context, source docid.SourceId) (*Stream, error) {
	l.initPool()
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
	meta := &DocumentMetadata{Source: source, Kind: KindHTML, Encoding: "utf-8"}
	if st.Exists {
		meta.SizeBytes = st.Size
	}

	text, warn := l.extractText(ctx, raw)
	chunks := chunkString(text, l.cfg.ChunkSize)

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
	stream := newStream(source, KindHTML, l.cfg.ChunkSize, l.cfg, closerFunc(func() error { return nil }), next, meta)
	if warn != nil {
		stream.warn(warn)
	}
	return stream, nil
}

// extractText returns the tag-free text content of raw HTML. It prefers a
// tree-sitter AST walk and falls back to a regex tag-stripper, returning a
// warning describing which path was taken on fallback.
func (l *HTMLLoader) extractText(ctx context.Context, raw []byte) (string, error) {
	parser, _ := l.pool.Get().(*sitter.Parser)
	defer l.pool.Put(parser)

	tree, err := parser.ParseCtx(ctx, nil, raw)
	if err != nil || tree == nil {
		return stripTagsFallback(raw), errs.New(errs.SeverityWarning, errs.CodeDecodeFailed, "", "tree-sitter parse failed, used tag-stripping fallback")
	}
	defer tree.Close()

	var sb strings.Builder
	walkHTMLText(tree.RootNode(), raw, &sb)
	return sb.String(), nil
}

func walkHTMLText(n *sitter.Node, src []byte, sb *strings.Builder) {
	if n == nil {
		return
	}
	if n.Type() == "text" {
		sb.Write(src[n.StartByte():n.EndByte()])
		sb.WriteByte(' ')
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walkHTMLText(n.Child(i), src, sb)
	}
}

var tagPattern = regexp.MustCompile(`(?s)<[^>]*>`)

func stripTagsFallback(raw []byte) string {
	return tagPattern.ReplaceAllString(string(raw), " ")
}

func chunkString(s string, size int) []string {
	if size <= 0 {
		size = 8 * 1024
	}
	var chunks []string
	for len(s) > 0 {
		n := size
		if n > len(s) {
			n = len(s)
		}
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	return chunks
}

// closerFunc adapts a plain function to io.Closer, used by loaders that
// read the whole source up front and need no lingering handle.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }
