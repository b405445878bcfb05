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

// Package loader implements SL, the streaming loader framework: a
// polymorphic contract over heterogeneous sources that emits chunks
// lazily, reports progress on a bounded cadence, and derives metadata
// including a streamed SHA-256 content hash (SPEC_FULL.md §4.1-§4.2).
package loader

import (
	"time"

	"github.com/kraklabs/docstream/pkg/docid"
)

// DocumentKind is the closed enumeration of supported source families.
type DocumentKind string

const (
	KindText     DocumentKind = "text"
	KindMarkdown DocumentKind = "markdown"
	KindPDF      DocumentKind = "pdf"
	KindCSV      DocumentKind = "csv"
	KindJSON     DocumentKind = "json"
	KindXML      DocumentKind = "xml"
	KindHTML     DocumentKind = "html"
	KindOther    DocumentKind = "other"
)

// LoadProgress is a monotonic snapshot of stream progress.
type LoadProgress struct {
	CurrentChunk       int64
	TotalChunks        *int64
	BytesProcessed     int64
	TotalBytes         *int64
	Percentage         *float64
	Elapsed            time.Duration
	EstimatedRemaining *time.Duration
}

// ProgressFunc is the callback ABI §6 shape (LoadProgress) -> void.
type ProgressFunc func(LoadProgress)

// DocumentMetadata describes a source, populated incrementally as a stream
// progresses; ChecksumSHA256 is only set once a stream completes.
type DocumentMetadata struct {
	Source         docid.SourceId
	Kind           DocumentKind
	SizeBytes      int64
	ChecksumSHA256 string
	Created        *time.Time
	Modified       *time.Time
	Encoding       string
	MimeType       string
	Title          string
	PageCount      *int
	Custom         map[string]any
}

// LoadResult is the materialized outcome of load_complete: the full
// concatenation of the stream's chunks plus metadata, errors and warnings.
type LoadResult struct {
	OK       bool
	Chunks   []string
	Metadata *DocumentMetadata
	Errors   []error
	Warnings []error
	Elapsed  time.Duration
}

// Text concatenates Chunks, the decoded document when OK is true.
func (r *LoadResult) Text() string {
	total := 0
	for _, c := range r.Chunks {
		total += len(c)
	}
	buf := make([]byte, 0, total)
	for _, c := range r.Chunks {
		buf = append(buf, c...)
	}
	return string(buf)
}
