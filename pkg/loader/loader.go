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
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"time"

	"github.com/kraklabs/docstream/internal/errs"
	"github.com/kraklabs/docstream/pkg/docid"
)

// Loader is the polymorphic capability set every concrete variant
// implements. Per Design Note (a) (SPEC_FULL.md §9) a Loader value is
// stateless and safe to share across concurrent loads; all per-stream
// state lives in the *Stream Open returns.
type Loader interface {
	// Supports reports whether this loader can handle source.
	Supports(source docid.SourceId) bool
	// KindsSupported returns the DocumentKinds this loader produces.
	KindsSupported() []DocumentKind
	// Open acquires the source and returns a fresh, single-use Stream.
	// Every exit path (including error returns after partial acquisition)
	// releases any handle it opened.
	Open(ctx context.Context, source docid.SourceId) (*Stream, error)
}

// nextFunc is supplied by a concrete loader's Open; it produces the next
// decoded chunk, feeding raw bytes to the stream's hash accumulator before
// decoding. io.EOF signals natural completion.
type nextFunc func(ctx context.Context, s *Stream) (chunk string, err error)

// Stream is the per-load mutable state a stateless Loader produces: the
// open handle, the hash accumulator, and the live LoadProgress. Exactly one
// goroutine drives a Stream at a time (SPEC_FULL.md §5).
type Stream struct {
	Source   docid.SourceId
	Kind     DocumentKind
	ChunkSize int

	hashingEnabled bool
	hasher         hash.Hash

	progressEnabled bool
	progressInterval time.Duration
	onProgress      ProgressFunc
	progress        LoadProgress
	lastFire        time.Time
	start           time.Time

	meta *DocumentMetadata

	closer io.Closer
	next   nextFunc
	done   bool
	err    error

	warnings []error
}

// newStream wires the common bookkeeping every concrete loader shares,
// honoring cfg's HashingEnabled/ProgressEnabled/ProgressInterval knobs
// (SPEC_FULL.md §6) rather than hardcoding the defaults.
func newStream(source docid.SourceId, kind DocumentKind, chunkSize int, cfg Config, closer io.Closer, next nextFunc, meta *DocumentMetadata) *Stream {
	interval := cfg.ProgressInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Stream{
		Source:           source,
		Kind:             kind,
		ChunkSize:        chunkSize,
		hashingEnabled:   cfg.HashingEnabled,
		hasher:           sha256.New(),
		progressEnabled:  cfg.ProgressEnabled,
		progressInterval: interval,
		closer:           closer,
		next:             next,
		meta:             meta,
		start:            time.Now(),
	}
}

// SetProgressCallback registers cb to be invoked at chunk boundaries, no
// more than once per progress_interval; a final callback always fires at
// end-of-stream (SPEC_FULL.md §4.1).
func (s *Stream) SetProgressCallback(cb ProgressFunc) { s.onProgress = cb }

// SetProgressInterval overrides the default 100ms cadence.
func (s *Stream) SetProgressInterval(d time.Duration) { s.progressInterval = d }

// DisableHashing turns off the SHA-256 accumulator (rarely useful; default
// is enabled per §6's SL.Loader config).
func (s *Stream) DisableHashing() { s.hashingEnabled = false }

// feedHash accumulates raw bytes into the stream's SHA-256 hasher. Concrete
// loaders must call this with the exact raw bytes read, before decoding.
func (s *Stream) feedHash(raw []byte) {
	if s.hashingEnabled {
		s.hasher.Write(raw)
	}
}

func (s *Stream) warn(err error) { s.warnings = append(s.warnings, err) }

// Next returns the next decoded chunk, or io.EOF when the stream is
// exhausted. On the first io.EOF it finalizes the checksum and fires a
// mandatory final progress callback.
func (s *Stream) Next(ctx context.Context) (string, error) {
	if s.done {
		return "", io.EOF
	}
	chunk, err := s.next(ctx, s)
	if err == io.EOF {
		s.done = true
		if s.hashingEnabled {
			s.meta.ChecksumSHA256 = hex.EncodeToString(s.hasher.Sum(nil))
		}
		s.fireProgress(true)
		return "", io.EOF
	}
	if err != nil {
		s.done = true
		s.err = err
		return "", err
	}
	s.progress.CurrentChunk++
	s.progress.BytesProcessed += int64(len(chunk))
	s.updateEstimates()
	s.fireProgress(false)
	return chunk, nil
}

// updateEstimates recomputes elapsed/percentage/estimated_remaining from
// the current counters (SPEC_FULL.md §4.1 progress model).
func (s *Stream) updateEstimates() {
	s.progress.Elapsed = time.Since(s.start)
	if s.progress.TotalBytes != nil && *s.progress.TotalBytes > 0 {
		pct := 100 * float64(s.progress.BytesProcessed) / float64(*s.progress.TotalBytes)
		if pct > 100 {
			pct = 100
		}
		s.progress.Percentage = &pct
		if s.progress.BytesProcessed > 0 {
			rate := float64(s.progress.Elapsed) / float64(s.progress.BytesProcessed)
			remaining := time.Duration(rate * float64(*s.progress.TotalBytes-s.progress.BytesProcessed))
			if remaining < 0 {
				remaining = 0
			}
			s.progress.EstimatedRemaining = &remaining
		}
	} else if s.progress.TotalChunks != nil && *s.progress.TotalChunks > 0 {
		pct := 100 * float64(s.progress.CurrentChunk) / float64(*s.progress.TotalChunks)
		if pct > 100 {
			pct = 100
		}
		s.progress.Percentage = &pct
	}
}

func (s *Stream) fireProgress(final bool) {
	if !s.progressEnabled || s.onProgress == nil {
		return
	}
	if !final && time.Since(s.lastFire) < s.progressInterval {
		return
	}
	s.lastFire = time.Now()
	s.onProgress(s.progress)
}

// Close releases the stream's handle. Safe to call more than once.
func (s *Stream) Close() error {
	if s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	return c.Close()
}

// Metadata returns the stream's live metadata snapshot. Fields beyond
// ChecksumSHA256 are populated at Open time; ChecksumSHA256 is only valid
// after the stream has been fully drained.
func (s *Stream) Metadata() *DocumentMetadata { return s.meta }

// LoadStream drives l.Open and returns the resulting Stream, or a typed
// LoadError if source is unsupported or opening fails.
func LoadStream(ctx context.Context, l Loader, source docid.SourceId) (*Stream, error) {
	if !l.Supports(source) {
		return nil, errs.New(errs.SeverityError, errs.CodeUnsupportedSource, string(source), "loader does not support this source")
	}
	st, err := l.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// LoadComplete materializes a Stream fully, capturing elapsed time and all
// errors/warnings into a LoadResult (SPEC_FULL.md §4.1).
func LoadComplete(ctx context.Context, l Loader, source docid.SourceId, onProgress ProgressFunc) *LoadResult {
	start := time.Now()
	st, err := LoadStream(ctx, l, source)
	if err != nil {
		return &LoadResult{OK: false, Errors: []error{err}, Elapsed: time.Since(start)}
	}
	defer st.Close()
	if onProgress != nil {
		st.SetProgressCallback(onProgress)
	}

	var chunks []string
	for {
		chunk, err := st.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return &LoadResult{
				OK:       false,
				Chunks:   chunks,
				Metadata: st.Metadata(),
				Errors:   []error{err},
				Warnings: st.warnings,
				Elapsed:  time.Since(start),
			}
		}
		chunks = append(chunks, chunk)
	}
	return &LoadResult{
		OK:       true,
		Chunks:   chunks,
		Metadata: st.Metadata(),
		Warnings: st.warnings,
		Elapsed:  time.Since(start),
	}
}
