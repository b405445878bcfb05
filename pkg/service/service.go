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

// Package service implements DC.Service: async load-or-cache-hit
// orchestration over SL+DC with per-source in-flight deduplication,
// progress fan-out, and metadata/preview LRUs (SPEC_FULL.md §4.4). Grounded
// on original_source/core/document_processing_service.py.
package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/golang/groupcache/lru"

	"github.com/kraklabs/docstream/internal/errs"
	dccache "github.com/kraklabs/docstream/pkg/cache"
	"github.com/kraklabs/docstream/pkg/docid"
	"github.com/kraklabs/docstream/pkg/loader"
	"github.com/kraklabs/docstream/pkg/metrics"
)

// previewKey is the (source, max_lines) composite key the preview LRU is
// keyed by (§9 Open Question resolution).
type previewKey struct {
	source   docid.SourceId
	maxLines int
}

// Service is DC.Service. Constructed explicitly; no package singleton
// (§9 "Global service singleton — resolved").
type Service struct {
	cfg      Config
	registry *loader.Registry
	cache    *dccache.Cache
	logger   *slog.Logger
	metrics  *metrics.Collector

	sem chan struct{} // bounds concurrent load goroutines to cfg.MaxWorkers

	invMu    sync.Mutex
	inflight map[docid.SourceId]*Operation

	metaMu sync.Mutex
	meta   *lru.Cache

	previewMu sync.Mutex
	preview   *lru.Cache

	nextID atomic.Int64
}

// New constructs a Service over registry and cache. logger and m may be nil.
func New(cfg Config, registry *loader.Registry, cache *dccache.Cache, logger *slog.Logger, m *metrics.Collector) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = 4
	}
	s := &Service{
		cfg:      cfg,
		registry: registry,
		cache:    cache,
		logger:   logger,
		metrics:  m,
		sem:      make(chan struct{}, workers),
		inflight: make(map[docid.SourceId]*Operation),
		meta:     lru.New(cfg.MetadataCacheSize),
		preview:  lru.New(cfg.PreviewCacheSize),
	}
	if cache != nil {
		cache.Subscribe(s.invalidatePreviews)
	}
	return s
}

// LoadAsync is load_async: non-blocking, deduplicates concurrent requests
// for the same source (I5). Returns the operation id immediately.
func (s *Service) LoadAsync(source docid.SourceId, onProgress loader.ProgressFunc, onComplete func(*loader.LoadResult), onError func(error)) string {
	cbs := callbackSet{onProgress: onProgress, onComplete: onComplete, onError: onError}

	s.invMu.Lock()
	if op, ok := s.inflight[source]; ok {
		s.invMu.Unlock()
		op.attach(cbs)
		return op.ID
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := fmt.Sprintf("op-%d", s.nextID.Add(1))
	op := newOperation(id, source, cancel)
	op.attach(cbs)
	s.inflight[source] = op
	s.invMu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveOperations.Inc()
	}
	go s.run(ctx, op)
	return op.ID
}

func (s *Service) run(ctx context.Context, op *Operation) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	op.setStatus(StatusLoading)
	l := s.registry.GetLoader(op.Source)
	if l == nil {
		s.finishAndRemove(op, nil, errs.New(errs.SeverityError, errs.CodeNoLoader, string(op.Source), "no loader registered for this source"))
		return
	}

	result, err := s.cache.Get(ctx, op.Source, loaderWithProgress{l, op})
	s.finishAndRemove(op, result, err)
}

func (s *Service) finishAndRemove(op *Operation, result *loader.LoadResult, err error) {
	s.invMu.Lock()
	delete(s.inflight, op.Source)
	s.invMu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveOperations.Dec()
	}

	if result != nil && !result.OK && len(result.Errors) > 0 && err == nil {
		err = result.Errors[0]
	}
	if errs.IsCancelled(err) {
		op.cancelled()
		if s.metrics != nil {
			s.metrics.OperationsTotal.WithLabelValues("cancelled").Inc()
		}
		return
	}
	op.finish(result, err)
	if s.metrics != nil {
		if err != nil {
			s.metrics.OperationsTotal.WithLabelValues("failed").Inc()
		} else {
			s.metrics.OperationsTotal.WithLabelValues("completed").Inc()
		}
	}
}

// LoadSync is load_sync: blocking convenience over LoadAsync, sharing the
// same dedup/caching path.
func (s *Service) LoadSync(ctx context.Context, source docid.SourceId) (*loader.LoadResult, error) {
	var result *loader.LoadResult
	var loadErr error
	doneCh := make(chan struct{})

	id := s.LoadAsync(source,
		nil,
		func(r *loader.LoadResult) { result = r; close(doneCh) },
		func(e error) { loadErr = e; close(doneCh) },
	)

	select {
	case <-doneCh:
		return result, loadErr
	case <-ctx.Done():
		s.Cancel(id)
		return nil, ctx.Err()
	}
}

// GetMetadata is get_metadata: a metadata-only fast path backed by an
// access-order LRU of size cfg.MetadataCacheSize. force bypasses the LRU
// and fetches through DC.Cache, which returns a live cache hit if there is
// one and runs a full load only on a miss (the implementation has no
// metadata-only extraction distinct from a full drain, so "fast path" here
// means "skip re-invoking the loader", not "skip reading the source").
func (s *Service) GetMetadata(ctx context.Context, source docid.SourceId, force bool) (*loader.DocumentMetadata, error) {
	if !force {
		s.metaMu.Lock()
		v, ok := s.meta.Get(lru.Key(source))
		s.metaMu.Unlock()
		if ok {
			return v.(*loader.DocumentMetadata), nil
		}
	}

	l := s.registry.GetLoader(source)
	if l == nil {
		return nil, errs.New(errs.SeverityError, errs.CodeNoLoader, string(source), "no loader registered for this source")
	}
	result, err := s.cache.Get(ctx, source, l)
	if err != nil {
		return nil, err
	}
	if result == nil || !result.OK {
		if result != nil && len(result.Errors) > 0 {
			return nil, result.Errors[0]
		}
		return nil, errs.New(errs.SeverityError, errs.CodeLoadException, string(source), "metadata load failed")
	}

	s.metaMu.Lock()
	s.meta.Add(lru.Key(source), result.Metadata)
	s.metaMu.Unlock()
	return result.Metadata, nil
}

// GetPreview is get_preview: drives the stream only until max_lines
// newlines or cfg.PreviewMaxBytes have been accumulated. A bounded LRU
// caches rendered previews per (source, max_lines) until the corresponding
// DC.Cache entry is invalidated or goes stale (§9 Open Question).
func (s *Service) GetPreview(ctx context.Context, source docid.SourceId, maxLines int) (string, error) {
	key := previewKey{source, maxLines}
	s.previewMu.Lock()
	v, ok := s.preview.Get(lru.Key(key))
	s.previewMu.Unlock()
	if ok {
		return v.(string), nil
	}

	l := s.registry.GetLoader(source)
	if l == nil {
		return "", errs.New(errs.SeverityError, errs.CodeNoLoader, string(source), "no loader registered for this source")
	}
	st, err := loader.LoadStream(ctx, l, source)
	if err != nil {
		return "", err
	}
	defer st.Close()

	var buf bytes.Buffer
	lines := 0
	for {
		chunk, err := st.Next(ctx)
		if chunk != "" {
			buf.WriteString(chunk)
			lines += strings.Count(chunk, "\n")
		}
		if err != nil {
			break
		}
		if maxLines > 0 && lines >= maxLines {
			break
		}
		if s.cfg.PreviewMaxBytes > 0 && int64(buf.Len()) >= s.cfg.PreviewMaxBytes {
			break
		}
	}

	text := truncateToLines(buf.String(), maxLines)
	s.previewMu.Lock()
	s.preview.Add(lru.Key(key), text)
	s.previewMu.Unlock()
	return text, nil
}

func truncateToLines(s string, maxLines int) string {
	if maxLines <= 0 {
		return s
	}
	lines := strings.SplitAfter(s, "\n")
	if len(lines) <= maxLines {
		return s
	}
	return strings.Join(lines[:maxLines], "")
}

// invalidatePreviews drops every cached preview for source. Registered with
// cache.Subscribe in New, so it runs whenever DC.Cache invalidates or finds
// source stale, keeping the preview LRU coherent with DC.Cache (§9).
func (s *Service) invalidatePreviews(source docid.SourceId) {
	s.previewMu.Lock()
	defer s.previewMu.Unlock()
	// groupcache/lru has no pattern-remove; previews are few enough per
	// source (bounded by distinct max_lines values) that a full Clear is an
	// acceptable trade-off against adding another shadow-key index.
	s.preview.Clear()
}

// Cancel is cancel(operation_id): best-effort, returns false if no such
// operation is currently in flight.
func (s *Service) Cancel(operationID string) bool {
	s.invMu.Lock()
	defer s.invMu.Unlock()
	for _, op := range s.inflight {
		if op.ID == operationID {
			op.cancel()
			return true
		}
	}
	return false
}

// CancelAll is cancel_all(): cancels every in-flight operation and returns
// the count cancelled.
func (s *Service) CancelAll() int {
	s.invMu.Lock()
	defer s.invMu.Unlock()
	n := 0
	for _, op := range s.inflight {
		op.cancel()
		n++
	}
	return n
}

// ActiveOperations is active_operations(): snapshot of in-flight operation
// IDs.
func (s *Service) ActiveOperations() []string {
	s.invMu.Lock()
	defer s.invMu.Unlock()
	out := make([]string, 0, len(s.inflight))
	for _, op := range s.inflight {
		out = append(out, op.ID)
	}
	return out
}

// IsLoading is is_loading(source).
func (s *Service) IsLoading(source docid.SourceId) bool {
	s.invMu.Lock()
	defer s.invMu.Unlock()
	_, ok := s.inflight[source]
	return ok
}

// loaderWithProgress adapts a plain loader.Loader to fan progress out to an
// Operation's attached callbacks, matching §4.4's "single progress callback
// installed on the loader; the service relays snapshots" design.
type loaderWithProgress struct {
	loader.Loader
	op *Operation
}

func (l loaderWithProgress) Open(ctx context.Context, source docid.SourceId) (*loader.Stream, error) {
	st, err := l.Loader.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	st.SetProgressCallback(l.op.fanOutProgress)
	return st, nil
}
