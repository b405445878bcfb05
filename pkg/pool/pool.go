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

// Package pool implements BL.Worker and BL.Pool: a priority-queued,
// bounded-concurrency driver for SL loads with per-task retry+backoff,
// coarse re-enqueue escalation, and cooperative cancellation
// (SPEC_FULL.md §4.5-§4.6). Grounded on
// original_source/ui/widget/file_loader_thread.py and
// pkg/ingestion/local_pipeline.go's channel+WaitGroup worker-pool shape.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kraklabs/docstream/internal/errs"
	"github.com/kraklabs/docstream/pkg/docid"
	"github.com/kraklabs/docstream/pkg/loader"
	"github.com/kraklabs/docstream/pkg/metrics"
)

// Handlers is the set of pool-level event sinks BL.Pool emits to
// (SPEC_FULL.md §4.6): file_loaded, file_failed, batch_progress, and the
// Cancelled outcome for tasks caught by cancel_all. Any field may be nil.
type Handlers struct {
	OnFileLoaded    func(source docid.SourceId, result *loader.LoadResult)
	OnFileFailed    func(source docid.SourceId, err error)
	OnBatchProgress func(completed, total int)
	OnCancelled     func(source docid.SourceId)
}

// Pool is BL.Pool. Locks are always acquired in the fixed order
// queue -> workers -> batch (SPEC_FULL.md §5) to avoid deadlock; retryMu is
// leaf-level and never held across another pool lock.
type Pool struct {
	cfg      Config
	worker   *Worker
	logger   *slog.Logger
	metrics  *metrics.Collector
	handlers Handlers

	queueMu          sync.Mutex
	queue            *taskQueue
	queuedOrInflight map[docid.SourceId]bool
	wake             chan struct{}

	workersMu sync.Mutex
	cancels   map[docid.SourceId]context.CancelFunc

	batchMu        sync.Mutex
	batchCompleted int
	batchTotal     int

	retryMu    sync.Mutex
	retryCount map[docid.SourceId]int

	sem      chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
	wg       sync.WaitGroup
}

// New constructs a Pool over registry. logger and m may be nil.
func New(cfg Config, registry *loader.Registry, handlers Handlers, logger *slog.Logger, m *metrics.Collector) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		cfg:              cfg,
		worker:           newWorker(registry, cfg, logger),
		logger:           logger,
		metrics:          m,
		handlers:         handlers,
		queue:            newTaskQueue(),
		queuedOrInflight: make(map[docid.SourceId]bool),
		wake:             make(chan struct{}, 1),
		cancels:          make(map[docid.SourceId]context.CancelFunc),
		retryCount:       make(map[docid.SourceId]int),
		sem:              make(chan struct{}, workers),
		stopCh:           make(chan struct{}),
	}
}

// Start launches the dispatcher loop. Call once.
func (p *Pool) Start() {
	go p.dispatch()
}

// Add is add(source, priority): pushes source onto the queue. Duplicate
// admissions (already queued or in flight) are silently ignored, returning
// false.
func (p *Pool) Add(source docid.SourceId, priority Priority) bool {
	p.queueMu.Lock()
	if p.queuedOrInflight[source] {
		p.queueMu.Unlock()
		return false
	}
	p.queuedOrInflight[source] = true
	p.queue.push(&Task{Source: source, Priority: priority, EnqueuedAt: time.Now()})
	p.queueMu.Unlock()

	p.batchMu.Lock()
	p.batchTotal++
	p.batchMu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	if p.metrics != nil {
		p.metrics.PoolQueueDepth.Inc()
	}
	return true
}

// AddBatch is add_batch(...): sugar over repeated Add at a shared priority.
func (p *Pool) AddBatch(sources []docid.SourceId, priority Priority) {
	for _, s := range sources {
		p.Add(s, priority)
	}
}

// AddVisible is add_visible(paths): shortcut for High priority.
func (p *Pool) AddVisible(sources []docid.SourceId) {
	p.AddBatch(sources, PriorityHigh)
}

func (p *Pool) dispatch() {
	for {
		p.queueMu.Lock()
		task, ok := p.queue.pop()
		p.queueMu.Unlock()
		if !ok {
			if p.stopped.Load() {
				return
			}
			select {
			case <-p.wake:
				continue
			case <-p.stopCh:
				return
			}
		}
		if p.metrics != nil {
			p.metrics.PoolQueueDepth.Dec()
		}

		select {
		case p.sem <- struct{}{}:
		case <-p.stopCh:
			// The popped task never reached a worker and CancelAll's drain
			// did not see it; report it as cancelled here.
			p.queueMu.Lock()
			delete(p.queuedOrInflight, task.Source)
			p.queueMu.Unlock()
			p.finishBatch()
			if p.handlers.OnCancelled != nil {
				p.handlers.OnCancelled(task.Source)
			}
			return
		}
		p.wg.Add(1)
		go p.execute(task)
	}
}

func (p *Pool) execute(task *Task) {
	defer p.wg.Done()
	defer func() { <-p.sem }()

	ctx, cancel := context.WithCancel(context.Background())
	p.workersMu.Lock()
	p.cancels[task.Source] = cancel
	p.workersMu.Unlock()
	if p.metrics != nil {
		p.metrics.PoolInFlight.Inc()
	}

	result, err := p.worker.run(ctx, task.Source)

	p.workersMu.Lock()
	delete(p.cancels, task.Source)
	p.workersMu.Unlock()
	if p.metrics != nil {
		p.metrics.PoolInFlight.Dec()
	}

	p.queueMu.Lock()
	delete(p.queuedOrInflight, task.Source)
	p.queueMu.Unlock()

	if errs.IsCancelled(err) {
		p.finishBatch()
		if p.handlers.OnCancelled != nil {
			p.handlers.OnCancelled(task.Source)
		}
		return
	}
	if err != nil {
		p.handleFailure(task, err)
		return
	}
	p.finishBatch()
	if p.handlers.OnFileLoaded != nil {
		p.handlers.OnFileLoaded(task.Source, result)
	}
}

// handleFailure implements the two-tier retry escalation (SPEC_FULL.md
// §4.6): Worker already exhausted its own intra-task backoff attempts; the
// pool tracks a separate, coarser retry count and re-enqueues at Low
// priority until the global cap is reached.
func (p *Pool) handleFailure(task *Task, err error) {
	p.retryMu.Lock()
	p.retryCount[task.Source]++
	count := p.retryCount[task.Source]
	p.retryMu.Unlock()

	if count <= p.cfg.MaxRetries {
		if p.metrics != nil {
			p.metrics.PoolRetries.Inc()
		}
		p.logger.Info("pool.reenqueue", "source", task.Source, "attempt", count, "error", err)
		p.Add(task.Source, PriorityLow)
		return
	}

	p.retryMu.Lock()
	delete(p.retryCount, task.Source)
	p.retryMu.Unlock()

	p.finishBatch()
	p.logger.Warn("pool.file_failed", "source", task.Source, "error", err)
	if p.handlers.OnFileFailed != nil {
		p.handlers.OnFileFailed(task.Source, err)
	}
}

func (p *Pool) finishBatch() {
	p.batchMu.Lock()
	p.batchCompleted++
	completed, total := p.batchCompleted, p.batchTotal
	p.batchMu.Unlock()
	if p.handlers.OnBatchProgress != nil {
		p.handlers.OnBatchProgress(completed, total)
	}
}

// CancelAll is cancel_all(): sets the stop signal, cancels every in-flight
// Worker, and drains the queue; pending tasks become Cancelled operations.
// Returns the total number of tasks affected.
func (p *Pool) CancelAll() int {
	p.stopped.Store(true)

	p.workersMu.Lock()
	inflight := make([]context.CancelFunc, 0, len(p.cancels))
	for _, c := range p.cancels {
		inflight = append(inflight, c)
	}
	p.workersMu.Unlock()
	for _, c := range inflight {
		c()
	}

	p.queueMu.Lock()
	drained := p.queue.drain()
	for _, t := range drained {
		delete(p.queuedOrInflight, t.Source)
	}
	p.queueMu.Unlock()

	p.stopOnce.Do(func() { close(p.stopCh) })

	for _, t := range drained {
		p.finishBatch()
		if p.handlers.OnCancelled != nil {
			p.handlers.OnCancelled(t.Source)
		}
	}
	return len(inflight) + len(drained)
}

// Shutdown blocks until every in-flight Worker has observed cancellation
// and returned, or ctx expires first.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.CancelAll()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueDepth reports the current queue length, for tests and diagnostics.
func (p *Pool) QueueDepth() int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return p.queue.len()
}
