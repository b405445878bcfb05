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

package service

import (
	"context"
	"sync"
	"time"

	"github.com/kraklabs/docstream/internal/errs"
	"github.com/kraklabs/docstream/pkg/docid"
	"github.com/kraklabs/docstream/pkg/loader"
)

// Status is an Operation's lifecycle state (SPEC_FULL.md §3).
type Status string

const (
	StatusPending   Status = "pending"
	StatusLoading   Status = "loading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// callbackSet is one load_async caller's attached callbacks. Any of the
// three may be nil.
type callbackSet struct {
	onProgress loader.ProgressFunc
	onComplete func(*loader.LoadResult)
	onError    func(error)
}

// Operation is DC/BL's shared Task-in-progress record (SPEC_FULL.md §3).
// The source of truth for its state is whichever scheduled the work; here
// that is always Service.
type Operation struct {
	ID        string
	Source    docid.SourceId
	StartedAt time.Time

	mu        sync.Mutex
	status    Status
	progress  loader.LoadProgress
	metadata  *loader.DocumentMetadata
	err       error
	callbacks []callbackSet

	cancel context.CancelFunc
	done   chan struct{}
}

func newOperation(id string, source docid.SourceId, cancel context.CancelFunc) *Operation {
	return &Operation{
		ID:        id,
		Source:    source,
		StartedAt: time.Now(),
		status:    StatusPending,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// attach registers cbs against the operation. Nothing is fired at attach
// time; cbs receives only the progress snapshots and the completion fanned
// out after it was attached.
func (op *Operation) attach(cbs callbackSet) {
	op.mu.Lock()
	op.callbacks = append(op.callbacks, cbs)
	op.mu.Unlock()
}

// Status reports the operation's current lifecycle state.
func (op *Operation) Status() Status {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.status
}

// Progress reports the operation's last observed LoadProgress.
func (op *Operation) Progress() loader.LoadProgress {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.progress
}

func (op *Operation) setStatus(s Status) {
	op.mu.Lock()
	op.status = s
	op.mu.Unlock()
}

func (op *Operation) fanOutProgress(p loader.LoadProgress) {
	op.mu.Lock()
	op.progress = p
	cbs := append([]callbackSet(nil), op.callbacks...)
	op.mu.Unlock()
	for _, cb := range cbs {
		if cb.onProgress != nil {
			cb.onProgress(p)
		}
	}
}

func (op *Operation) finish(result *loader.LoadResult, err error) {
	op.mu.Lock()
	if err != nil {
		op.status = StatusFailed
		op.err = err
	} else {
		op.status = StatusCompleted
		if result != nil {
			op.metadata = result.Metadata
		}
	}
	cbs := append([]callbackSet(nil), op.callbacks...)
	op.mu.Unlock()
	close(op.done)

	for _, cb := range cbs {
		if err != nil {
			if cb.onError != nil {
				cb.onError(err)
			}
			continue
		}
		if cb.onComplete != nil {
			cb.onComplete(result)
		}
	}
}

func (op *Operation) cancelled() {
	op.mu.Lock()
	op.status = StatusCancelled
	cbs := append([]callbackSet(nil), op.callbacks...)
	op.mu.Unlock()
	close(op.done)
	cancelErr := errs.Cancelled(string(op.Source))
	for _, cb := range cbs {
		if cb.onError != nil {
			cb.onError(cancelErr)
		}
	}
}
