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

package pool

import (
	"container/heap"
	"time"

	"github.com/kraklabs/docstream/pkg/docid"
)

// Priority is BL's Task priority class; lower values sort first
// (SPEC_FULL.md §3: "priority (lower = higher)").
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityNormal Priority = 1
	PriorityLow    Priority = 2
)

// Task is BL's queue unit: a source awaiting load, ordered by
// (priority asc, enqueued_at asc).
type Task struct {
	Source     docid.SourceId
	Priority   Priority
	EnqueuedAt time.Time

	index int // heap bookkeeping
}

// taskHeap implements container/heap.Interface. No third-party
// priority-queue package appears anywhere in the example pack;
// container/heap is the idiomatic stdlib mechanism for this shape.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// taskQueue wraps taskHeap behind heap.Interface's package-level functions,
// giving callers a plain push/pop API.
type taskQueue struct {
	h taskHeap
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	heap.Init(&q.h)
	return q
}

func (q *taskQueue) push(t *Task) { heap.Push(&q.h, t) }

func (q *taskQueue) pop() (*Task, bool) {
	if q.h.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&q.h).(*Task), true
}

func (q *taskQueue) len() int { return q.h.Len() }

// drain empties the queue and returns every task it held, for cancel_all's
// "pending tasks become Cancelled" behavior.
func (q *taskQueue) drain() []*Task {
	var out []*Task
	for {
		t, ok := q.pop()
		if !ok {
			break
		}
		out = append(out, t)
	}
	return out
}
