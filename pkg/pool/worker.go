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
	"context"
	"log/slog"

	"github.com/cenkalti/backoff/v4"

	"github.com/kraklabs/docstream/internal/errs"
	"github.com/kraklabs/docstream/pkg/docid"
	"github.com/kraklabs/docstream/pkg/loader"
)

// Worker is BL.Worker: loads one source with retry+backoff, honoring
// cancellation, and reports its outcome (SPEC_FULL.md §4.5). The
// retry/backoff schedule is delegated to cenkalti/backoff/v4 rather than a
// hand-rolled sleep loop, so the growth curve and the retry cap are set in
// one place; jitter and the max-elapsed-time cutoff are disabled.
type Worker struct {
	registry    *loader.Registry
	maxRetries  int
	backoffBase func() backoff.BackOff
	logger      *slog.Logger
}

func newWorker(registry *loader.Registry, cfg Config, logger *slog.Logger) *Worker {
	return &Worker{
		registry:   registry,
		maxRetries: cfg.MaxRetries,
		backoffBase: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = cfg.BackoffBase
			b.Multiplier = 2
			b.RandomizationFactor = 0 // waits are exactly base * 2^attempt
			b.MaxElapsedTime = 0 // bounded instead by WithMaxRetries below
			return b
		},
		logger: logger,
	}
}

// run loads source, retrying retryable failures with exponential backoff
// up to maxRetries intra-task attempts. FileNotFound/PermissionDenied and
// any other non-retryable LoadError fail immediately without retry.
func (w *Worker) run(ctx context.Context, source docid.SourceId) (*loader.LoadResult, error) {
	l := w.registry.GetLoader(source)
	if l == nil {
		return nil, errs.New(errs.SeverityError, errs.CodeNoLoader, string(source), "no loader registered for this source")
	}

	var result *loader.LoadResult
	var lastErr error

	op := func() error {
		if ctx.Err() != nil {
			lastErr = errs.Cancelled(string(source))
			return backoff.Permanent(lastErr)
		}
		r := loader.LoadComplete(ctx, l, source, nil)
		if r.OK {
			result = r
			return nil
		}
		var loadErr error = errs.New(errs.SeverityError, errs.CodeLoadException, string(source), "load failed")
		if len(r.Errors) > 0 {
			loadErr = r.Errors[0]
		}
		lastErr = loadErr
		if le, ok := loadErr.(*errs.LoadError); ok && !le.Retryable() {
			return backoff.Permanent(loadErr)
		}
		return loadErr
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(w.backoffBase(), uint64(w.maxRetries)), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		w.logger.Debug("pool.worker_exhausted", "source", source, "error", lastErr)
		return nil, lastErr
	}
	return result, nil
}
