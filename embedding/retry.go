// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package embedding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	retry "github.com/sethvargo/go-retry"
)

// RetryPolicy describes exponential backoff for provider calls.
// The zero value performs a single attempt.
type RetryPolicy struct {
	MaxRetries uint64        // Retries after the first attempt
	BaseDelay  time.Duration // Delay before the first retry, doubled for each retry after it
}

// Do runs operation until it succeeds, the retries are spent or ctx ends.
// Context errors are never retried. The error from the last attempt is returned.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, operation func(context.Context) error) error {
	if p.MaxRetries == 0 {
		return operation(ctx)
	}
	if logger == nil {
		logger = slog.Default()
	}

	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	b := retry.WithMaxRetries(p.MaxRetries, retry.NewExponential(base))

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := operation(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		logger.Debug("operation failed, will retry", "attempt", attempt, "maxRetries", p.MaxRetries, "err", err)
		return retry.RetryableError(err)
	})
}
