/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package unitofwork

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/datacontext"
	"github.com/tomoncle/anvil/repository"
)

// RetryPolicy bounds Commit. Zero MaxAttempts keeps retrying while the save
// keeps hitting concurrency conflicts; Backoff is the fixed pause between
// attempts. When the last allowed attempt conflicts, the conflicting entity
// is not reloaded and keeps the caller's pending change.
type RetryPolicy struct {
	MaxAttempts uint
	Backoff     time.Duration
}

// PolicyFromConfig converts the unit_of_work configuration section.
func PolicyFromConfig(cfg database.UnitOfWorkConfig) RetryPolicy {
	return RetryPolicy{MaxAttempts: cfg.MaxAttempts, Backoff: cfg.Backoff}
}

type Option func(*UnitOfWork)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(u *UnitOfWork) { u.policy = p }
}

func WithLogger(l database.Logger) Option {
	return func(u *UnitOfWork) {
		if l != nil {
			u.logger = l
		}
	}
}

// UnitOfWork owns a DataContext until Close. It is not safe for concurrent
// use.
type UnitOfWork struct {
	dc     datacontext.DataContext
	policy RetryPolicy
	logger database.Logger
}

func New(dc datacontext.DataContext, opts ...Option) *UnitOfWork {
	u := &UnitOfWork{dc: dc, logger: database.GetLogger()}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// DataContext returns the owned context, for building repositories or
// reaching the change tracker.
func (u *UnitOfWork) DataContext() datacontext.DataContext { return u.dc }

// Repository returns the repository of T over the unit's DataContext.
func Repository[T any](u *UnitOfWork) repository.Repository[T] {
	return repository.NewRepository[T](u.dc)
}

// Commit saves every pending change. When the save fails on a concurrency
// conflict the conflicting entry is reloaded from storage and the whole save
// runs again. Any other error is returned as is, without retrying.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	var written int
	var attempt uint
	err := retry.Do(
		func() error {
			attempt++
			n, err := u.dc.SaveChanges(ctx)
			if err == nil {
				written = n
				return nil
			}
			conflict, ok := datacontext.AsConcurrencyError(err)
			if !ok {
				return err
			}
			if u.policy.MaxAttempts > 0 && attempt >= u.policy.MaxAttempts {
				return conflict
			}
			if reloadErr := u.dc.Reload(ctx, conflict.Entry); reloadErr != nil {
				return reloadErr
			}
			return conflict
		},
		retry.Attempts(u.policy.MaxAttempts),
		retry.Delay(u.policy.Backoff),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(func(err error) bool {
			_, ok := datacontext.AsConcurrencyError(err)
			return ok
		}),
		retry.OnRetry(func(n uint, err error) {
			u.logger.Warn("Commit conflict, retrying", "attempt", n+1, "max_attempts", u.policy.MaxAttempts, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return err
	}
	u.logger.Debug("Unit of work committed", "entries", written)
	return nil
}

// Detach gives up on the pending changes without touching storage: deleted
// and modified entities keep their current values as the new baseline and
// become unchanged, added entities are forgotten.
func (u *UnitOfWork) Detach() {
	tracker := u.dc.ChangeTracker()
	tracker.DetectChanges()
	tracker.Apply(datacontext.DetachTransition)
}

// Refresh reloads every pending entity from storage. Entities whose row does
// not exist become detached.
func (u *UnitOfWork) Refresh(ctx context.Context) error {
	tracker := u.dc.ChangeTracker()
	tracker.DetectChanges()
	for _, e := range tracker.Entries() {
		if !e.State().Pending() {
			continue
		}
		if err := u.dc.Reload(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Close disposes the DataContext.
func (u *UnitOfWork) Close() error {
	return u.dc.Close()
}
