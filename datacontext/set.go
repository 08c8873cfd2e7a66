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

package datacontext

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/uptrace/bun"

	"github.com/tomoncle/anvil/types"
)

// DbSet is the typed view of one entity type inside a DataContext. Writes
// only touch the tracker; reads go to the database. Staging an entity whose
// type has no primary key panics.
type DbSet[T any] struct {
	dc DataContext
}

// Set returns the DbSet of T in dc.
func Set[T any](dc DataContext) *DbSet[T] {
	return &DbSet[T]{dc: dc}
}

func (s *DbSet[T]) track(entity *T, state EntityState) *Entry {
	if entity == nil {
		return nil
	}
	e, err := s.dc.ChangeTracker().Track(entity, state)
	if err != nil {
		panic(err)
	}
	return e
}

// Add stages entity for insert. Adding a Deleted entity cancels the delete
// and marks it Modified. Nil entities are ignored.
func (s *DbSet[T]) Add(entity *T) *Entry {
	e := s.track(entity, Added)
	if e != nil && e.State() == Deleted {
		e.SetState(Modified)
	}
	return e
}

func (s *DbSet[T]) AddRange(entities ...*T) {
	for _, entity := range entities {
		s.Add(entity)
	}
}

// Update stages entity for update. An untracked entity is attached as
// Modified without a baseline, so every column is written; an Added entity
// stays Added.
func (s *DbSet[T]) Update(entity *T) *Entry {
	e := s.track(entity, Modified)
	if e != nil && e.State() != Added {
		e.SetState(Modified)
	}
	return e
}

func (s *DbSet[T]) UpdateRange(entities ...*T) {
	for _, entity := range entities {
		s.Update(entity)
	}
}

// Remove stages entity for delete. Removing an Added entity forgets it.
func (s *DbSet[T]) Remove(entity *T) *Entry {
	e := s.track(entity, Deleted)
	if e == nil {
		return nil
	}
	if e.State() == Added {
		e.SetState(Detached)
	} else {
		e.SetState(Deleted)
	}
	return e
}

func (s *DbSet[T]) RemoveRange(entities ...*T) {
	for _, entity := range entities {
		s.Remove(entity)
	}
}

// Find returns the entity with the given primary key values, in key column
// order. A tracked instance wins over the database; a loaded row is tracked
// as Unchanged. It returns nil, nil when nothing matches.
func (s *DbSet[T]) Find(ctx context.Context, keys ...any) (*T, error) {
	meta, err := metaOf(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	if len(keys) != len(meta.keys) {
		return nil, fmt.Errorf("%w: %s wants %d, got %d", ErrKeyMismatch, meta.typ.Name(), len(meta.keys), len(keys))
	}
	if e, ok := s.dc.ChangeTracker().lookup(meta.typ, keys); ok {
		return e.Entity().(*T), nil
	}

	entity := new(T)
	q := s.dc.DB().NewSelect().Model(entity)
	for i, k := range keys {
		q = q.Where("? = ?", bun.Ident(meta.keys[i].column), k)
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.track(entity, Unchanged)
	return entity, nil
}

// Query starts an untracked select over the table of T. Pass the
// destination to Scan, e.g. q.Scan(ctx, &rows) with rows of type []*T.
func (s *DbSet[T]) Query() *bun.SelectQuery {
	return s.dc.DB().NewSelect().Model((*T)(nil))
}

// Where loads the rows matching filter, up to limit rows when limit > 0.
// Results are not tracked.
func (s *DbSet[T]) Where(ctx context.Context, filter *types.QueryFilter, limit int) ([]*T, error) {
	entities := make([]*T, 0)
	q := applyFilter(s.dc.DB().NewSelect().Model(&entities), filter)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

// Any reports whether at least one row matches filter.
func (s *DbSet[T]) Any(ctx context.Context, filter *types.QueryFilter) (bool, error) {
	return applyFilter(s.Query(), filter).Exists(ctx)
}

// All reports whether every row matches filter; it is true for an empty
// table.
func (s *DbSet[T]) All(ctx context.Context, filter *types.QueryFilter) (bool, error) {
	if filter.IsEmpty() {
		return true, nil
	}
	exists, err := applyFilter(s.Query(), types.Not(filter)).Exists(ctx)
	return !exists, err
}

func (s *DbSet[T]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	return applyFilter(s.Query(), filter).Count(ctx)
}

func applyFilter(q *bun.SelectQuery, filter *types.QueryFilter) *bun.SelectQuery {
	if filter.IsEmpty() {
		return q
	}
	return q.Where(filter.Schema, filter.Args...)
}
