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

package repository

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/anvil/datacontext"
	"github.com/tomoncle/anvil/types"
)

type baseRepositoryImpl[T any] struct {
	dc  datacontext.DataContext
	set *datacontext.DbSet[T]
}

// NewRepository returns the repository of T bound to dc.
func NewRepository[T any](dc datacontext.DataContext) Repository[T] {
	return &baseRepositoryImpl[T]{dc: dc, set: datacontext.Set[T](dc)}
}

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.dc.DB().Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.set.Query() }

func (r *baseRepositoryImpl[T]) FindAll(ctx context.Context) ([]*T, error) {
	return r.set.Where(ctx, nil, 0)
}

// FindTop returns at most n rows in storage order. n <= 0 yields nothing.
func (r *baseRepositoryImpl[T]) FindTop(ctx context.Context, n int) ([]*T, error) {
	if n <= 0 {
		return make([]*T, 0), nil
	}
	return r.set.Where(ctx, nil, n)
}

// FindByKey returns the tracked entity with the given key, or nil when none
// exists. Staged inserts are visible here before commit.
func (r *baseRepositoryImpl[T]) FindByKey(ctx context.Context, key ...any) (*T, error) {
	return r.set.Find(ctx, key...)
}

func (r *baseRepositoryImpl[T]) FindWhere(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	return r.set.Where(ctx, filter, 0)
}

func (r *baseRepositoryImpl[T]) All(ctx context.Context, filter *types.QueryFilter) (bool, error) {
	return r.set.All(ctx, filter)
}

func (r *baseRepositoryImpl[T]) Any(ctx context.Context, filter *types.QueryFilter) (bool, error) {
	return r.set.Any(ctx, filter)
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	return r.set.Count(ctx, filter)
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	entities := make([]*T, 0)
	query := r.dc.DB().NewSelect().Model(&entities)
	if f := pageRequest.GetFilter(); !f.IsEmpty() {
		query = query.Where(f.Schema, f.Args...)
	}
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := query.Count(ctx)
	if err != nil || total == 0 {
		return pagination, err
	}
	err = query.
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		Order(pageRequest.GetOrders()...).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

func (r *baseRepositoryImpl[T]) Insert(entity *T) *T {
	r.set.Add(entity)
	return entity
}

func (r *baseRepositoryImpl[T]) InsertRange(entities []*T) []*T {
	r.set.AddRange(entities...)
	return entities
}

func (r *baseRepositoryImpl[T]) Update(entity *T) *T {
	r.set.Update(entity)
	return entity
}

func (r *baseRepositoryImpl[T]) UpdateRange(entities []*T) []*T {
	r.set.UpdateRange(entities...)
	return entities
}

// Delete stages the entity with the given key for removal. A key that
// matches nothing is not an error.
func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, key ...any) error {
	entity, err := r.set.Find(ctx, key...)
	if err != nil || entity == nil {
		return err
	}
	r.set.Remove(entity)
	return nil
}

func (r *baseRepositoryImpl[T]) DeleteEntity(entity *T) {
	r.set.Remove(entity)
}

func (r *baseRepositoryImpl[T]) DeleteRange(entities []*T) {
	r.set.RemoveRange(entities...)
}
