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

	"github.com/tomoncle/anvil/types"
)

// ReadRepository reads entities of one type. Only FindByKey tracks its
// result; everything else returns detached copies.
type ReadRepository[T any] interface {
	FindAll(ctx context.Context) ([]*T, error)

	FindTop(ctx context.Context, n int) ([]*T, error)

	FindByKey(ctx context.Context, key ...any) (*T, error)

	FindWhere(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	All(ctx context.Context, filter *types.QueryFilter) (bool, error)

	Any(ctx context.Context, filter *types.QueryFilter) (bool, error)

	Count(ctx context.Context, filter *types.QueryFilter) (int, error)
}

// WriteRepository stages changes in the change tracker. Nothing reaches the
// database until the owning unit of work commits.
type WriteRepository[T any] interface {
	Insert(entity *T) *T
	InsertRange(entities []*T) []*T
	Update(entity *T) *T
	UpdateRange(entities []*T) []*T
	Delete(ctx context.Context, key ...any) error
	DeleteEntity(entity *T)
	DeleteRange(entities []*T)
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository combines reads, staged writes and pagination, and exposes the
// bun select builder for queries the interface does not cover.
type Repository[T any] interface {
	ReadRepository[T]
	WriteRepository[T]
	PageQueryRepository[T]
	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
}
