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

package anvil

import (
	"context"
	"errors"

	"github.com/uptrace/bun"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/datacontext"
	"github.com/tomoncle/anvil/repository"
	"github.com/tomoncle/anvil/types"
	"github.com/tomoncle/anvil/unitofwork"
)

var ErrNotInitialized = errors.New("anvil: database not initialized, call database.InitDB first")

// NewUnitOfWork starts a unit of work on the global database with the retry
// policy of the loaded configuration. The caller must Close it.
func NewUnitOfWork(opts ...unitofwork.Option) (*unitofwork.UnitOfWork, error) {
	db := database.GetDB()
	if db == nil {
		return nil, ErrNotInitialized
	}
	var policy unitofwork.RetryPolicy
	if cfg := database.GetConfig(); cfg != nil {
		policy = unitofwork.PolicyFromConfig(cfg.UnitOfWork)
	}
	opts = append([]unitofwork.Option{unitofwork.WithRetryPolicy(policy)}, opts...)
	return unitofwork.New(datacontext.New(db), opts...), nil
}

// Service runs each call in its own unit of work on the global database.
// Writes are committed before the call returns.
type Service[T any] interface {
	// Get returns the entity with the given key, or nil when none exists.
	Get(ctx context.Context, key ...any) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	// Query executes a raw query and maps the results to entities.
	Query(ctx context.Context, sqlText string) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Save inserts one or more new entities.
	Save(ctx context.Context, model ...*T) error

	// Update writes every column of an existing entity.
	Update(ctx context.Context, model *T) error

	// Delete removes the entity with the given key. A missing key is not an
	// error.
	Delete(ctx context.Context, key ...any) error

	// SelectBuilder returns a Bun select query builder for the entity.
	SelectBuilder() *bun.SelectQuery
}

type baseServiceImpl[T any] struct{}

// NewService returns the default Service implementation.
func NewService[T any]() Service[T] {
	return &baseServiceImpl[T]{}
}

func (s *baseServiceImpl[T]) run(ctx context.Context, commit bool, fn func(*unitofwork.UnitOfWork, repository.Repository[T]) error) error {
	uow, err := NewUnitOfWork()
	if err != nil {
		return err
	}
	defer uow.Close()
	if err := fn(uow, unitofwork.Repository[T](uow)); err != nil {
		return err
	}
	if !commit {
		return nil
	}
	return uow.Commit(ctx)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, key ...any) (entity *T, err error) {
	err = s.run(ctx, false, func(_ *unitofwork.UnitOfWork, repo repository.Repository[T]) error {
		entity, err = repo.FindByKey(ctx, key...)
		return err
	})
	return entity, err
}

func (s *baseServiceImpl[T]) All(ctx context.Context) (entities []*T, err error) {
	err = s.run(ctx, false, func(_ *unitofwork.UnitOfWork, repo repository.Repository[T]) error {
		entities, err = repo.FindAll(ctx)
		return err
	})
	return entities, err
}

func (s *baseServiceImpl[T]) List(ctx context.Context, filter *types.QueryFilter) (entities []*T, err error) {
	err = s.run(ctx, false, func(_ *unitofwork.UnitOfWork, repo repository.Repository[T]) error {
		entities, err = repo.FindWhere(ctx, filter)
		return err
	})
	return entities, err
}

func (s *baseServiceImpl[T]) Query(ctx context.Context, sqlText string) (entities []*T, err error) {
	err = s.run(ctx, false, func(uow *unitofwork.UnitOfWork, _ repository.Repository[T]) error {
		entities, err = unitofwork.RawQuery[T](ctx, uow, sqlText)
		return err
	})
	return entities, err
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (pagination *types.Pagination[T], err error) {
	err = s.run(ctx, false, func(_ *unitofwork.UnitOfWork, repo repository.Repository[T]) error {
		pagination, err = repo.Page(ctx, page)
		return err
	})
	return pagination, err
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) error {
	return s.run(ctx, true, func(_ *unitofwork.UnitOfWork, repo repository.Repository[T]) error {
		repo.InsertRange(model)
		return nil
	})
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) error {
	return s.run(ctx, true, func(_ *unitofwork.UnitOfWork, repo repository.Repository[T]) error {
		repo.Update(model)
		return nil
	})
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, key ...any) error {
	return s.run(ctx, true, func(_ *unitofwork.UnitOfWork, repo repository.Repository[T]) error {
		return repo.Delete(ctx, key...)
	})
}

func (s *baseServiceImpl[T]) SelectBuilder() *bun.SelectQuery {
	db := database.GetDB()
	if db == nil {
		return nil
	}
	return db.NewSelect().Model((*T)(nil))
}
