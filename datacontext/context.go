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
	"reflect"

	"github.com/uptrace/bun"

	"github.com/tomoncle/anvil/database"
)

// DataContext is an ORM session: a database handle plus the change tracker
// that records what SaveChanges has to write.
type DataContext interface {
	DB() bun.IDB
	ChangeTracker() *ChangeTracker
	Database() *Database
	SaveChanges(ctx context.Context) (int, error)
	Reload(ctx context.Context, entry *Entry) error
	Close() error
}

type Option func(*Context)

// WithLogger overrides the database package logger.
func WithLogger(l database.Logger) Option {
	return func(c *Context) { c.logger = l }
}

// WithOwnership makes Close also close the underlying *bun.DB.
func WithOwnership() Option {
	return func(c *Context) { c.owned = true }
}

// Context is the bun implementation of DataContext.
type Context struct {
	db       *bun.DB
	tracker  *ChangeTracker
	database *Database
	logger   database.Logger
	owned    bool
	closed   bool
}

var _ DataContext = (*Context)(nil)

func New(db *bun.DB, opts ...Option) *Context {
	c := &Context{
		db:       db,
		tracker:  NewChangeTracker(),
		database: NewDatabase(db),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = database.GetLogger()
	}
	return c
}

func (c *Context) DB() bun.IDB { return c.db }

func (c *Context) ChangeTracker() *ChangeTracker { return c.tracker }

func (c *Context) Database() *Database { return c.database }

// SaveChanges writes every pending entry in one transaction: inserts, then
// updates, then deletes, each group in tracking order. An update or delete
// that matches no row aborts the transaction with a *ConcurrencyError. On
// failure the in-memory entity values are restored and no state is
// advanced; unchanged entities that were edited in place stay Modified, as
// DetectChanges found them. It returns the number of entries written.
func (c *Context) SaveChanges(ctx context.Context) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}
	c.tracker.DetectChanges()
	pending := c.tracker.pending()
	if len(pending) == 0 {
		return 0, nil
	}

	before := make([]reflect.Value, len(pending))
	for i, e := range pending {
		before[i] = e.copyOf()
	}

	err := c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, e := range pending {
			if err := c.write(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for i, e := range pending {
			e.value().Set(before[i])
		}
		c.logger.Debug("save changes rolled back", "entries", len(pending), "error", err)
		return 0, err
	}

	for _, e := range pending {
		if e.state == Deleted {
			e.SetState(Detached)
		} else {
			e.SetState(Unchanged)
		}
	}
	c.logger.Debug("changes saved", "entries", len(pending))
	return len(pending), nil
}

func (c *Context) write(ctx context.Context, tx bun.Tx, e *Entry) error {
	switch e.state {
	case Added:
		_, err := tx.NewInsert().Model(e.entity).Exec(ctx)
		return err
	case Modified:
		q := tx.NewUpdate().Model(e.entity).WherePK()
		if v, ok := e.versionValue(); ok {
			q = q.Where("? = ?", bun.Ident(e.meta.version.column), v)
			e.setVersion(v + 1)
		}
		res, err := q.Exec(ctx)
		return checkAffected(e, res, err)
	case Deleted:
		q := tx.NewDelete().Model(e.entity).WherePK()
		if v, ok := e.versionValue(); ok {
			q = q.Where("? = ?", bun.Ident(e.meta.version.column), v)
		}
		res, err := q.Exec(ctx)
		return checkAffected(e, res, err)
	}
	return nil
}

func checkAffected(e *Entry, res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ConcurrencyError{Entry: e}
	}
	return nil
}

// Reload overwrites the entity of entry with the stored row and marks it
// Unchanged. When the row no longer exists the entry is detached.
func (c *Context) Reload(ctx context.Context, entry *Entry) error {
	if c.closed {
		return ErrClosed
	}
	fresh := reflect.New(entry.meta.typ)
	q := c.db.NewSelect().Model(fresh.Interface())
	for i, k := range entry.Keys() {
		q = q.Where("? = ?", bun.Ident(entry.meta.keys[i].column), k)
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		entry.SetState(Detached)
		return nil
	}
	if err != nil {
		return err
	}
	entry.value().Set(fresh.Elem())
	entry.SetState(Unchanged)
	return nil
}

// Close clears the tracker and, for owning contexts, closes the database.
// Calling it more than once is a no-op.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.tracker.Clear()
	if c.owned {
		return c.db.Close()
	}
	return nil
}
