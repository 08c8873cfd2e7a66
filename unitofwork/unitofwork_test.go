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
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/datacontext"
	"github.com/tomoncle/anvil/types"
)

type account struct {
	bun.BaseModel `bun:"table:accounts"`

	ID      int64  `bun:"id,pk,autoincrement"`
	Owner   string `bun:"owner"`
	Balance int64  `bun:"balance"`
	Version int64  `bun:"version" anvil:"version"`
}

// scriptedContext replays one SaveChanges result per call.
type scriptedContext struct {
	tracker *datacontext.ChangeTracker
	results []error
	saves   int
	reloads int
	onSave  func(n int)
}

func (s *scriptedContext) DB() bun.IDB { return nil }

func (s *scriptedContext) ChangeTracker() *datacontext.ChangeTracker { return s.tracker }

func (s *scriptedContext) Database() *datacontext.Database { return nil }

func (s *scriptedContext) Close() error { return nil }

func (s *scriptedContext) Reload(context.Context, *datacontext.Entry) error {
	s.reloads++
	return nil
}

func (s *scriptedContext) SaveChanges(context.Context) (int, error) {
	s.saves++
	if s.onSave != nil {
		s.onSave(s.saves)
	}
	if len(s.results) == 0 {
		return 1, nil
	}
	err := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return 0, err
}

func script(results ...error) *scriptedContext {
	return &scriptedContext{tracker: datacontext.NewChangeTracker(), results: results}
}

func conflict() error { return &datacontext.ConcurrencyError{} }

func newDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.NewCreateTable().Model((*account)(nil)).Exec(context.Background())
	require.NoError(t, err)
	return db
}

func TestCommitRetriesOnceAfterConflict(t *testing.T) {
	dc := script(conflict(), nil)
	require.NoError(t, New(dc).Commit(context.Background()))
	assert.Equal(t, 2, dc.saves)
	assert.Equal(t, 1, dc.reloads)
}

func TestCommitReturnsOtherErrorsUnchanged(t *testing.T) {
	boom := errors.New("disk full")
	dc := script(boom)
	err := New(dc).Commit(context.Background())
	assert.Same(t, boom, err)
	assert.Equal(t, 1, dc.saves)
	assert.Zero(t, dc.reloads)
}

func TestCommitBoundedPolicy(t *testing.T) {
	dc := script(conflict())
	uow := New(dc, WithRetryPolicy(RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}))
	err := uow.Commit(context.Background())
	assert.ErrorIs(t, err, datacontext.ErrConcurrencyConflict)
	assert.Equal(t, 3, dc.saves)
	assert.Equal(t, 2, dc.reloads, "the last attempt keeps the pending change")
}

func TestCommitBoundedPolicyKeepsPendingChange(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	_, err := db.NewInsert().Model(&account{Owner: "ann", Balance: 10}).Exec(ctx)
	require.NoError(t, err)

	mine := New(datacontext.New(db), WithRetryPolicy(RetryPolicy{MaxAttempts: 1}))
	theirs := New(datacontext.New(db))
	a, err := Repository[account](mine).FindByKey(ctx, int64(1))
	require.NoError(t, err)
	b, err := Repository[account](theirs).FindByKey(ctx, int64(1))
	require.NoError(t, err)

	b.Balance = 50
	require.NoError(t, theirs.Commit(ctx))

	a.Balance = 20
	err = mine.Commit(ctx)
	assert.ErrorIs(t, err, datacontext.ErrConcurrencyConflict)
	assert.Equal(t, int64(20), a.Balance)
	assert.Equal(t, int64(0), a.Version)

	e, ok := mine.DataContext().ChangeTracker().Entry(a)
	require.True(t, ok)
	assert.Equal(t, datacontext.Modified, e.State())
}

func TestCommitStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dc := script(conflict())
	dc.onSave = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	err := New(dc).Commit(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, dc.saves, 2)
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(database.UnitOfWorkConfig{MaxAttempts: 5, Backoff: time.Second})
	assert.Equal(t, RetryPolicy{MaxAttempts: 5, Backoff: time.Second}, p)
}

func TestCommitResolvesStaleWrite(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	_, err := db.NewInsert().Model(&account{Owner: "ann", Balance: 10}).Exec(ctx)
	require.NoError(t, err)

	mine := New(datacontext.New(db))
	theirs := New(datacontext.New(db))
	a, err := Repository[account](mine).FindByKey(ctx, int64(1))
	require.NoError(t, err)
	b, err := Repository[account](theirs).FindByKey(ctx, int64(1))
	require.NoError(t, err)

	b.Balance = 50
	require.NoError(t, theirs.Commit(ctx))

	a.Balance = 20
	require.NoError(t, mine.Commit(ctx))
	assert.Equal(t, int64(50), a.Balance, "the stored row wins after reload")
	assert.Equal(t, int64(1), a.Version)

	e, ok := mine.DataContext().ChangeTracker().Entry(a)
	require.True(t, ok)
	assert.Equal(t, datacontext.Unchanged, e.State())
}

func TestInsertCommitFindRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	writer := New(datacontext.New(db))
	in := Repository[account](writer).Insert(&account{Owner: "bob", Balance: 7})
	require.NoError(t, writer.Commit(ctx))
	require.NotZero(t, in.ID)

	reader := New(datacontext.New(db))
	out, err := Repository[account](reader).FindByKey(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDeleteMissingKeyIsNoop(t *testing.T) {
	ctx := context.Background()
	uow := New(datacontext.New(newDB(t)))
	require.NoError(t, Repository[account](uow).Delete(ctx, int64(999)))
	assert.False(t, uow.DataContext().ChangeTracker().HasChanges())
	require.NoError(t, uow.Commit(ctx))
}

func TestDetach(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	for _, owner := range []string{"ann", "bob"} {
		_, err := db.NewInsert().Model(&account{Owner: owner}).Exec(ctx)
		require.NoError(t, err)
	}
	uow := New(datacontext.New(db))
	repo := Repository[account](uow)
	ann, err := repo.FindByKey(ctx, int64(1))
	require.NoError(t, err)
	bob, err := repo.FindByKey(ctx, int64(2))
	require.NoError(t, err)
	ann.Balance = 99
	repo.DeleteEntity(bob)
	carl := repo.Insert(&account{Owner: "carl"})

	tracker := uow.DataContext().ChangeTracker()
	states := func() map[string]datacontext.EntityState {
		got := map[string]datacontext.EntityState{}
		for _, a := range []*account{ann, bob, carl} {
			state := datacontext.Detached
			if e, ok := tracker.Entry(a); ok {
				state = e.State()
			}
			got[a.Owner] = state
		}
		return got
	}

	uow.Detach()
	want := map[string]datacontext.EntityState{
		"ann":  datacontext.Unchanged,
		"bob":  datacontext.Unchanged,
		"carl": datacontext.Detached,
	}
	assert.Equal(t, want, states())
	assert.Equal(t, int64(99), ann.Balance)

	uow.Detach()
	assert.Equal(t, want, states())
	assert.False(t, tracker.HasChanges())

	require.NoError(t, uow.Commit(ctx))
	n, err := uow.RawQueryScalar(ctx, "SELECT COUNT(*) FROM accounts")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	_, err := db.NewInsert().Model(&account{Owner: "ann", Balance: 5}).Exec(ctx)
	require.NoError(t, err)

	uow := New(datacontext.New(db))
	repo := Repository[account](uow)
	ann, err := repo.FindByKey(ctx, int64(1))
	require.NoError(t, err)
	ann.Balance = 500
	ghost := repo.Insert(&account{Owner: "ghost"})

	require.NoError(t, uow.Refresh(ctx))
	tracker := uow.DataContext().ChangeTracker()
	assert.Equal(t, int64(5), ann.Balance)
	e, ok := tracker.Entry(ann)
	require.True(t, ok)
	assert.Equal(t, datacontext.Unchanged, e.State())
	_, ok = tracker.Entry(ghost)
	assert.False(t, ok)
}

func TestRawQuery(t *testing.T) {
	ctx := context.Background()
	uow := New(datacontext.New(newDB(t)))

	n, err := uow.RawQueryScalar(ctx, "SELECT COUNT(*) FROM accounts")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	none, err := uow.RawQueryScalar(ctx, "SELECT owner FROM accounts")
	require.NoError(t, err)
	assert.Nil(t, none)

	repo := Repository[account](uow)
	repo.InsertRange([]*account{{Owner: "ann", Balance: 3}, {Owner: "bob", Balance: 4}})
	require.NoError(t, uow.Commit(ctx))

	type summary struct {
		Owner string
		Total int64
	}
	rows, err := RawQuery[summary](ctx, uow, "SELECT OWNER, balance * 10 AS total FROM accounts ORDER BY owner")
	require.NoError(t, err)
	assert.Equal(t, []*summary{{"ann", 30}, {"bob", 40}}, rows)

	up, err := Repository[account](uow).All(ctx, types.NewQueryFilter("balance > ?", 0))
	require.NoError(t, err)
	assert.True(t, up)

	_, err = StoredProcedure[summary](ctx, uow, "totals")
	assert.ErrorIs(t, err, datacontext.ErrStoredProcedureUnsupported)
}

func TestStoredProcedure(t *testing.T) {
	sqldb, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("SELECT * FROM top_accounts(region => 'eu', lim => 2)").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner"}).AddRow(7, "ann").AddRow(9, "bob"))

	uow := New(datacontext.New(db))
	got, err := StoredProcedure[account](context.Background(), uow, "top_accounts",
		datacontext.Parameter{Name: "region", Value: "eu"},
		datacontext.Parameter{Name: "lim", Value: 2},
	)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(9), got[1].ID)
	assert.Equal(t, "bob", got[1].Owner)
	assert.NoError(t, mock.ExpectationsWereMet())
}
