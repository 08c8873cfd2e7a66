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

package mapper

import (
	"database/sql"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/anvil/types"
)

type person struct {
	Id   int
	Name string
}

type account struct {
	ID        int64          `bun:"id,pk,autoincrement"`
	ConfigKey string         `bun:"config_key"`
	Nickname  *string        `bun:"nickname"`
	Note      sql.NullString `bun:"note"`
	Meta      types.JsonObject
	Active    bool
	Balance   float64
	CreatedAt time.Time
	hidden    string
}

type flag struct {
	On bool
}

type ratio struct {
	Value float64
}

type audited struct {
	CreatedBy string
}

type document struct {
	*audited
	Title string
}

func query(t *testing.T, rows *sqlmock.Rows) *sql.Rows {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectQuery("SELECT").WillReturnRows(rows)
	r, err := db.Query("SELECT * FROM t")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestMapNilAndEmptyCursor(t *testing.T) {
	var nilRows *sql.Rows
	got, err := Map[person](nilRows)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = Map[person](nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Map[person](query(t, sqlmock.NewRows([]string{"id", "name"})))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMapIgnoresCaseAndExtraColumns(t *testing.T) {
	rows := sqlmock.NewRows([]string{"ID", "NAME", "EXTRA"}).
		AddRow(7, "Ann", "x").
		AddRow(8, "Bob", "y")

	got, err := Map[person](query(t, rows))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, person{Id: 7, Name: "Ann"}, *got[0])
	assert.Equal(t, person{Id: 8, Name: "Bob"}, *got[1])
}

func TestMapColumnCasings(t *testing.T) {
	for _, column := range []string{"Id", "ID", "id", "iD"} {
		t.Run(column, func(t *testing.T) {
			got, err := Map[person](query(t, sqlmock.NewRows([]string{column}).AddRow(3)))
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, 3, got[0].Id)
			assert.Empty(t, got[0].Name)
		})
	}
}

func TestMapConversionsAndNulls(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "config_key", "NICKNAME", "note", "meta", "active", "balance", "created_at", "hidden"}).
		AddRow(int64(1), []byte("site.name"), "annie", "hello", []byte(`{"k":"v"}`), int64(1), "12.5", created, "secret").
		AddRow([]byte("2"), "site.url", nil, nil, nil, false, 3, created, nil)

	got, err := Map[account](query(t, rows))
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, "site.name", first.ConfigKey)
	require.NotNil(t, first.Nickname)
	assert.Equal(t, "annie", *first.Nickname)
	assert.Equal(t, sql.NullString{String: "hello", Valid: true}, first.Note)
	assert.Equal(t, "v", first.Meta["k"])
	assert.True(t, first.Active)
	assert.Equal(t, 12.5, first.Balance)
	assert.True(t, created.Equal(first.CreatedAt))
	assert.Empty(t, first.hidden)

	second := got[1]
	assert.Equal(t, int64(2), second.ID)
	assert.Nil(t, second.Nickname)
	assert.False(t, second.Note.Valid)
	assert.Nil(t, second.Meta)
	assert.Equal(t, float64(3), second.Balance)
}

func TestMapTypeMismatch(t *testing.T) {
	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(1, "Ann").
		AddRow("not-a-number", "Bob").
		AddRow(3, "Cid")

	got, err := Map[person](query(t, rows))
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, ErrTypeMismatch))

	var mismatch *TypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "id", mismatch.Column)
	assert.Equal(t, "Id", mismatch.Field)
}

func TestMapRejectsLossyConversions(t *testing.T) {
	cases := []struct {
		name string
		run  func(*testing.T) error
	}{
		{"fractional float to int", func(t *testing.T) error {
			_, err := Map[person](query(t, sqlmock.NewRows([]string{"id", "name"}).AddRow(3.7, "ann")))
			return err
		}},
		{"infinite float to int", func(t *testing.T) error {
			_, err := Map[person](query(t, sqlmock.NewRows([]string{"id"}).AddRow(math.Inf(1))))
			return err
		}},
		{"bool to int", func(t *testing.T) error {
			_, err := Map[person](query(t, sqlmock.NewRows([]string{"id", "name"}).AddRow(true, "bob")))
			return err
		}},
		{"bool to float", func(t *testing.T) error {
			_, err := Map[ratio](query(t, sqlmock.NewRows([]string{"value"}).AddRow(false)))
			return err
		}},
		{"int other than 0 or 1 to bool", func(t *testing.T) error {
			_, err := Map[flag](query(t, sqlmock.NewRows([]string{"on"}).AddRow(int64(42))))
			return err
		}},
		{"float to bool", func(t *testing.T) error {
			_, err := Map[flag](query(t, sqlmock.NewRows([]string{"on"}).AddRow(1.0)))
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run(t)
			assert.ErrorIs(t, err, ErrTypeMismatch)
		})
	}
}

func TestMapLosslessNumericConversions(t *testing.T) {
	people, err := Map[person](query(t, sqlmock.NewRows([]string{"id"}).AddRow(2.0).AddRow([]byte("5"))))
	require.NoError(t, err)
	require.Len(t, people, 2)
	assert.Equal(t, 2, people[0].Id)
	assert.Equal(t, 5, people[1].Id)

	flags, err := Map[flag](query(t, sqlmock.NewRows([]string{"on"}).AddRow(int64(0)).AddRow(int64(1)).AddRow([]byte("true"))))
	require.NoError(t, err)
	require.Len(t, flags, 3)
	assert.False(t, flags[0].On)
	assert.True(t, flags[1].On)
	assert.True(t, flags[2].On)
}

func TestMapNullIntoNonNullableField(t *testing.T) {
	got, err := Map[person](query(t, sqlmock.NewRows([]string{"id"}).AddRow(nil)))
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestMapEmbeddedPointer(t *testing.T) {
	rows := sqlmock.NewRows([]string{"title", "created_by"}).AddRow("doc", "root")
	got, err := Map[document](query(t, rows))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "doc", got[0].Title)
	// audited is unexported, so its promoted field is read-only.
	assert.Nil(t, got[0].audited)
}

func TestMapCursorError(t *testing.T) {
	rows := sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).RowError(1, errors.New("broken pipe"))
	got, err := Map[person](query(t, rows))
	assert.Nil(t, got)
	assert.EqualError(t, err, "broken pipe")
}

func TestIterStopsEarly(t *testing.T) {
	rows := sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).AddRow(3)
	var seen []int
	for p, err := range Iter[person](query(t, rows)) {
		require.NoError(t, err)
		seen = append(seen, p.Id)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []int{1, 2}, seen)
}

type tagged struct {
	Key   string
	Value string
}

func TestRegisteredBinder(t *testing.T) {
	Register[tagged](func(dst *tagged, column string, value any) error {
		switch strings.ToLower(column) {
		case "k":
			dst.Key = value.(string)
		case "v":
			dst.Value = strings.ToUpper(value.(string))
		}
		return nil
	})
	t.Cleanup(Unregister[tagged])

	got, err := Map[tagged](query(t, sqlmock.NewRows([]string{"K", "V", "key"}).AddRow("a", "b", "ignored")))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tagged{Key: "a", Value: "B"}, *got[0])
}

func TestIndexFieldsAndAliases(t *testing.T) {
	idx := Index[account]()
	assert.Equal(t, []string{"Active", "Balance", "ConfigKey", "CreatedAt", "ID", "Meta", "Nickname", "Note"}, idx.Fields())

	f, ok := idx.Lookup("CONFIG_KEY")
	require.True(t, ok)
	assert.Equal(t, "ConfigKey", f.Name)

	f, ok = idx.Lookup("configkey")
	require.True(t, ok)
	assert.Equal(t, "ConfigKey", f.Name)

	_, ok = idx.Lookup("hidden")
	assert.False(t, ok)

	assert.Same(t, idx, Index[account]())
}

func TestUnderscore(t *testing.T) {
	cases := map[string]string{
		"ID":        "id",
		"UserID":    "user_id",
		"ConfigKey": "config_key",
		"HTTPCode":  "http_code",
		"name":      "name",
	}
	for in, want := range cases {
		assert.Equal(t, want, underscore(in), in)
	}
}
