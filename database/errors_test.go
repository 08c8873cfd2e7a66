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

package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsSqlError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		is   bool
		kind SQLError
	}{
		{"nil", nil, false, UnknownErr},
		{"plain", errors.New("boom"), false, UnknownErr},
		{"no rows", fmt.Errorf("find: %w", sql.ErrNoRows), true, NoRowsErr},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true, DuplicateKeyErr},
		{"mysql unmapped", &mysql.MySQLError{Number: 1205}, true, UnknownErr},
		{"pq not null", &pq.Error{Code: "23502"}, true, NotNullViolationErr},
		{"pgx undefined table", fmt.Errorf("query: %w", &pgconn.PgError{Code: "42P01"}), true, NoTableErr},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: widgets.id (1555)"), true, DuplicateKeyErr},
		{"sqlite no table", errors.New("SQL logic error: no such table: widgets (1)"), true, NoTableErr},
		{"index exists", errors.New("index idx_name already exists"), true, ExistIndexErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			is, kind := IsSqlError(tc.err)
			assert.Equal(t, tc.is, is)
			assert.Equal(t, tc.kind, kind)
		})
	}
}
