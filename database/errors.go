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
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoIndexErr
	NoColumnErr
	ExistIndexErr
	ExistColumnErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
)

var mysqlErrors = map[uint16]SQLError{
	1091: NoIndexErr,
	1054: NoColumnErr,
	1061: ExistIndexErr,
	1060: ExistColumnErr,
	1146: NoTableErr,
	1050: ExistTableErr,
	1062: DuplicateKeyErr,
	1048: NotNullViolationErr,
	1216: ForeignKeyViolationErr,
	1217: ForeignKeyViolationErr,
	1451: ForeignKeyViolationErr,
	1452: ForeignKeyViolationErr,
	3819: CheckConstraintViolationErr,
	1265: DataTruncatedErr,
	1406: DataTruncatedErr,
}

// SQLSTATE codes shared by lib/pq and pgx.
var sqlStateErrors = map[string]SQLError{
	"42703": NoColumnErr,
	"42704": NoIndexErr,
	"42P01": NoTableErr,
	"42P07": ExistTableErr,
	"42701": ExistColumnErr,
	"23505": DuplicateKeyErr,
	"23502": NotNullViolationErr,
	"23503": ForeignKeyViolationErr,
	"23514": CheckConstraintViolationErr,
	"22001": DataTruncatedErr,
	"42804": InvalidTypeCastErr,
}

// IsSqlError classifies err. It reports false for errors that did not come
// from the database.
func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return true, mysqlErrors[mysqlErr.Number]
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return true, sqlStateErrors[string(pqErr.Code)]
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true, sqlStateErrors[pgErr.Code]
	}
	return classifyMessage(strings.ToLower(err.Error()))
}

// classifyMessage covers drivers without typed errors, sqlite mostly.
func classifyMessage(s string) (bool, SQLError) {
	has := func(subs ...string) bool {
		for _, sub := range subs {
			if !strings.Contains(s, sub) {
				return false
			}
		}
		return true
	}
	switch {
	case has("no such column"), has("undefined column"):
		return true, NoColumnErr
	case has("no such index"):
		return true, NoIndexErr
	case has("no such table"), has("undefined table"):
		return true, NoTableErr
	case has("already exists", "index"):
		return true, ExistIndexErr
	case has("already exists", "table"):
		return true, ExistTableErr
	case has("duplicate column name"):
		return true, ExistColumnErr
	case has("unique constraint failed"), has("duplicate key value"):
		return true, DuplicateKeyErr
	case has("not null constraint failed"), has("not-null constraint"):
		return true, NotNullViolationErr
	case has("foreign key constraint failed"), has("foreign key violation"):
		return true, ForeignKeyViolationErr
	case has("check constraint"):
		return true, CheckConstraintViolationErr
	case has("data truncated"), has("string data right truncation"):
		return true, DataTruncatedErr
	case has("datatype mismatch"):
		return true, InvalidTypeCastErr
	}
	return false, UnknownErr
}
