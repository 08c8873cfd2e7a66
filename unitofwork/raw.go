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

	"github.com/tomoncle/anvil/datacontext"
	"github.com/tomoncle/anvil/mapper"
)

// RawQuery runs sqlText on a dedicated connection and maps each row into a
// new T. Results are not tracked.
func RawQuery[T any](ctx context.Context, u *UnitOfWork, sqlText string) ([]*T, error) {
	return query[T](ctx, u, sqlText, datacontext.CommandText)
}

// StoredProcedure calls the named procedure with params bound by name and
// maps the result set into T.
func StoredProcedure[T any](ctx context.Context, u *UnitOfWork, name string, params ...datacontext.Parameter) ([]*T, error) {
	return query[T](ctx, u, name, datacontext.CommandStoredProcedure, params...)
}

func query[T any](ctx context.Context, u *UnitOfWork, text string, typ datacontext.CommandType, params ...datacontext.Parameter) ([]*T, error) {
	conn, err := u.dc.Database().OpenConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	cmd := conn.CreateCommand()
	defer cmd.Close()
	cmd.Text = text
	cmd.Type = typ
	cmd.AddParameters(params...)

	rows, err := cmd.ExecuteReader(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return mapper.Map[T](rows)
}

// RawQueryScalar returns the first column of the first row of sqlText, or
// nil when it yields no rows.
func (u *UnitOfWork) RawQueryScalar(ctx context.Context, sqlText string) (any, error) {
	conn, err := u.dc.Database().OpenConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	cmd := conn.CreateCommand()
	defer cmd.Close()
	cmd.Text = sqlText
	return cmd.ExecuteScalar(ctx)
}
