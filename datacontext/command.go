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
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type CommandType int

const (
	CommandText CommandType = iota
	CommandStoredProcedure
)

// Parameter is a command argument. Name is only used by stored procedure
// calls on dialects with named arguments; text commands bind positionally
// to "?" placeholders.
type Parameter struct {
	Name  string
	Value any
}

// Database is the raw SQL facade of a DataContext.
type Database struct {
	db *bun.DB
}

func NewDatabase(db *bun.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Dialect() dialect.Name {
	return d.db.Dialect().Name()
}

// OpenConnection checks a dedicated connection out of the pool. The caller
// must Close it.
func (d *Database) OpenConnection(ctx context.Context) (*Connection, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &Connection{conn: conn, dialect: d.Dialect()}, nil
}

type Connection struct {
	conn    bun.Conn
	dialect dialect.Name
	closed  bool
}

func (c *Connection) CreateCommand() *Command {
	return &Command{conn: c}
}

// Close returns the connection to the pool. It is safe to call twice.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Command is one statement bound to a Connection.
type Command struct {
	conn       *Connection
	closed     bool
	Text       string
	Type       CommandType
	Parameters []Parameter
}

func (c *Command) AddParameters(params ...Parameter) *Command {
	c.Parameters = append(c.Parameters, params...)
	return c
}

// ExecuteReader runs the command and returns its cursor. The caller must
// close the rows.
func (c *Command) ExecuteReader(ctx context.Context) (*sql.Rows, error) {
	query, args, err := c.build()
	if err != nil {
		return nil, err
	}
	return c.conn.conn.QueryContext(ctx, query, args...)
}

// ExecuteScalar returns the first column of the first row, or nil when the
// command yields no rows.
func (c *Command) ExecuteScalar(ctx context.Context) (any, error) {
	rows, err := c.ExecuteReader(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}

// ExecuteNonQuery runs the command and returns the affected row count.
func (c *Command) ExecuteNonQuery(ctx context.Context) (int64, error) {
	query, args, err := c.build()
	if err != nil {
		return 0, err
	}
	res, err := c.conn.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close marks the command unusable.
func (c *Command) Close() error {
	c.closed = true
	return nil
}

func (c *Command) build() (string, []any, error) {
	if c.closed || c.conn.closed {
		return "", nil, ErrClosed
	}
	args := make([]any, len(c.Parameters))
	for i, p := range c.Parameters {
		args[i] = p.Value
	}
	if c.Type == CommandText {
		return c.Text, args, nil
	}
	query, err := procedureCall(c.conn.dialect, c.Text, c.Parameters)
	return query, args, err
}

// procedureCall renders the stored procedure invocation for a dialect.
func procedureCall(name dialect.Name, procedure string, params []Parameter) (string, error) {
	placeholders := make([]string, len(params))
	for i, p := range params {
		switch {
		case p.Name == "":
			placeholders[i] = "?"
		case name == dialect.PG:
			placeholders[i] = p.Name + " => ?"
		case name == dialect.MSSQL:
			placeholders[i] = "@" + strings.TrimPrefix(p.Name, "@") + " = ?"
		default:
			placeholders[i] = "?"
		}
	}
	list := strings.Join(placeholders, ", ")
	switch name {
	case dialect.PG:
		return fmt.Sprintf("SELECT * FROM %s(%s)", procedure, list), nil
	case dialect.MySQL:
		return fmt.Sprintf("CALL %s(%s)", procedure, list), nil
	case dialect.MSSQL:
		return strings.TrimSpace("EXEC " + procedure + " " + list), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrStoredProcedureUnsupported, name)
	}
}
