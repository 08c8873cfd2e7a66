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
	"iter"
	"reflect"
	"sync"
)

// Rows is the forward-only cursor consumed by the mapper. *sql.Rows
// satisfies it.
type Rows interface {
	Next() bool
	Columns() ([]string, error)
	Scan(dest ...any) error
	Err() error
}

// BindFunc assigns one column value to dst. It replaces reflection for the
// type it is registered for; returning nil for unknown columns ignores them.
type BindFunc[T any] func(dst *T, column string, value any) error

var (
	bindersMu sync.RWMutex
	binders   = map[reflect.Type]any{}
)

// Register installs an explicit column binder for T.
func Register[T any](fn BindFunc[T]) {
	bindersMu.Lock()
	defer bindersMu.Unlock()
	binders[reflect.TypeOf((*T)(nil)).Elem()] = fn
}

// Unregister removes the binder installed for T, if any.
func Unregister[T any]() {
	bindersMu.Lock()
	defer bindersMu.Unlock()
	delete(binders, reflect.TypeOf((*T)(nil)).Elem())
}

func binderOf[T any]() (BindFunc[T], bool) {
	bindersMu.RLock()
	defer bindersMu.RUnlock()
	fn, ok := binders[reflect.TypeOf((*T)(nil)).Elem()]
	if !ok {
		return nil, false
	}
	return fn.(BindFunc[T]), true
}

// Map reads every remaining row of rows into a new *T, in row order. A nil
// cursor or a cursor without rows yields an empty slice. The first failure
// aborts the call and no partial result is returned.
func Map[T any](rows Rows) ([]*T, error) {
	entities := make([]*T, 0)
	for entity, err := range Iter[T](rows) {
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// Iter yields one *T per row. The sequence can be ranged over once; it stops
// after the first error.
func Iter[T any](rows Rows) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		if isNil(rows) {
			return
		}
		columns, err := rows.Columns()
		if err != nil {
			yield(nil, err)
			return
		}
		bind := newBinder[T](columns)

		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		for rows.Next() {
			if err := rows.Scan(dest...); err != nil {
				yield(nil, err)
				return
			}
			entity := new(T)
			if err := bind(entity, values); err != nil {
				yield(nil, err)
				return
			}
			if !yield(entity, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// newBinder resolves columns against T once, before the first row.
func newBinder[T any](columns []string) func(*T, []any) error {
	if fn, ok := binderOf[T](); ok {
		return func(entity *T, values []any) error {
			for i, column := range columns {
				if err := fn(entity, column, values[i]); err != nil {
					return err
				}
			}
			return nil
		}
	}

	idx := Index[T]()
	fields := make([]*Field, len(columns))
	for i, column := range columns {
		if f, ok := idx.Lookup(column); ok {
			fields[i] = f
		}
	}
	return func(entity *T, values []any) error {
		root := reflect.ValueOf(entity).Elem()
		for i, f := range fields {
			if f == nil {
				continue
			}
			dst, ok := fieldByIndex(root, f.Index)
			if !ok {
				continue
			}
			if err := assign(dst, values[i]); err != nil {
				return &TypeMismatchError{
					Column: columns[i],
					Field:  f.Name,
					Target: f.Type,
					Value:  values[i],
					Err:    err,
				}
			}
		}
		return nil
	}
}

func isNil(rows Rows) bool {
	if rows == nil {
		return true
	}
	v := reflect.ValueOf(rows)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
