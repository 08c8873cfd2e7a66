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
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/tomoncle/anvil/mapper"
)

var metaCache sync.Map // reflect.Type -> *entityMeta

type metaField struct {
	name   string
	column string
	index  []int
}

// entityMeta is what the tracker needs to know about a model type: its
// primary key columns and optional concurrency token.
type entityMeta struct {
	typ     reflect.Type
	keys    []metaField
	version *metaField
}

func metaOf(t reflect.Type) (*entityMeta, error) {
	if v, ok := metaCache.Load(t); ok {
		return v.(*entityMeta), nil
	}
	m, err := buildMeta(t)
	if err != nil {
		return nil, err
	}
	actual, _ := metaCache.LoadOrStore(t, m)
	return actual.(*entityMeta), nil
}

func buildMeta(t reflect.Type) (*entityMeta, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidEntity, t)
	}
	m := &entityMeta{typ: t}
	var fallback *metaField
	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		tag := sf.Tag.Get("bun")
		if tag == "-" {
			continue
		}
		f := metaField{name: sf.Name, column: mapper.ColumnName(sf), index: sf.Index}
		for _, opt := range strings.Split(tag, ",")[1:] {
			if strings.TrimSpace(opt) == "pk" {
				m.keys = append(m.keys, f)
			}
		}
		if strings.TrimSpace(sf.Tag.Get("anvil")) == "version" {
			switch sf.Type.Kind() {
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				v := f
				m.version = &v
			default:
				return nil, fmt.Errorf("%w: version field %s.%s must be an integer", ErrInvalidEntity, t, sf.Name)
			}
		}
		if fallback == nil && strings.EqualFold(sf.Name, "id") {
			v := f
			fallback = &v
		}
	}
	if len(m.keys) == 0 {
		if fallback == nil {
			return nil, fmt.Errorf("%w: %s has no primary key", ErrInvalidEntity, t)
		}
		m.keys = []metaField{*fallback}
	}
	return m, nil
}

func (m *entityMeta) keyValues(v reflect.Value) []any {
	keys := make([]any, len(m.keys))
	for i, k := range m.keys {
		keys[i] = v.FieldByIndex(k.index).Interface()
	}
	return keys
}

func keysEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if fmt.Sprint(a[i]) != fmt.Sprint(b[i]) {
			return false
		}
	}
	return true
}
