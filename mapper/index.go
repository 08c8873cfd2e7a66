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
	"reflect"
	"sort"
	"strings"
	"sync"
)

var indexCache sync.Map // reflect.Type -> *FieldIndex

// Field is one settable struct field reachable from the entity type.
type Field struct {
	Name  string
	Index []int
	Type  reflect.Type
}

// FieldIndex maps upper-cased field names (and bun column aliases) to fields.
type FieldIndex struct {
	typ    reflect.Type
	fields map[string]*Field
}

// Index returns the cached field index of T, building it on first use.
func Index[T any]() *FieldIndex {
	return indexOf(reflect.TypeOf((*T)(nil)).Elem())
}

// IndexOf returns the cached field index of the struct type t, or of the
// struct t points to.
func IndexOf(t reflect.Type) *FieldIndex {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return indexOf(t)
}

func indexOf(t reflect.Type) *FieldIndex {
	if v, ok := indexCache.Load(t); ok {
		return v.(*FieldIndex)
	}
	idx := buildIndex(t)
	actual, _ := indexCache.LoadOrStore(t, idx)
	return actual.(*FieldIndex)
}

func buildIndex(t reflect.Type) *FieldIndex {
	idx := &FieldIndex{typ: t, fields: map[string]*Field{}}
	if t.Kind() != reflect.Struct {
		return idx
	}
	aliases := map[string]*Field{}
	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		tag := sf.Tag.Get("bun")
		if tag == "-" || strings.Contains(tag, "rel:") || strings.Contains(tag, "m2m:") {
			continue
		}
		f := &Field{Name: sf.Name, Index: sf.Index, Type: sf.Type}
		idx.fields[strings.ToUpper(sf.Name)] = f

		aliases[strings.ToUpper(ColumnName(sf))] = f
	}
	for key, f := range aliases {
		if _, taken := idx.fields[key]; !taken {
			idx.fields[key] = f
		}
	}
	return idx
}

// Lookup finds the field for a column name, ignoring case.
func (idx *FieldIndex) Lookup(column string) (*Field, bool) {
	f, ok := idx.fields[strings.ToUpper(column)]
	return f, ok
}

// Fields returns the distinct field names in the index, sorted.
func (idx *FieldIndex) Fields() []string {
	seen := map[string]struct{}{}
	names := make([]string, 0, len(idx.fields))
	for _, f := range idx.fields {
		if _, ok := seen[f.Name]; ok {
			continue
		}
		seen[f.Name] = struct{}{}
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

// ColumnName returns the column bun maps the struct field to: the name part
// of its bun tag, or the snake_case form of the field name.
func ColumnName(sf reflect.StructField) string {
	if name := strings.TrimSpace(strings.Split(sf.Tag.Get("bun"), ",")[0]); name != "" {
		return name
	}
	return underscore(sf.Name)
}

// underscore converts a Go field name into bun's default column name,
// e.g. "ConfigKey" -> "config_key", "ID" -> "id".
func underscore(s string) string {
	r := make([]byte, 0, len(s)+5)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUpper(c) {
			if i > 0 && i+1 < len(s) && (isLower(s[i-1]) || isLower(s[i+1])) {
				r = append(r, '_', c+32)
			} else {
				r = append(r, c+32)
			}
			continue
		}
		r = append(r, c)
	}
	return string(r)
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
