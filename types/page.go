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

package types

import "strings"

// QueryFilter is a predicate over entity columns: a bun WHERE fragment using
// "?" placeholders plus its argument values.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// IsEmpty reports whether the filter matches everything.
func (f *QueryFilter) IsEmpty() bool {
	return f == nil || strings.TrimSpace(f.Schema) == ""
}

// And joins filters with AND. Empty filters are skipped.
func And(filters ...*QueryFilter) *QueryFilter {
	return join(" AND ", filters)
}

// Or joins filters with OR. Empty filters are skipped.
func Or(filters ...*QueryFilter) *QueryFilter {
	return join(" OR ", filters)
}

// Not negates the filter. Negating an empty filter yields a filter that
// matches nothing.
func Not(filter *QueryFilter) *QueryFilter {
	if filter.IsEmpty() {
		return NewQueryFilter("1 = 0")
	}
	return &QueryFilter{Schema: "NOT (" + filter.Schema + ")", Args: filter.Args}
}

func join(op string, filters []*QueryFilter) *QueryFilter {
	parts := make([]string, 0, len(filters))
	var args []interface{}
	for _, f := range filters {
		if f.IsEmpty() {
			continue
		}
		parts = append(parts, "("+f.Schema+")")
		args = append(args, f.Args...)
	}
	if len(parts) == 0 {
		return nil
	}
	return &QueryFilter{Schema: strings.Join(parts, op), Args: args}
}

// PageRequest describes pagination, optional filter, and ordering.
type PageRequest struct {
	page     int
	pageSize int
	filter   *QueryFilter
	orders   []string // "id ASC", "name DESC"
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = 10
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		p.page = 1
	}
	return p.page
}

func (p *PageRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

func (p *PageRequest) GetFilter() *QueryFilter {
	return p.filter
}

func (p *PageRequest) GetOrders() []string {
	return p.orders
}

// NewPageRequest constructs a PageRequest with filter and order settings.
func NewPageRequest(page int, pageSize int, filter *QueryFilter, orders []string) *PageRequest {
	return &PageRequest{page, pageSize, filter, orders}
}

// NewDefaultPageRequest constructs a PageRequest with no filter or ordering.
func NewDefaultPageRequest(page int, pageSize int) *PageRequest {
	return NewPageRequest(page, pageSize, nil, make([]string, 0))
}

// Pagination holds paged result items along with pagination metadata.
type Pagination[T any] struct {
	Page     int
	PageSize int
	Total    int
	Items    []*T
}

// Pages returns the number of pages needed for Total items.
func (p *Pagination[T]) Pages() int {
	if p.PageSize < 1 || p.Total == 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

// NewDefaultPagination constructs an empty pagination container.
func NewDefaultPagination[T any](page int, pageSize int) *Pagination[T] {
	return &Pagination[T]{page, pageSize, 0, make([]*T, 0)}
}
