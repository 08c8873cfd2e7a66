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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterCombinators(t *testing.T) {
	f := And(
		NewQueryFilter("age > ?", 18),
		nil,
		Or(NewQueryFilter("name = ?", "ann"), NewQueryFilter("name = ?", "bob")),
	)
	require.NotNil(t, f)
	assert.Equal(t, "(age > ?) AND ((name = ?) OR (name = ?))", f.Schema)
	assert.Equal(t, []interface{}{18, "ann", "bob"}, f.Args)

	assert.Nil(t, And(nil, NewQueryFilter("  ")))

	n := Not(NewQueryFilter("id = ?", 1))
	assert.Equal(t, "NOT (id = ?)", n.Schema)
	assert.Equal(t, "1 = 0", Not(nil).Schema)
}

func TestPageRequestDefaults(t *testing.T) {
	p := NewDefaultPageRequest(0, 0)
	assert.Equal(t, 1, p.GetPage())
	assert.Equal(t, 10, p.GetPageSize())
	assert.Equal(t, 0, p.GetOffset())

	p = NewDefaultPageRequest(3, 20)
	assert.Equal(t, 40, p.GetOffset())

	pg := NewDefaultPagination[struct{}](1, 10)
	assert.Equal(t, 0, pg.Pages())
	pg.Total = 21
	assert.Equal(t, 3, pg.Pages())
}

func TestJsonObjectScan(t *testing.T) {
	var obj JsonObject
	require.NoError(t, obj.Scan(`{"a":1}`))
	assert.Equal(t, float64(1), obj["a"])

	require.NoError(t, obj.Scan([]byte(`{"b":"x"}`)))
	assert.Equal(t, "x", obj["b"])

	require.NoError(t, obj.Scan(nil))
	assert.Nil(t, obj)

	assert.Error(t, obj.Scan(42))
}
