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

import "github.com/tomoncle/anvil/types"

// EntityState is the persistence state of a tracked entity.
type EntityState int

const (
	Detached EntityState = iota
	Unchanged
	Deleted
	Modified
	Added
)

var _ types.BaseEnum = Detached

var stateNames = map[EntityState][2]string{
	Detached:  {"Detached", "not tracked by the context"},
	Unchanged: {"Unchanged", "tracked, matches the database"},
	Deleted:   {"Deleted", "tracked, will be deleted on save"},
	Modified:  {"Modified", "tracked, will be updated on save"},
	Added:     {"Added", "tracked, will be inserted on save"},
}

func (s EntityState) IsValid() bool {
	_, ok := stateNames[s]
	return ok
}

func (s EntityState) Number() int {
	if !s.IsValid() {
		return types.IllegalValue
	}
	return int(s)
}

func (s EntityState) Name() string {
	if !s.IsValid() {
		return types.IllegalName
	}
	return stateNames[s][0]
}

func (s EntityState) Desc() string {
	if !s.IsValid() {
		return types.IllegalDesc
	}
	return stateNames[s][1]
}

func (s EntityState) String() string { return s.Name() }

// Pending reports whether the state will produce a write on save.
func (s EntityState) Pending() bool {
	return s == Added || s == Modified || s == Deleted
}

// DetachTransition is the state table used to drop pending changes without
// touching the database: updates and deletes are undone in place, inserts are
// forgotten.
func DetachTransition(s EntityState) EntityState {
	switch s {
	case Deleted, Modified:
		return Unchanged
	case Added:
		return Detached
	default:
		return s
	}
}
