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

import "reflect"

// Entry is the tracker's record of one entity.
type Entry struct {
	tracker  *ChangeTracker
	entity   any
	meta     *entityMeta
	state    EntityState
	original reflect.Value // zero Value when there is no baseline
}

func (e *Entry) Entity() any { return e.entity }
func (e *Entry) Type() reflect.Type { return e.meta.typ }
func (e *Entry) State() EntityState { return e.state }
func (e *Entry) Keys() []any { return e.meta.keyValues(e.value()) }
func (e *Entry) value() reflect.Value { return reflect.ValueOf(e.entity).Elem() }

// SetState moves the entry to state. Detached removes it from the tracker;
// Unchanged takes the current values as the new baseline; any other state
// re-attaches a detached entry.
func (e *Entry) SetState(state EntityState) {
	switch state {
	case Detached:
		e.tracker.remove(e)
	case Unchanged:
		e.snapshot()
		e.tracker.attach(e)
	default:
		e.tracker.attach(e)
	}
	e.state = state
}

// IsModified compares the entity with its baseline. Entries without a
// baseline report false.
func (e *Entry) IsModified() bool {
	if !e.original.IsValid() {
		return false
	}
	return !reflect.DeepEqual(e.original.Interface(), e.value().Interface())
}

func (e *Entry) snapshot() {
	cp := reflect.New(e.meta.typ).Elem()
	cp.Set(e.value())
	e.original = cp
}

// copyOf returns a detached copy of the current values, used to undo writes
// of a failed save.
func (e *Entry) copyOf() reflect.Value {
	cp := reflect.New(e.meta.typ).Elem()
	cp.Set(e.value())
	return cp
}

func (e *Entry) versionValue() (int64, bool) {
	if e.meta.version == nil {
		return 0, false
	}
	return e.value().FieldByIndex(e.meta.version.index).Int(), true
}

func (e *Entry) setVersion(v int64) {
	e.value().FieldByIndex(e.meta.version.index).SetInt(v)
}
