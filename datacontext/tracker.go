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
	"slices"
	"sync"

	"github.com/samber/lo"
)

// ChangeTracker holds the entities a DataContext knows about, in the order
// they were first tracked. It is not safe for concurrent use; callers
// serialise access to the DataContext that owns it.
type ChangeTracker struct {
	mu       sync.Mutex
	entries  []*Entry
	byEntity map[any]*Entry
}

func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{byEntity: make(map[any]*Entry)}
}

// Track returns the entry for entity, creating it in state when the entity
// is not tracked yet. entity must be a non-nil pointer to a struct.
func (t *ChangeTracker) Track(entity any, state EntityState) (*Entry, error) {
	v := reflect.ValueOf(entity)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, fmt.Errorf("%w: %T is not a non-nil struct pointer", ErrInvalidEntity, entity)
	}
	meta, err := metaOf(v.Elem().Type())
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.byEntity[entity]; ok {
		return e, nil
	}
	e := &Entry{tracker: t, entity: entity, meta: meta, state: state}
	if state == Unchanged {
		e.snapshot()
	}
	if state != Detached {
		t.entries = append(t.entries, e)
		t.byEntity[entity] = e
	}
	return e, nil
}

// Entry returns the tracked entry of entity.
func (t *ChangeTracker) Entry(entity any) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byEntity[entity]
	return e, ok
}

// Entries returns a snapshot of the tracked entries in tracking order.
// Changing entry states while ranging over it is safe.
func (t *ChangeTracker) Entries() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.entries)
}

// DetectChanges promotes Unchanged entries whose values differ from their
// baseline to Modified.
func (t *ChangeTracker) DetectChanges() {
	for _, e := range t.Entries() {
		if e.state == Unchanged && e.IsModified() {
			e.state = Modified
		}
	}
}

// HasChanges runs DetectChanges and reports whether any write is pending.
func (t *ChangeTracker) HasChanges() bool {
	t.DetectChanges()
	return lo.SomeBy(t.Entries(), func(e *Entry) bool { return e.state.Pending() })
}

// Apply moves every tracked entry through transition.
func (t *ChangeTracker) Apply(transition func(EntityState) EntityState) {
	for _, e := range t.Entries() {
		if next := transition(e.state); next != e.state {
			e.SetState(next)
		} else if next == Unchanged {
			e.snapshot()
		}
	}
}

// Clear stops tracking every entity.
func (t *ChangeTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		e.state = Detached
	}
	t.entries = nil
	t.byEntity = make(map[any]*Entry)
}

// lookup finds a tracked entity of type typ by key.
func (t *ChangeTracker) lookup(typ reflect.Type, keys []any) (*Entry, bool) {
	return lo.Find(t.Entries(), func(e *Entry) bool {
		return e.meta.typ == typ && keysEqual(e.Keys(), keys)
	})
}

func (t *ChangeTracker) pending() []*Entry {
	entries := lo.Filter(t.Entries(), func(e *Entry, _ int) bool { return e.state.Pending() })
	order := map[EntityState]int{Added: 0, Modified: 1, Deleted: 2}
	slices.SortStableFunc(entries, func(a, b *Entry) int { return order[a.state] - order[b.state] })
	return entries
}

func (t *ChangeTracker) attach(e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byEntity[e.entity]; ok {
		return
	}
	t.entries = append(t.entries, e)
	t.byEntity[e.entity] = e
}

func (t *ChangeTracker) remove(e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byEntity[e.entity]; !ok {
		return
	}
	delete(t.byEntity, e.entity)
	t.entries = slices.DeleteFunc(t.entries, func(x *Entry) bool { return x == e })
}
