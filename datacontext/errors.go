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
	"errors"
	"fmt"
)

var (
	ErrConcurrencyConflict        = errors.New("datacontext: concurrency conflict")
	ErrInvalidEntity              = errors.New("datacontext: invalid entity")
	ErrKeyMismatch                = errors.New("datacontext: key count does not match primary key")
	ErrStoredProcedureUnsupported = errors.New("datacontext: dialect has no stored procedures")
	ErrClosed                     = errors.New("datacontext: closed")
)

// ConcurrencyError is returned by SaveChanges when an update or delete
// matched no row: the row was changed or removed since it was read.
type ConcurrencyError struct {
	Entry *Entry
}

func (e *ConcurrencyError) Error() string {
	if e.Entry == nil {
		return ErrConcurrencyConflict.Error()
	}
	return fmt.Sprintf("%s: %s %v was modified or deleted by another writer",
		ErrConcurrencyConflict, e.Entry.Type().Name(), e.Entry.Keys())
}

func (e *ConcurrencyError) Is(target error) bool { return target == ErrConcurrencyConflict }

// AsConcurrencyError unwraps err into a *ConcurrencyError.
func AsConcurrencyError(err error) (*ConcurrencyError, bool) {
	var conflict *ConcurrencyError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}
