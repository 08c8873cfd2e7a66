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
	"database/sql"
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/spf13/cast"
)

// ErrTypeMismatch is matched by every *TypeMismatchError.
var ErrTypeMismatch = errors.New("mapper: type mismatch")

// TypeMismatchError reports a column value that cannot be stored in its field.
type TypeMismatchError struct {
	Column string
	Field  string
	Target reflect.Type
	Value  any
	Err    error
}

func (e *TypeMismatchError) Error() string {
	msg := fmt.Sprintf("mapper: column %q: cannot assign %T(%v) to field %s of type %s", e.Column, e.Value, e.Value, e.Field, e.Target)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

func (e *TypeMismatchError) Unwrap() error { return e.Err }

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
)

// assign stores a driver value into dst. A nil value is the column's null
// marker.
func assign(dst reflect.Value, value any) error {
	if dst.CanAddr() && dst.Addr().Type().Implements(scannerType) {
		return dst.Addr().Interface().(sql.Scanner).Scan(value)
	}

	if value == nil {
		switch dst.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		return errors.New("null value for non-nullable field")
	}

	if dst.Kind() == reflect.Ptr {
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), value); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	src := reflect.ValueOf(value)
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}

	if b, ok := value.([]byte); ok {
		if dst.Kind() == reflect.Slice && dst.Type().Elem().Kind() == reflect.Uint8 {
			dst.SetBytes(append([]byte(nil), b...))
			return nil
		}
		// Text protocols (mysql) deliver every scalar as bytes.
		value = string(b)
	}

	if err := checkLossless(dst.Kind(), reflect.ValueOf(value)); err != nil {
		return err
	}

	switch dst.Kind() {
	case reflect.String:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected text, got %T", value)
		}
		dst.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := cast.ToInt64E(value)
		if err != nil {
			return err
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := cast.ToUint64E(value)
		if err != nil {
			return err
		}
		if dst.OverflowUint(n) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return err
		}
		if dst.OverflowFloat(f) {
			return fmt.Errorf("value %g overflows %s", f, dst.Type())
		}
		dst.SetFloat(f)
	case reflect.Bool:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return err
		}
		dst.SetBool(b)
	case reflect.Struct:
		if dst.Type() != timeType {
			return fmt.Errorf("unsupported struct type %s", dst.Type())
		}
		tm, err := cast.ToTimeE(value)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(tm))
	default:
		return fmt.Errorf("unsupported field kind %s", dst.Kind())
	}
	return nil
}

// checkLossless rejects the numeric conversions cast would make silently:
// fractional floats into integers, bools into numbers, and anything but an
// integral 0 or 1 into a bool. Drivers without a boolean type (sqlite,
// mysql TINYINT) report bools as 0 and 1.
func checkLossless(dst reflect.Kind, src reflect.Value) error {
	switch {
	case isInteger(dst):
		switch {
		case src.Kind() == reflect.Bool:
			return fmt.Errorf("cannot store bool in %s", dst)
		case isFloat(src.Kind()):
			if f := src.Float(); f != math.Trunc(f) || math.IsInf(f, 0) {
				return fmt.Errorf("value %g is not integral", f)
			}
		}
	case isFloat(dst):
		if src.Kind() == reflect.Bool {
			return fmt.Errorf("cannot store bool in %s", dst)
		}
	case dst == reflect.Bool:
		switch k := src.Kind(); {
		case isFloat(k):
			return fmt.Errorf("cannot store %s in bool", k)
		case k >= reflect.Int && k <= reflect.Int64:
			if n := src.Int(); n != 0 && n != 1 {
				return fmt.Errorf("value %d is not a bool", n)
			}
		case k >= reflect.Uint && k <= reflect.Uint64:
			if n := src.Uint(); n > 1 {
				return fmt.Errorf("value %d is not a bool", n)
			}
		}
	}
	return nil
}

func isInteger(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Int64) || (k >= reflect.Uint && k <= reflect.Uint64)
}

func isFloat(k reflect.Kind) bool { return k == reflect.Float32 || k == reflect.Float64 }

// fieldByIndex walks an index path, allocating nil embedded pointers on the
// way. ok is false when the field cannot be set.
func fieldByIndex(v reflect.Value, index []int) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Ptr {
			if v.IsNil() {
				if !v.CanSet() {
					return reflect.Value{}, false
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, v.CanSet()
}
