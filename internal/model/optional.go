package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Optional holds a value that may be unknown. The zero value is None.
// Provider results use it for every card field so that "not determined"
// never collapses into an empty string or 0.0.
type Optional[T any] struct {
	value T
	valid bool
}

// Some wraps a known value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, valid: true}
}

// None returns an unknown value.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is known.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.valid
}

// IsSome reports whether the value is known.
func (o Optional[T]) IsSome() bool {
	return o.valid
}

// OrElse returns the value, or fallback when unknown.
func (o Optional[T]) OrElse(fallback T) T {
	if !o.valid {
		return fallback
	}
	return o.value
}

// String renders the value, or "unknown".
func (o Optional[T]) String() string {
	if !o.valid {
		return "unknown"
	}
	return fmt.Sprint(o.value)
}

// MarshalJSON encodes None as null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON decodes null as None.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = None[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// SomeString returns None for blank strings. Providers frequently send ""
// when they mean "not visible".
func SomeString(s string) Optional[string] {
	if len(bytes.TrimSpace([]byte(s))) == 0 {
		return None[string]()
	}
	return Some(s)
}

// FromPtr converts a nullable pointer into an Optional.
func FromPtr[T any](p *T) Optional[T] {
	if p == nil {
		return None[T]()
	}
	return Some(*p)
}

// Ptr converts an Optional into a nullable pointer.
func (o Optional[T]) Ptr() *T {
	if !o.valid {
		return nil
	}
	v := o.value
	return &v
}
