package models

import (
	"bytes"
	"encoding/json"
)

// Nullable distinguishes a field that was omitted from one explicitly set,
// possibly to null. Use with the `omitzero` JSON tag option. A value whose
// type reports IsZero (Date, Timestamp) decodes a zero result, such as "", as null.
type Nullable[T any] struct {
	Set   bool
	Valid bool
	V     T
}

// Some returns a Nullable holding v.
func Some[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Valid: true, V: v}
}

// Null returns a Nullable that clears the field.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

func (n Nullable[T]) IsZero() bool { return !n.Set }

// Ptr returns a pointer to a copy of the value, or nil when null or unset.
func (n Nullable[T]) Ptr() *T {
	if !n.Valid {
		return nil
	}
	v := n.V
	return &v
}

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.V)
}

func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		var zero T
		n.Valid, n.V = false, zero
		return nil
	}
	if err := json.Unmarshal(b, &n.V); err != nil {
		return err
	}
	if z, ok := any(n.V).(interface{ IsZero() bool }); ok && z.IsZero() {
		var zero T
		n.Valid, n.V = false, zero
		return nil
	}
	n.Valid = true
	return nil
}
