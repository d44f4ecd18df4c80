// Package attr provides a generic, typed attribute-key wrapper over the
// plain map[string]any bags attached to events and timelines, in the same
// style as a typed environment-variable accessor: a Key[T] knows its own
// name and value type, and Get panics loudly if a producer ever stores the
// wrong type under a key a consumer expects — that is a programming bug in
// this process, not a data-quality condition to recover from.
package attr

import "fmt"

// Key is a named, typed accessor into an attribute set.
type Key[T any] string

// Set stores v under k in m, creating m's entry.
func (k Key[T]) Set(m map[string]any, v T) {
	m[string(k)] = v
}

// Get returns the value stored under k, or the zero value and false if
// absent. It panics if a value is present under a different concrete type.
func (k Key[T]) Get(m map[string]any) (T, bool) {
	var zero T
	v, ok := m[string(k)]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("attr: key %q has type %T, want %T", string(k), v, zero))
	}
	return t, true
}

// MustGet returns the value stored under k, panicking if it is absent.
func (k Key[T]) MustGet(m map[string]any) T {
	v, ok := k.Get(m)
	if !ok {
		panic(fmt.Sprintf("attr: key %q not present", string(k)))
	}
	return v
}

func (k Key[T]) String() string { return string(k) }

// Set is an ordered attribute bag. Insertion order is preserved in Keys so
// that serialized output (the jsonl ingest sink, in particular) is stable
// and readable.
type Set struct {
	m    map[string]any
	keys []string
}

func NewSet() *Set {
	return &Set{m: make(map[string]any)}
}

func (s *Set) raw() map[string]any {
	if s.m == nil {
		s.m = make(map[string]any)
	}
	return s.m
}

// Put assigns k=v, recording insertion order the first time k appears.
func Put[T any](s *Set, k Key[T], v T) {
	m := s.raw()
	if _, exists := m[string(k)]; !exists {
		s.keys = append(s.keys, string(k))
	}
	k.Set(m, v)
}

func Get[T any](s *Set, k Key[T]) (T, bool) {
	return k.Get(s.raw())
}

// Merge copies every key of other into s: keys not already present are
// appended in other's relative order, and keys already present keep their
// position but take other's value.
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}
	m := s.raw()
	for _, k := range other.keys {
		if _, exists := m[k]; !exists {
			s.keys = append(s.keys, k)
		}
		m[k] = other.m[k]
	}
}

// Keys returns the attribute names in insertion order.
func (s *Set) Keys() []string {
	return s.keys
}

// Map returns the underlying map. Callers must not mutate the returned map's
// structure (adding/removing keys) outside of Put; value updates are fine.
func (s *Set) Map() map[string]any {
	return s.raw()
}

// Len reports the number of attributes currently stored.
func (s *Set) Len() int {
	return len(s.keys)
}
