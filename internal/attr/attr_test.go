package attr

import (
	"reflect"
	"testing"
)

func TestSetPreservesInsertionOrder(t *testing.T) {
	s := NewSet()
	Put(s, Key[string]("b"), "2")
	Put(s, Key[string]("a"), "1")
	Put(s, Key[string]("c"), "3")

	want := []string{"b", "a", "c"}
	if got := s.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestSetPutOverwriteKeepsOriginalPosition(t *testing.T) {
	s := NewSet()
	Put(s, Key[int]("x"), 1)
	Put(s, Key[string]("y"), "first")
	Put(s, Key[int]("x"), 2)

	want := []string{"x", "y"}
	if got := s.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() after overwrite = %v, want %v", got, want)
	}

	v, ok := Get(s, Key[int]("x"))
	if !ok || v != 2 {
		t.Errorf("Get(x) = %v, %v, want 2, true", v, ok)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := NewSet()
	v, ok := Get(s, Key[string]("absent"))
	if ok || v != "" {
		t.Errorf("Get(absent) = %q, %v, want \"\", false", v, ok)
	}
}

func TestMergePreservesOtherOrderAndSkipsExisting(t *testing.T) {
	s := NewSet()
	Put(s, Key[string]("a"), "1")

	other := NewSet()
	Put(other, Key[string]("a"), "overwritten")
	Put(other, Key[string]("b"), "2")
	Put(other, Key[string]("c"), "3")

	s.Merge(other)

	want := []string{"a", "b", "c"}
	if got := s.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() after merge = %v, want %v", got, want)
	}
	v, _ := Get(s, Key[string]("a"))
	if v != "overwritten" {
		t.Errorf("Get(a) after merge = %q, want %q (values still apply even though key already existed)", v, "overwritten")
	}
}

func TestMergeNilIsNoop(t *testing.T) {
	s := NewSet()
	Put(s, Key[string]("a"), "1")
	s.Merge(nil)
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestGetWrongTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on type mismatch")
		}
	}()
	m := map[string]any{"k": 42}
	Key[string]("k").Get(m)
}
