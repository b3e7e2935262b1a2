// ============================================================================
// TheSquid Ordered Set Container
// ============================================================================
//
// Package: pkg/gset
// Purpose: Minimal ordered collection used by the dispatch engine for its
//          worker, pending-task and running-task sets
//
// The engine only needs push-front, append, pop-front, iterate-with-remove
// and in-place shuffle. No random-access indexing, no sorting.
//
// Not safe for concurrent use; the engine is single-threaded by design.
//
// ============================================================================

// Package gset provides a small generic ordered collection
package gset

import "math/rand"

// Set is an ordered collection of elements
type Set[T any] struct {
	elems []T
}

// New creates an empty set
func New[T any]() *Set[T] {
	return &Set[T]{elems: make([]T, 0)}
}

// Len returns the number of elements
func (s *Set[T]) Len() int {
	return len(s.elems)
}

// Push inserts an element at the front
func (s *Set[T]) Push(v T) {
	s.elems = append([]T{v}, s.elems...)
}

// Append inserts an element at the back
func (s *Set[T]) Append(v T) {
	s.elems = append(s.elems, v)
}

// AppendAll inserts all elements of another set at the back, in order
func (s *Set[T]) AppendAll(other *Set[T]) {
	s.elems = append(s.elems, other.elems...)
}

// Pop removes and returns the front element. The boolean is false when the
// set is empty.
func (s *Set[T]) Pop() (T, bool) {
	var zero T
	if len(s.elems) == 0 {
		return zero, false
	}
	v := s.elems[0]
	s.elems = s.elems[1:]
	return v, true
}

// Shuffle randomizes the element order in place
func (s *Set[T]) Shuffle() {
	rand.Shuffle(len(s.elems), func(i, j int) {
		s.elems[i], s.elems[j] = s.elems[j], s.elems[i]
	})
}

// Iterator walks the set front to back and supports removal of the current
// element without invalidating the walk.
type Iterator[T any] struct {
	set *Set[T]
	idx int
}

// Iter returns an iterator positioned before the first element
func (s *Set[T]) Iter() *Iterator[T] {
	return &Iterator[T]{set: s, idx: -1}
}

// Next advances the iterator. Returns false past the last element.
func (it *Iterator[T]) Next() bool {
	it.idx++
	return it.idx < len(it.set.elems)
}

// Value returns the current element
func (it *Iterator[T]) Value() T {
	return it.set.elems[it.idx]
}

// Remove deletes the current element. The next call to Next moves to the
// element that followed it.
func (it *Iterator[T]) Remove() {
	s := it.set
	s.elems = append(s.elems[:it.idx], s.elems[it.idx+1:]...)
	it.idx--
}
