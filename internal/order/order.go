// Package order provides the pure reordering primitives for position-indexed
// sequences: in-place reorder within one list, moving an element between two
// lists, and renumbering positions back to a contiguous 0..n-1 run.
//
// All functions are side-effect free: inputs are never mutated and results
// are freshly allocated. Callers must pass the full, position-sorted
// partition (every card in a column, every column in a board); reordering a
// filtered view would corrupt the positions of the elements left out.
package order

import "slices"

// Positioned is implemented by records carrying a position field.
// WithPosition returns a copy with the position replaced, leaving the
// receiver untouched.
type Positioned[T any] interface {
	WithPosition(int) T
}

// Reorder removes the element at from and reinserts it at to, returning a
// new sequence. Indexes are slots in the sequence, not record ids. An index
// outside the sequence returns an unchanged copy: drop events come from the
// UI boundary and a malformed one degrades to a no-op rather than a panic.
func Reorder[T any](seq []T, from, to int) []T {
	out := slices.Clone(seq)
	if from < 0 || from >= len(out) || to < 0 || to >= len(out) {
		return out
	}
	if from == to {
		return out
	}
	item := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, item)
}

// Move removes the element at from in src and inserts it at to in dst,
// returning both new sequences. to may equal len(dst) to append. Move only
// handles sequence membership: the moved element's parent-reference field
// (such as a card's column id) is the caller's job to rewrite afterwards.
// Out-of-range indexes return unchanged copies of both inputs.
func Move[T any](src, dst []T, from, to int) (newSrc, newDst []T) {
	newSrc = slices.Clone(src)
	newDst = slices.Clone(dst)
	if from < 0 || from >= len(newSrc) || to < 0 || to > len(newDst) {
		return newSrc, newDst
	}
	item := newSrc[from]
	newSrc = slices.Delete(newSrc, from, from+1)
	newDst = slices.Insert(newDst, to, item)
	return newSrc, newDst
}

// Renumber returns a new sequence where each element's position is
// overwritten with its index, restoring the contiguous-from-zero invariant
// after a reorder or move.
func Renumber[T Positioned[T]](seq []T) []T {
	out := make([]T, len(seq))
	for i, item := range seq {
		out[i] = item.WithPosition(i)
	}
	return out
}
