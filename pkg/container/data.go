// Package container holds View Container, the public handle a caller
// registers a view through, and the Task Container used for
// independent parameterized background work. Both wrap a carrier and
// a Data buffer behind a single non-blocking Tick.
package container

import "sort"

// Data holds a view's last-fetched rows plus a caller-visible
// "changed since last viewed" flag and an independently maintained
// sort order, so re-sorting never requires re-querying the database.
type Data[T any] struct {
	rows      []T
	sortLess  func(a, b T) bool
	sortedIdx []int
	dirty     bool
}

// NewData returns an empty Data buffer.
func NewData[T any]() *Data[T] {
	return &Data[T]{}
}

// Set replaces the buffered rows, marks the buffer dirty, and
// recomputes the sort order against the new rows.
func (d *Data[T]) Set(rows []T) {
	d.rows = rows
	d.dirty = true
	d.recomputeSort()
}

// SortBy installs less as the buffer's ordering and immediately
// recomputes the sort permutation against the current rows.
func (d *Data[T]) SortBy(less func(a, b T) bool) {
	d.sortLess = less
	d.recomputeSort()
}

func (d *Data[T]) recomputeSort() {
	idx := make([]int, len(d.rows))
	for i := range idx {
		idx[i] = i
	}
	if d.sortLess != nil {
		less := d.sortLess
		rows := d.rows
		sort.SliceStable(idx, func(i, j int) bool { return less(rows[idx[i]], rows[idx[j]]) })
	}
	d.sortedIdx = idx
}

// Rows returns the buffered rows in their original query order.
func (d *Data[T]) Rows() []T {
	out := make([]T, len(d.rows))
	copy(out, d.rows)
	return out
}

// Sorted returns the buffered rows in the order installed by SortBy,
// or query order if no comparator has been set.
func (d *Data[T]) Sorted() []T {
	out := make([]T, len(d.sortedIdx))
	for i, idx := range d.sortedIdx {
		out[i] = d.rows[idx]
	}
	return out
}

// HasChanged reports whether the buffer has been Set since the last
// SetViewed call.
func (d *Data[T]) HasChanged() bool {
	return d.dirty
}

// SetViewed clears the dirty flag.
func (d *Data[T]) SetViewed() {
	d.dirty = false
}
