// Package rangeset maintains a set of disjoint half-open [start, end)
// intervals over uint32 addresses. It backs the stack/heap/segment
// allocation carving done by pkg/loader.
package rangeset

import "errors"

// The following errors may be returned by RangeSet operations.
var (
	// ErrOutOfBounds indicates that the requested range does not lie
	// entirely within a single interval currently in the set.
	ErrOutOfBounds = errors.New("rangeset: range not contained in a single interval")

	// ErrNoFit indicates that no interval in the set is large enough
	// to satisfy a first-fit removal request.
	ErrNoFit = errors.New("rangeset: no interval large enough")

	// ErrNotImplemented is returned by Insert, which the original Rust
	// implementation ("rangeset/src/lib.rs") never finished:
	// every allocation this emulator performs is one-shot and never
	// released, so merge-on-insert is not required for the core.
	ErrNotImplemented = errors.New("rangeset: insert is not implemented")
)

type interval struct {
	start, end uint32
}

// RangeSet is a set of disjoint half-open intervals, kept in
// insertion/splitting order. A plain slice suffices at this scale; a
// tree structure is unnecessary (see spec design note on first-fit
// allocators).
type RangeSet struct {
	ranges []interval
}

// New returns a RangeSet containing the single interval [start, end).
func New(start, end uint32) *RangeSet {
	return &RangeSet{ranges: []interval{{start, end}}}
}

// Remove removes [start, end) from the set. It fails with ErrOutOfBounds
// unless a single existing interval [a, b) satisfies a <= start < b and
// end <= b. On success [a, b) is replaced by [a, start) union [end, b),
// either side being dropped if empty.
func (rs *RangeSet) Remove(start, end uint32) error {
	for i := range rs.ranges {
		r := rs.ranges[i]
		if !(start >= r.start && start < r.end && end <= r.end) {
			continue
		}
		switch {
		case start == r.start && end == r.end:
			rs.ranges = append(rs.ranges[:i], rs.ranges[i+1:]...)
		case start == r.start:
			rs.ranges[i].start = end
		case end == r.end:
			rs.ranges[i].end = start
		default:
			r1 := interval{r.start, start}
			r2 := interval{end, r.end}
			rs.ranges[i] = r1
			rest := append([]interval{r2}, rs.ranges[i+1:]...)
			rs.ranges = append(rs.ranges[:i+1], rest...)
		}
		return nil
	}
	return ErrOutOfBounds
}

// RemoveFirstFit scans intervals in storage order, picks the first whose
// length is at least size, removes [start, start+size) from it, and
// returns that pair. It fails with ErrNoFit if no interval qualifies.
func (rs *RangeSet) RemoveFirstFit(size uint32) (start, end uint32, err error) {
	for _, r := range rs.ranges {
		if size > r.end-r.start {
			continue
		}
		if err := rs.Remove(r.start, r.start+size); err != nil {
			return 0, 0, err
		}
		return r.start, r.start + size, nil
	}
	return 0, 0, ErrNoFit
}

// Insert would merge [start, end) into the set. It is part of the
// documented API surface (mirroring the original implementation) but is
// not required by anything in this emulator, since every range carved
// out of memory here is permanent.
func (rs *RangeSet) Insert(start, end uint32) error {
	return ErrNotImplemented
}
