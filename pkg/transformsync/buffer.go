package transformsync

import "sort"

// SnapshotBuffer is an ordered-by-timestamp container of Snapshots with a
// strict admission policy. It is not safe for concurrent use; callers on
// an I/O thread must hand inbound snapshots off to the simulation thread
// before calling InsertIfNewEnough (see package doc).
type SnapshotBuffer struct {
	entries []Snapshot
}

// NewSnapshotBuffer returns an empty buffer.
func NewSnapshotBuffer() *SnapshotBuffer {
	return &SnapshotBuffer{}
}

// Len returns the number of buffered snapshots.
func (b *SnapshotBuffer) Len() int {
	return len(b.entries)
}

// First returns the oldest snapshot, if any.
func (b *SnapshotBuffer) First() (Snapshot, bool) {
	if len(b.entries) == 0 {
		return Snapshot{}, false
	}
	return b.entries[0], true
}

// Second returns the second-oldest snapshot, if any.
func (b *SnapshotBuffer) Second() (Snapshot, bool) {
	if len(b.entries) < 2 {
		return Snapshot{}, false
	}
	return b.entries[1], true
}

// At returns the snapshot at index i in timestamp order. It panics if i is
// out of range, matching the corpus convention that buffer-invariant
// violations are programming errors, not recoverable conditions (see
// RemoveOldest and the kernel's Compute, which only ever index within Len()).
func (b *SnapshotBuffer) At(i int) Snapshot {
	return b.entries[i]
}

// RemoveOldest retires the oldest snapshot. Compute calls this at most
// once per tick, on overshoot, when a third snapshot is available to
// interpolate toward next.
func (b *SnapshotBuffer) RemoveOldest() {
	if len(b.entries) == 0 {
		return
	}
	b.entries = b.entries[1:]
}

// Clear empties the buffer. Used by Driver.Reset.
func (b *SnapshotBuffer) Clear() {
	b.entries = nil
}

// InsertIfNewEnough admits a snapshot per the buffer's strict ordering
// policy:
//
//  1. empty buffer: always admit.
//  2. one buffered entry: admit only if candidate.Timestamp is strictly
//     greater than it.
//  3. two or more buffered entries: admit only if candidate.Timestamp is
//     strictly greater than the second-oldest entry's timestamp. This is
//     what prevents the ACB hazard — a late snapshot landing between the
//     two snapshots already under active interpolation, which would make
//     motion suddenly steer backward.
//
// Admission is idempotent on duplicates: a candidate whose timestamp
// matches any already-buffered timestamp is rejected, even if it would
// otherwise pass the rules above.
//
// Returns whether the candidate was admitted.
func (b *SnapshotBuffer) InsertIfNewEnough(s Snapshot) bool {
	n := len(b.entries)

	switch {
	case n == 0:
		b.entries = append(b.entries, s)
		return true
	case n == 1:
		if s.Timestamp <= b.entries[0].Timestamp {
			return false
		}
	default:
		if s.Timestamp <= b.entries[1].Timestamp {
			return false
		}
	}

	idx := sort.Search(n, func(i int) bool { return b.entries[i].Timestamp >= s.Timestamp })
	if idx < n && b.entries[idx].Timestamp == s.Timestamp {
		return false
	}

	b.entries = append(b.entries, Snapshot{})
	copy(b.entries[idx+1:], b.entries[idx:])
	b.entries[idx] = s
	return true
}
