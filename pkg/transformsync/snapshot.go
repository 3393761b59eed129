package transformsync

// Snapshot ties a pose to a timestamp in the sender's clock domain. It is
// an immutable value type: callers never mutate a Snapshot in place, they
// produce a new one (via Interpolate or a fresh reading of local pose).
type Snapshot struct {
	// Timestamp is seconds in the sender's clock. Across admissions to a
	// SnapshotBuffer it is enforced to be strictly increasing.
	Timestamp float64
	Position  Vec3
	Rotation  Quat
	Scale     Vec3
}

// Interpolate blends two snapshots at parameter t. t is not clamped to
// [0,1]: values outside that range extrapolate, which is deliberate — the
// interpolation kernel uses this to keep producing motion once the buffer
// runs dry of newer snapshots (see Compute).
func Interpolate(from, to Snapshot, t float64) Snapshot {
	return Snapshot{
		Timestamp: LerpUnclamped(from.Timestamp, to.Timestamp, t),
		Position:  Vec3LerpUnclamped(from.Position, to.Position, t),
		Rotation:  SlerpUnclamped(from.Rotation, to.Rotation, t),
		Scale:     Vec3LerpUnclamped(from.Scale, to.Scale, t),
	}
}
