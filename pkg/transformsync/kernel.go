package transformsync

// EngineState is the per-direction, per-entity accumulator pair Compute
// advances. RemoteTime == 0 is the sentinel for "uninitialized, seed from
// the buffer's first entry" — real sender epochs are assumed never to
// land exactly on zero. There is no separate "initialized" flag; the
// zero value alone carries that meaning.
type EngineState struct {
	RemoteTime        float64
	InterpolationTime float64
}

// Reset returns the state to its just-constructed zero value.
func (s *EngineState) Reset() {
	s.RemoteTime = 0
	s.InterpolationTime = 0
}

// Compute advances the interpolation state machine by one tick and
// produces an interpolated (or, once the buffer runs dry, extrapolated)
// pose, or reports that there is nothing to output yet.
//
// bufferTime is the deliberate playback delay (send_interval × multiplier)
// that lets several snapshots accumulate before the receiver starts
// consuming them, trading latency for smoothness under loss. deltaTime is
// the elapsed simulation time since the previous call; zero or negative
// values are legal no-ops for time advancement (a negative value is
// treated as zero, so RemoteTime never rewinds), but still bootstrap on
// the first call with a non-empty buffer.
//
// Compute mutates buf only in the overshoot-retirement step, and retires
// at most one snapshot per call — if delta_time is large relative to the
// gap between buffered snapshots, Compute extrapolates past the second
// snapshot rather than skipping ahead to retire more than one. A caller
// that wants loop-retirement can call Compute repeatedly with a zero
// residual deltaTime, but that is not this function's default behavior.
func Compute(bufferTime, deltaTime float64, state *EngineState, buf *SnapshotBuffer) (Snapshot, bool) {
	if deltaTime < 0 {
		deltaTime = 0
	}

	// Step A — bootstrap.
	if state.RemoteTime == 0 {
		first, ok := buf.First()
		if !ok {
			return Snapshot{}, false
		}
		state.RemoteTime = first.Timestamp
	}

	// Step B — advance the local estimate of the remote clock.
	state.RemoteTime += deltaTime

	// Step C — warm-up: need at least two snapshots to interpolate between.
	if buf.Len() < 2 {
		return Snapshot{}, false
	}

	first := buf.At(0)
	second := buf.At(1)

	// Step D — readiness: don't start consuming until the second snapshot
	// has aged past the buffering window.
	if second.Timestamp > state.RemoteTime-bufferTime {
		return Snapshot{}, false
	}

	// Step E — advance interpolation time within the current pair.
	state.InterpolationTime += deltaTime
	delta := second.Timestamp - first.Timestamp

	// Step F — overshoot handling.
	if state.InterpolationTime >= delta {
		if buf.Len() >= 3 {
			state.InterpolationTime -= delta
			buf.RemoveOldest()
			first = buf.At(0)
			second = buf.At(1)
			delta = second.Timestamp - first.Timestamp
		}
		// Only two snapshots available: fall through and extrapolate
		// past `second` rather than retiring.
	}

	// Step G — interpolation parameter, possibly > 1 (extrapolation).
	t := InverseLerpUnclamped(first.Timestamp, second.Timestamp, first.Timestamp+state.InterpolationTime)

	// Step H.
	return Interpolate(first, second, t), true
}
