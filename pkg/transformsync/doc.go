// Package transformsync reconstructs smooth, monotonic entity motion from
// periodic, jittery, possibly-reordered pose snapshots sent by a remote
// peer — without a synchronized wall clock between sender and receiver.
//
// # Core Concepts
//
// A remote peer publishes timestamped poses (position, rotation, scale) in
// its own clock domain. The receiver buffers them in a SnapshotBuffer,
// which enforces a strict admission policy: a late-arriving snapshot can
// never land between the two snapshots currently being interpolated (the
// "ACB hazard" — see InsertIfNewEnough).
//
// Each simulation tick, Compute advances a local estimate of the remote
// clock and, once enough snapshots have accumulated to absorb jitter,
// produces an interpolated (or, once the buffer runs dry, extrapolated)
// pose by calling Interpolate on the two oldest buffered snapshots.
//
// Driver wires this into a per-entity client/server relationship: it picks
// the authority direction (client-authoritative or server-authoritative),
// drives Compute once per tick on the appropriate buffer, and rate-limits
// outbound snapshots of the locally-owned pose via Scheduler.
//
// # Usage
//
//	d := transformsync.NewDriver(entity, transformsync.Config{
//	    Authority:            transformsync.ClientAuthoritative,
//	    SendInterval:         0.05,
//	    BufferTimeMultiplier: 2,
//	    Channel:              transformsync.ChannelUnreliable,
//	}, isServer, isClient, isHost, dispatcher)
//
//	// each simulation tick:
//	if snap, ok := d.OnTick(localTime, deltaTime, currentLocalPose); ok {
//	    applyToLocalSpace(snap)
//	}
//
//	// on message receipt, once the transport has attributed a remote time:
//	d.OnReceived(remoteTimestamp, fromServer, packet)
//
// # Non-goals
//
// This package does not attempt lossless reconstruction, clock
// synchronization between peers, physics-aware prediction, delta
// compression, or teleport detection. It trades perfect fidelity for a
// buffer that never rewinds and never skips further back than one
// retirement per tick — see the doc comment on Compute for the
// consequences of that trade-off.
package transformsync
