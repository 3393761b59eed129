package transformsync

import (
	"time"

	"golang.org/x/time/rate"
)

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// SnapshotPacket is the wire payload of an outbound pose update: a
// Snapshot without its own timestamp field, since the timestamp travels
// alongside the packet as transport metadata (see the RemoteTimeSource
// contract in package network).
type SnapshotPacket struct {
	Position Vec3
	Rotation Quat
	Scale    Vec3
}

func packetFrom(s Snapshot) SnapshotPacket {
	return SnapshotPacket{Position: s.Position, Rotation: s.Rotation, Scale: s.Scale}
}

// Scheduler decides when a locally-owned pose should be sent. The
// authoritative gate is the simple last_send+send_interval check in
// MaybeSend; Limiter is layered on top as defense-in-depth against a
// caller accidentally driving OnTick faster than the configured rate
// (e.g. a runaway simulation loop), not as the primary pacing mechanism.
type Scheduler struct {
	sendInterval float64
	limiter      *rate.Limiter
}

// NewScheduler builds a Scheduler for the given send interval, in
// seconds. A burst of 1 matches the gate it backs up: at most one send
// is ever "due" at a time.
func NewScheduler(sendInterval float64) *Scheduler {
	var limit rate.Limit
	if sendInterval > 0 {
		limit = rate.Every(durationFromSeconds(sendInterval))
	} else {
		limit = rate.Inf
	}
	return &Scheduler{
		sendInterval: sendInterval,
		limiter:      rate.NewLimiter(limit, 1),
	}
}

// MaybeSend reports whether a pose captured at localTime is due to be
// sent, given the last successful send time. Its only side effect is
// taking a token from the scheduler's rate limiter once the interval
// gate passes, so its result also depends on that limiter's state;
// callers are responsible for updating their own last-send bookkeeping
// when it returns true.
func (s *Scheduler) MaybeSend(localTime, lastSend float64, pose Snapshot) (SnapshotPacket, bool) {
	if localTime-lastSend < s.sendInterval {
		return SnapshotPacket{}, false
	}
	if !s.limiter.Allow() {
		return SnapshotPacket{}, false
	}
	return packetFrom(pose), true
}
