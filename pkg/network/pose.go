package network

import (
	"github.com/opd-ai/transformsync/pkg/engine"
	"github.com/opd-ai/transformsync/pkg/transformsync"
)

// PoseUpdate carries one transform-sync snapshot for a single entity,
// tagged with the sender's clock timestamp.
type PoseUpdate struct {
	EntityID  engine.Entity                `json:"entity_id"`
	Timestamp float64                      `json:"timestamp"`
	Packet    transformsync.SnapshotPacket `json:"packet"`
}

// RemoteTimeSource models the transport's per-message remote-time
// attribution contract that transformsync's Driver.OnReceived depends on
// (spec'd as remote_timestamp_for(current_message) -> f64): whatever is
// decoding an inbound message must be able to report the sender's clock
// reading for it. PoseUpdate satisfies this directly rather than through
// a separate batch-timestamp lookup, since this transport has no message
// batching of its own.
type RemoteTimeSource interface {
	RemoteTimestamp() float64
}

// RemoteTimestamp implements RemoteTimeSource.
func (p *PoseUpdate) RemoteTimestamp() float64 {
	return p.Timestamp
}

// ClientMessage is the envelope decoded off a client connection. Exactly
// one of Command or Pose is populated per message; a client that both
// issues inputs and owns an entity's transform sends two separate
// messages rather than combining them, keeping each message independently
// decodable and small.
type ClientMessage struct {
	Command *PlayerCommand `json:"command,omitempty"`
	Pose    *PoseUpdate    `json:"pose,omitempty"`
}
