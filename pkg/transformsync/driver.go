package transformsync

import "github.com/opd-ai/transformsync/pkg/engine"

// Authority selects which side of a connection owns the ground-truth
// pose for an entity. It is modeled as a value, not as separate driver
// types, because a single process (a listen-server host) can be both a
// client and a server for different entities at once and the direction
// is the only thing that differs.
type Authority uint8

const (
	// ClientAuthoritative means the owning client simulates the entity
	// and the server interpolates what the client reports.
	ClientAuthoritative Authority = iota
	// ServerAuthoritative means the server simulates the entity and every
	// client, including the owner, interpolates what the server reports.
	ServerAuthoritative
)

// Channel names the delivery guarantee a packet should travel over.
// transformsync never opens a connection itself; Dispatcher implementations
// map Channel onto whatever the transport provides.
type Channel uint8

const (
	// ChannelUnreliable is the default for pose updates: a dropped packet
	// is superseded by the next tick's send, so retransmission only adds
	// latency.
	ChannelUnreliable Channel = iota
	// ChannelReliable is for callers that need guaranteed delivery, e.g.
	// a one-shot teleport snapshot that must not be smoothed away.
	ChannelReliable
)

// Dispatcher is the transport boundary: the Driver calls into it to
// deliver an outbound SnapshotPacket and never touches a socket, file
// descriptor, or connection directly. Implementations live in the
// network layer.
type Dispatcher interface {
	SendToClients(entity engine.Entity, ch Channel, ts float64, packet SnapshotPacket)
	SendToServer(entity engine.Entity, ch Channel, ts float64, packet SnapshotPacket)
}

// Config parameterizes one Driver instance.
type Config struct {
	Authority Authority
	// SendInterval is the minimum number of seconds between outbound
	// sends of the locally-owned pose.
	SendInterval float64
	// BufferTimeMultiplier sets the playback delay as a multiple of
	// SendInterval: BufferTime = SendInterval * BufferTimeMultiplier.
	BufferTimeMultiplier uint32
	Channel              Channel
}

func (c Config) bufferTime() float64 {
	return c.SendInterval * float64(c.BufferTimeMultiplier)
}

// Driver owns the full transform-sync state for one entity: independent
// buffer/EngineState pairs for each receive direction, plus the send-side
// bookkeeping for the direction this process is authoritative over.
//
// A process that is both the authoritative server for an entity and
// itself a client connected to its own server (a listen-server host)
// must not feed its own server broadcasts back into its client-receive
// buffer — see the isHost guard in OnReceived.
type Driver struct {
	entity engine.Entity
	cfg    Config

	isServer bool
	isClient bool
	// isHost marks a process that is simultaneously the authoritative
	// server and a receiving client, e.g. a listen server's own player.
	// It exists only to gate OnReceived's loopback check.
	isHost bool

	// serverBuf/serverState hold what this process, acting as a client,
	// has received from the server.
	serverBuf   *SnapshotBuffer
	serverState EngineState

	// clientBuf/clientState hold what this process, acting as the
	// server, has received from an owning client.
	clientBuf   *SnapshotBuffer
	clientState EngineState

	lastSend   float64
	dispatcher Dispatcher
	scheduler  *Scheduler
}

// NewDriver builds a Driver for entity under cfg. isServer and isClient
// describe which roles this process plays for this entity; isHost should
// be true only when both are true and the client role is this process's
// own loopback connection to its own server.
func NewDriver(entity engine.Entity, cfg Config, isServer, isClient, isHost bool, dispatcher Dispatcher) *Driver {
	return &Driver{
		entity:      entity,
		cfg:         cfg,
		isServer:    isServer,
		isClient:    isClient,
		isHost:      isHost,
		serverBuf:   NewSnapshotBuffer(),
		clientBuf:   NewSnapshotBuffer(),
		dispatcher:  dispatcher,
		scheduler:   NewScheduler(cfg.SendInterval),
		lastSend:    -1, // guarantees the first OnTick send is always due
	}
}

// OnTick advances interpolation for whichever direction(s) this process
// receives on, and dispatches an outbound send of localPose when this
// process is authoritative and the scheduler says it's due.
//
// localTime is this process's own clock, used only for send pacing; it
// plays no part in the receive-side state machine, which is advanced by
// deltaTime and runs entirely on remote timestamps.
func (d *Driver) OnTick(localTime, deltaTime float64, localPose Snapshot) (Snapshot, bool) {
	var out Snapshot
	var ok bool

	switch {
	case d.cfg.Authority == ServerAuthoritative && d.isClient:
		out, ok = Compute(d.cfg.bufferTime(), deltaTime, &d.serverState, d.serverBuf)
	case d.cfg.Authority == ClientAuthoritative && d.isServer:
		out, ok = Compute(d.cfg.bufferTime(), deltaTime, &d.clientState, d.clientBuf)
	}

	d.maybeSend(localTime, localPose)

	return out, ok
}

func (d *Driver) maybeSend(localTime float64, localPose Snapshot) {
	owns := (d.cfg.Authority == ClientAuthoritative && d.isClient && !d.isServer) ||
		(d.cfg.Authority == ServerAuthoritative && d.isServer)
	if !owns || d.dispatcher == nil {
		return
	}

	packet, due := d.scheduler.MaybeSend(localTime, d.lastSend, localPose)
	if !due {
		return
	}
	d.lastSend = localTime

	if d.cfg.Authority == ClientAuthoritative {
		d.dispatcher.SendToServer(d.entity, d.cfg.Channel, localPose.Timestamp, packet)
	} else {
		d.dispatcher.SendToClients(d.entity, d.cfg.Channel, localPose.Timestamp, packet)
	}
}

// OnReceived admits an inbound packet into the appropriate buffer.
// fromServer distinguishes a server-originated broadcast from a
// client-originated report; a host process ignores its own
// server-originated receipts rather than feeding them back into its
// client-receive buffer as if they came from a remote peer.
func (d *Driver) OnReceived(ts float64, fromServer bool, packet SnapshotPacket) {
	if d.isHost && fromServer {
		return
	}

	snap := Snapshot{Timestamp: ts, Position: packet.Position, Rotation: packet.Rotation, Scale: packet.Scale}

	if fromServer {
		d.serverBuf.InsertIfNewEnough(snap)
	} else {
		d.clientBuf.InsertIfNewEnough(snap)
	}
}

// Reset clears both receive directions' buffers and accumulator state,
// for use when an entity is re-possessed or a connection is
// re-established and stale buffered history would otherwise cause a
// jump cut.
func (d *Driver) Reset() {
	d.serverBuf.Clear()
	d.serverState.Reset()
	d.clientBuf.Clear()
	d.clientState.Reset()
}
