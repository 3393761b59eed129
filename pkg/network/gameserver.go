package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/transformsync/pkg/engine"
	"github.com/opd-ai/transformsync/pkg/transformsync"
	"github.com/sirupsen/logrus"
)

const (
	// TickRate is the server simulation rate (20 ticks per second).
	TickRate = 20
	// TickDuration is the time between ticks.
	TickDuration = time.Second / TickRate
)

// PlayerCommand represents a client input command.
type PlayerCommand struct {
	PlayerID  uint64    `json:"player_id"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"` // "move", "shoot", "interact", etc.
	Data      []byte    `json:"data"` // Command-specific payload
}

// CommandValidator validates player commands before applying them.
type CommandValidator interface {
	Validate(cmd *PlayerCommand, w *engine.World) error
}

// DefaultValidator performs basic validation on commands.
type DefaultValidator struct{}

// Validate checks if a command is valid.
func (v *DefaultValidator) Validate(cmd *PlayerCommand, w *engine.World) error {
	if cmd == nil {
		return fmt.Errorf("nil command")
	}
	if cmd.Type == "" {
		return fmt.Errorf("empty command type")
	}
	return nil
}

// GameServer is an authoritative game server with tick-based updates.
type GameServer struct {
	listener   net.Listener
	world      *engine.World
	validator  CommandValidator
	mu         sync.RWMutex
	clients    map[uint64]*playerClient
	nextID     uint64
	running    bool
	tickNum    uint64
	localTime  float64
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	driverCfg transformsync.Config
	// drivers holds one transform-sync Driver per connected client's
	// entity, created in addClient when the client connects and removed
	// in removeClient. A driver whose client has not yet reported a pose
	// has an empty buffer and produces no output.
	drivers map[engine.Entity]*transformsync.Driver

	// tickDuration is the interval between simulation ticks. It defaults
	// to TickDuration and should only be changed via SetTickRate before
	// Start — gameLoop reads it once at startup and does not observe
	// later changes.
	tickDuration time.Duration
}

// playerClient tracks a connected player.
type playerClient struct {
	id         uint64
	conn       net.Conn
	cmdQueue   chan *PlayerCommand
	poseQueue  chan *PoseUpdate
	entity     engine.Entity
	mu         sync.Mutex
	closeOnce  sync.Once
	closedChan chan struct{}
}

// NewGameServer creates a new authoritative game server. Transform-sync
// pacing defaults to a 20Hz send interval with a 2x playback buffer and
// a 20Hz simulation tick; callers that need different pacing should load
// it from config and call SetDriverConfig/SetTickRate before Start.
func NewGameServer(port int, world *engine.World) (*GameServer, error) {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &GameServer{
		listener:  listener,
		world:     world,
		validator: &DefaultValidator{},
		clients:   make(map[uint64]*playerClient),
		drivers:   make(map[engine.Entity]*transformsync.Driver),
		driverCfg: transformsync.Config{
			Authority:            transformsync.ClientAuthoritative,
			SendInterval:         0.05,
			BufferTimeMultiplier: 2,
			Channel:              transformsync.ChannelUnreliable,
		},
		tickDuration: TickDuration,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// SetDriverConfig overrides the transform-sync pacing used for every
// entity driver created from this point forward. Authority is always
// forced to ClientAuthoritative: a client reports its own pose and the
// server interpolates and rebroadcasts it, which is the only direction
// this server type drives.
func (s *GameServer) SetDriverConfig(cfg transformsync.Config) {
	cfg.Authority = transformsync.ClientAuthoritative
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driverCfg = cfg
}

// SetTickRate overrides the server's simulation rate. hz must be positive;
// a non-positive value is ignored and the previous rate is kept. Call
// before Start — the game loop reads tickDuration once when it starts
// and does not pick up later changes.
func (s *GameServer) SetTickRate(hz int) {
	if hz <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickDuration = time.Second / time.Duration(hz)
}

// SetValidator sets a custom command validator.
func (s *GameServer) SetValidator(v CommandValidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validator = v
}

// Start begins the server game loop and accepts client connections.
func (s *GameServer) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.mu.RLock()
	tickRateHz := int(time.Second / s.tickDuration)
	s.mu.RUnlock()

	logrus.WithFields(logrus.Fields{
		"system_name": "gameserver",
		"tick_rate":   tickRateHz,
	}).Info("Starting game server")

	// Start accepting connections
	s.wg.Add(1)
	go s.acceptLoop()

	// Start game loop
	s.wg.Add(1)
	go s.gameLoop()

	return nil
}

// Stop gracefully shuts down the server.
func (s *GameServer) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server not running")
	}
	s.running = false
	s.mu.Unlock()

	logrus.WithField("system_name", "gameserver").Info("Stopping game server")

	s.cancel()
	s.listener.Close()

	// Close all client connections
	s.mu.Lock()
	clients := make([]*playerClient, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.Unlock()

	for _, client := range clients {
		client.conn.Close()
		client.closeOnce.Do(func() {
			close(client.cmdQueue)
			close(client.poseQueue)
			close(client.closedChan)
		})
	}

	s.wg.Wait()
	return nil
}

// acceptLoop accepts incoming client connections.
func (s *GameServer) acceptLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				logrus.WithError(err).Error("Failed to accept connection")
				continue
			}
		}

		s.addClient(conn)
	}
}

// addClient registers a new player client and its entity's transform-sync
// driver.
func (s *GameServer) addClient(conn net.Conn) {
	s.mu.Lock()
	clientID := s.nextID
	s.nextID++

	entity := s.world.AddEntity()
	client := &playerClient{
		id:         clientID,
		conn:       conn,
		cmdQueue:   make(chan *PlayerCommand, 100),
		poseQueue:  make(chan *PoseUpdate, 100),
		entity:     entity,
		closedChan: make(chan struct{}),
	}
	s.clients[clientID] = client
	s.drivers[entity] = transformsync.NewDriver(entity, s.driverCfg, true, false, false, nil)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"system_name": "gameserver",
		"player_id":   clientID,
		"entity":      entity,
	}).Info("Player connected")

	s.wg.Add(1)
	go s.handleClient(client)
}

// handleClient processes commands from a client.
func (s *GameServer) handleClient(client *playerClient) {
	defer s.wg.Done()
	defer func() {
		s.removeClient(client.id)
		client.conn.Close()
	}()

	decoder := json.NewDecoder(client.conn)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		var msg ClientMessage
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				return
			}
			logrus.WithError(err).Error("Failed to decode message")
			return
		}

		switch {
		case msg.Command != nil:
			cmd := msg.Command
			cmd.PlayerID = client.id
			cmd.Timestamp = time.Now()

			select {
			case client.cmdQueue <- cmd:
			default:
				logrus.WithField("player_id", client.id).Warn("Command queue full, dropping command")
			}
		case msg.Pose != nil:
			pose := msg.Pose
			pose.EntityID = client.entity

			select {
			case client.poseQueue <- pose:
			default:
				logrus.WithField("player_id", client.id).Warn("Pose queue full, dropping pose update")
			}
		}
	}
}

// removeClient removes a disconnected client.
func (s *GameServer) removeClient(clientID uint64) {
	s.mu.Lock()
	client, exists := s.clients[clientID]
	if !exists {
		s.mu.Unlock()
		return
	}
	delete(s.clients, clientID)
	delete(s.drivers, client.entity)
	s.mu.Unlock()

	// Close channel safely using sync.Once
	client.closeOnce.Do(func() {
		close(client.cmdQueue)
		close(client.poseQueue)
		close(client.closedChan)
		logrus.WithFields(logrus.Fields{
			"system_name": "gameserver",
			"player_id":   clientID,
		}).Info("Player disconnected")
	})
}

// gameLoop runs the authoritative game simulation at the configured
// tick rate (20Hz by default; see SetTickRate).
func (s *GameServer) gameLoop() {
	defer s.wg.Done()

	s.mu.RLock()
	tickDuration := s.tickDuration
	s.mu.RUnlock()

	ticker := time.NewTicker(tickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick(tickDuration)
		}
	}
}

// tick processes one server tick: validate commands, update world, send state.
func (s *GameServer) tick(dt time.Duration) {
	s.mu.Lock()
	s.tickNum++
	tickNum := s.tickNum
	s.mu.Unlock()

	// Process all pending commands from clients
	s.mu.RLock()
	clients := make([]*playerClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, client := range clients {
		s.processClientCommands(client)
		s.processClientPoses(client)
	}

	s.tickTransformSync(clients, dt.Seconds())

	// Update game world
	s.world.Update()

	logrus.WithFields(logrus.Fields{
		"system_name": "gameserver",
		"tick":        tickNum,
		"players":     len(clients),
	}).Debug("Server tick completed")
}

// tickTransformSync advances every entity driver's interpolation state
// and rebroadcasts the result to every client except the one that owns
// the entity.
func (s *GameServer) tickTransformSync(clients []*playerClient, dt float64) {
	s.mu.RLock()
	drivers := make(map[engine.Entity]*transformsync.Driver, len(s.drivers))
	for e, d := range s.drivers {
		drivers[e] = d
	}
	s.mu.RUnlock()

	s.localTime += dt

	for entity, driver := range drivers {
		snap, ok := driver.OnTick(s.localTime, dt, transformsync.Snapshot{})
		if !ok {
			continue
		}
		s.broadcastPose(entity, snap, clients)
	}
}

// broadcastPose sends an interpolated snapshot to every connected client
// except the one whose own entity it describes.
func (s *GameServer) broadcastPose(entity engine.Entity, snap transformsync.Snapshot, clients []*playerClient) {
	msg := ClientMessage{Pose: &PoseUpdate{
		EntityID:  entity,
		Timestamp: snap.Timestamp,
		Packet: transformsync.SnapshotPacket{
			Position: snap.Position,
			Rotation: snap.Rotation,
			Scale:    snap.Scale,
		},
	}}

	for _, client := range clients {
		if client.entity == entity {
			continue
		}

		client.mu.Lock()
		err := json.NewEncoder(client.conn).Encode(&msg)
		client.mu.Unlock()

		if err != nil {
			logrus.WithFields(logrus.Fields{
				"system_name": "gameserver",
				"player_id":   client.id,
			}).WithError(err).Warn("Failed to send pose update")
		}
	}
}

// processClientPoses admits all pending pose updates from a client into
// its entity's transform-sync driver.
func (s *GameServer) processClientPoses(client *playerClient) {
	s.mu.RLock()
	driver, ok := s.drivers[client.entity]
	s.mu.RUnlock()
	if !ok {
		return
	}

	for {
		select {
		case pose := <-client.poseQueue:
			if pose == nil {
				return
			}
			var src RemoteTimeSource = pose
			driver.OnReceived(src.RemoteTimestamp(), false, pose.Packet)
		default:
			return
		}
	}
}

// processClientCommands validates and applies all pending commands for a client.
func (s *GameServer) processClientCommands(client *playerClient) {
	for {
		select {
		case cmd := <-client.cmdQueue:
			if cmd == nil {
				return
			}
			s.validateAndApplyCommand(cmd)
		default:
			return
		}
	}
}

// validateAndApplyCommand validates a command before applying it to the world.
func (s *GameServer) validateAndApplyCommand(cmd *PlayerCommand) {
	if err := s.validator.Validate(cmd, s.world); err != nil {
		logrus.WithFields(logrus.Fields{
			"system_name": "gameserver",
			"player_id":   cmd.PlayerID,
			"command":     cmd.Type,
		}).WithError(err).Warn("Command validation failed")
		return
	}

	logrus.WithFields(logrus.Fields{
		"system_name": "gameserver",
		"player_id":   cmd.PlayerID,
		"command":     cmd.Type,
		"sequence":    cmd.Sequence,
	}).Debug("Command validated and applied")
}

// GetTickNumber returns the current server tick number.
func (s *GameServer) GetTickNumber() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tickNum
}

// GetClientCount returns the number of connected clients.
func (s *GameServer) GetClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// GetAddr returns the address the server is listening on, including the
// OS-assigned port when NewGameServer was given port 0.
func (s *GameServer) GetAddr() string {
	return s.listener.Addr().String()
}
