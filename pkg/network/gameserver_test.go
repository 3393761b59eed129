package network

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/opd-ai/transformsync/pkg/engine"
	"github.com/opd-ai/transformsync/pkg/transformsync"
)

// mockValidator is a test validator that can be configured to fail.
type mockValidator struct {
	shouldFail bool
	failMsg    string
}

func (v *mockValidator) Validate(cmd *PlayerCommand, w *engine.World) error {
	if v.shouldFail {
		return fmt.Errorf("%s", v.failMsg)
	}
	return nil
}

func TestGameServer_NewGameServer(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{
			name:    "valid port",
			port:    18000,
			wantErr: false,
		},
		{
			name:    "zero port auto-assign",
			port:    0,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			world := engine.NewWorld()
			server, err := NewGameServer(tt.port, world)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewGameServer() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if server != nil {
				defer server.listener.Close()
				if server.world != world {
					t.Errorf("world mismatch")
				}
				if server.validator == nil {
					t.Errorf("validator should not be nil")
				}
				if server.clients == nil {
					t.Errorf("clients map should not be nil")
				}
				if server.drivers == nil {
					t.Errorf("drivers map should not be nil")
				}
			}
		})
	}
}

func TestGameServer_SetDriverConfig_ForcesClientAuthoritative(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(0, world)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	defer server.listener.Close()

	server.SetDriverConfig(transformsync.Config{
		Authority:            transformsync.ServerAuthoritative,
		SendInterval:         0.1,
		BufferTimeMultiplier: 3,
	})

	if server.driverCfg.Authority != transformsync.ClientAuthoritative {
		t.Errorf("driverCfg.Authority = %v, want ClientAuthoritative", server.driverCfg.Authority)
	}
	if server.driverCfg.SendInterval != 0.1 {
		t.Errorf("driverCfg.SendInterval = %v, want 0.1", server.driverCfg.SendInterval)
	}
}

func TestGameServer_StartStop(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(18001, world)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	defer server.listener.Close()

	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if !server.running {
		t.Error("server should be running")
	}

	if err := server.Start(); err == nil {
		t.Error("expected error when starting already running server")
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}

	if server.running {
		t.Error("server should not be running")
	}

	if err := server.Stop(); err == nil {
		t.Error("expected error when stopping already stopped server")
	}
}

func TestGameServer_TickRate(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(18002, world)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	defer server.listener.Close()
	defer server.Stop()

	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	tickNum := server.GetTickNumber()
	if tickNum < 2 || tickNum > 5 {
		t.Errorf("tick count out of range: got %d, expected 2-5", tickNum)
	}
}

func TestGameServer_ClientConnection(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(18003, world)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	defer server.listener.Close()
	defer server.Stop()

	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	conn, err := net.DialTimeout("tcp", "localhost:18003", 2*time.Second)
	if err != nil {
		t.Fatalf("failed to connect client: %v", err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)

	count := server.GetClientCount()
	if count != 1 {
		t.Errorf("expected 1 client, got %d", count)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond)

	count = server.GetClientCount()
	if count != 0 {
		t.Errorf("expected 0 clients after disconnect, got %d", count)
	}
}

func TestGameServer_ClientConnection_RegistersDriver(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(18014, world)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	defer server.listener.Close()
	defer server.Stop()

	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	conn, err := net.DialTimeout("tcp", "localhost:18014", 2*time.Second)
	if err != nil {
		t.Fatalf("failed to connect client: %v", err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)

	server.mu.RLock()
	numDrivers := len(server.drivers)
	server.mu.RUnlock()

	if numDrivers != 1 {
		t.Errorf("expected 1 driver registered, got %d", numDrivers)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond)

	server.mu.RLock()
	numDrivers = len(server.drivers)
	server.mu.RUnlock()

	if numDrivers != 0 {
		t.Errorf("expected driver to be removed on disconnect, got %d", numDrivers)
	}
}

func TestGameServer_MultipleClients(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(18004, world)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	defer server.listener.Close()
	defer server.Stop()

	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	numClients := 5
	conns := make([]net.Conn, numClients)
	for i := 0; i < numClients; i++ {
		conn, err := net.DialTimeout("tcp", "localhost:18004", 2*time.Second)
		if err != nil {
			t.Fatalf("failed to connect client %d: %v", i, err)
		}
		conns[i] = conn
		defer conn.Close()
	}

	time.Sleep(100 * time.Millisecond)

	count := server.GetClientCount()
	if count != numClients {
		t.Errorf("expected %d clients, got %d", numClients, count)
	}
}

func TestGameServer_CommandValidation(t *testing.T) {
	tests := []struct {
		name      string
		validator *mockValidator
		command   *PlayerCommand
		wantValid bool
	}{
		{
			name:      "valid command",
			validator: &mockValidator{shouldFail: false},
			command: &PlayerCommand{
				PlayerID: 1,
				Sequence: 1,
				Type:     "move",
				Data:     []byte(`{"x":1,"y":2}`),
			},
			wantValid: true,
		},
		{
			name:      "invalid command",
			validator: &mockValidator{shouldFail: true, failMsg: "test failure"},
			command: &PlayerCommand{
				PlayerID: 1,
				Sequence: 2,
				Type:     "shoot",
				Data:     []byte(`{}`),
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			world := engine.NewWorld()
			server, err := NewGameServer(0, world)
			if err != nil {
				t.Fatalf("failed to create server: %v", err)
			}
			defer server.listener.Close()

			server.SetValidator(tt.validator)

			err = server.validator.Validate(tt.command, world)
			if tt.wantValid && err != nil {
				t.Errorf("expected valid command, got error: %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Errorf("expected invalid command, got no error")
			}
		})
	}
}

func TestGameServer_CommandProcessing(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(18005, world)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	defer server.listener.Close()
	defer server.Stop()

	server.SetValidator(&mockValidator{shouldFail: false})

	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	conn, err := net.DialTimeout("tcp", "localhost:18005", 2*time.Second)
	if err != nil {
		t.Fatalf("failed to connect client: %v", err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)

	encoder := json.NewEncoder(conn)
	commands := []PlayerCommand{
		{Sequence: 1, Type: "move", Data: []byte(`{"x":1}`)},
		{Sequence: 2, Type: "shoot", Data: []byte(`{}`)},
		{Sequence: 3, Type: "jump", Data: []byte(`{}`)},
	}

	for _, cmd := range commands {
		msg := ClientMessage{Command: &cmd}
		if err := encoder.Encode(&msg); err != nil {
			t.Fatalf("failed to send command: %v", err)
		}
	}

	time.Sleep(100 * time.Millisecond)
}

func TestGameServer_PoseProcessing(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(18015, world)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	defer server.listener.Close()
	defer server.Stop()

	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	conn, err := net.DialTimeout("tcp", "localhost:18015", 2*time.Second)
	if err != nil {
		t.Fatalf("failed to connect client: %v", err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)

	encoder := json.NewEncoder(conn)
	for i := 0; i < 3; i++ {
		msg := ClientMessage{Pose: &PoseUpdate{
			Timestamp: float64(i) * 0.1,
			Packet:    transformsync.SnapshotPacket{Position: transformsync.Vec3{X: float64(i)}},
		}}
		if err := encoder.Encode(&msg); err != nil {
			t.Fatalf("failed to send pose: %v", err)
		}
	}

	// Give the handler time to enqueue, and a couple of ticks for
	// processClientPoses to drain the queue into the entity's driver.
	time.Sleep(150 * time.Millisecond)

	server.mu.RLock()
	var driver *transformsync.Driver
	for _, d := range server.drivers {
		driver = d
	}
	server.mu.RUnlock()

	if driver == nil {
		t.Fatal("expected a driver to have been registered")
	}
}

func TestDefaultValidator(t *testing.T) {
	tests := []struct {
		name    string
		cmd     *PlayerCommand
		wantErr bool
	}{
		{
			name: "valid command",
			cmd: &PlayerCommand{
				PlayerID: 1,
				Type:     "move",
			},
			wantErr: false,
		},
		{
			name:    "nil command",
			cmd:     nil,
			wantErr: true,
		},
		{
			name: "empty command type",
			cmd: &PlayerCommand{
				PlayerID: 1,
				Type:     "",
			},
			wantErr: true,
		},
	}

	validator := &DefaultValidator{}
	world := engine.NewWorld()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(tt.cmd, world)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGameServer_GracefulShutdown(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(18006, world)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	defer server.listener.Close()

	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	conns := make([]net.Conn, 3)
	for i := 0; i < 3; i++ {
		conn, err := net.DialTimeout("tcp", "localhost:18006", 2*time.Second)
		if err != nil {
			t.Fatalf("failed to connect client %d: %v", i, err)
		}
		conns[i] = conn
		defer conn.Close()
	}

	time.Sleep(50 * time.Millisecond)

	if err := server.Stop(); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}

	for i, conn := range conns {
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		buf := make([]byte, 1)
		_, err := conn.Read(buf)
		if err == nil {
			t.Errorf("client %d should be disconnected", i)
		}
	}
}

func TestGameServer_ContextCancellation(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(18007, world)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	defer server.listener.Close()

	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	server.cancel()

	done := make(chan struct{})
	go func() {
		server.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down after context cancellation")
	}
}

func TestGameServer_CommandQueueOverflow(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(18008, world)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	defer server.listener.Close()
	defer server.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.ctx = ctx

	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	conn, err := net.DialTimeout("tcp", "localhost:18008", 2*time.Second)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)

	encoder := json.NewEncoder(conn)
	for i := 0; i < 150; i++ {
		cmd := PlayerCommand{
			Sequence: uint64(i),
			Type:     "spam",
			Data:     []byte(`{}`),
		}
		msg := ClientMessage{Command: &cmd}
		encoder.Encode(&msg)
	}

	// Server should handle overflow gracefully (drop commands).
	time.Sleep(100 * time.Millisecond)
}

// TestGameServer_ValidateAndApplyCommand tests command validation and application.
func TestGameServer_ValidateAndApplyCommand(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(0, world)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	defer server.listener.Close()

	tests := []struct {
		name      string
		cmd       *PlayerCommand
		validator CommandValidator
	}{
		{
			name: "valid command",
			cmd: &PlayerCommand{
				PlayerID:  1,
				Sequence:  1,
				Type:      "move",
				Timestamp: time.Now(),
				Data:      []byte(`{}`),
			},
			validator: &mockValidator{shouldFail: false},
		},
		{
			name: "invalid command",
			cmd: &PlayerCommand{
				PlayerID:  1,
				Sequence:  3,
				Type:      "invalid",
				Timestamp: time.Now(),
				Data:      []byte(`{}`),
			},
			validator: &mockValidator{shouldFail: true, failMsg: "invalid type"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server.SetValidator(tt.validator)
			server.validateAndApplyCommand(tt.cmd)
		})
	}
}

// TestGameServer_RemoveClient tests client removal.
func TestGameServer_RemoveClient(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(18010, world)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	defer server.listener.Close()
	defer server.Stop()

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	conn, err := net.DialTimeout("tcp", "localhost:18010", 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	time.Sleep(150 * time.Millisecond)

	server.mu.RLock()
	var clientID uint64
	for id := range server.clients {
		clientID = id
		break
	}
	server.mu.RUnlock()

	server.mu.RLock()
	client, ok := server.clients[clientID]
	server.mu.RUnlock()
	if !ok {
		t.Skip("Client not connected in time")
		return
	}
	entity := client.entity

	server.removeClient(clientID)

	server.mu.RLock()
	_, exists := server.clients[clientID]
	_, driverExists := server.drivers[entity]
	server.mu.RUnlock()

	if exists {
		t.Error("Client should be removed")
	}
	if driverExists {
		t.Error("driver for the removed client's entity should also be removed")
	}

	// Try removing again (should not crash).
	server.removeClient(clientID)
}

// TestGameServer_AcceptLoop tests the accept loop.
func TestGameServer_AcceptLoop(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(18011, world)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	defer server.listener.Close()
	defer server.Stop()

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	var conns []net.Conn
	for i := 0; i < 10; i++ {
		conn, err := net.DialTimeout("tcp", "localhost:18011", 2*time.Second)
		if err != nil {
			t.Logf("Failed to connect client %d: %v", i, err)
			continue
		}
		conns = append(conns, conn)
	}

	time.Sleep(100 * time.Millisecond)

	for _, conn := range conns {
		conn.Close()
	}

	time.Sleep(50 * time.Millisecond)

	if server.GetClientCount() != 0 {
		t.Errorf("Expected 0 clients after cleanup, got %d", server.GetClientCount())
	}
}

// TestGameServer_HandleClient_ReadError tests client handler with read errors.
func TestGameServer_HandleClient_ReadError(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(18012, world)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	defer server.listener.Close()
	defer server.Stop()

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	conn, err := net.DialTimeout("tcp", "localhost:18012", 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	initialCount := server.GetClientCount()

	conn.Close()

	time.Sleep(100 * time.Millisecond)

	finalCount := server.GetClientCount()
	if finalCount >= initialCount {
		t.Errorf("Client count should decrease, got initial=%d, final=%d", initialCount, finalCount)
	}
}

// TestGameServer_ProcessClientCommands tests command processing.
func TestGameServer_ProcessClientCommands(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(18013, world)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	defer server.listener.Close()
	defer server.Stop()

	server.SetValidator(&mockValidator{shouldFail: false})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	conn, err := net.DialTimeout("tcp", "localhost:18013", 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)

	server.mu.RLock()
	var clientID uint64
	for id := range server.clients {
		clientID = id
		break
	}
	server.mu.RUnlock()

	for i := 0; i < 5; i++ {
		cmd := &PlayerCommand{
			PlayerID:  clientID,
			Sequence:  uint64(i),
			Type:      "test",
			Timestamp: time.Now(),
			Data:      []byte(`{}`),
		}

		server.mu.RLock()
		client, exists := server.clients[clientID]
		server.mu.RUnlock()

		if exists {
			select {
			case client.cmdQueue <- cmd:
			default:
			}
		}
	}

	server.mu.RLock()
	client, exists := server.clients[clientID]
	server.mu.RUnlock()

	if exists {
		server.processClientCommands(client)
	}
}

// TestGameServer_GetTickNumber tests tick number retrieval.
func TestGameServer_GetTickNumber(t *testing.T) {
	world := engine.NewWorld()
	server, err := NewGameServer(0, world)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	defer server.listener.Close()

	initialTick := server.GetTickNumber()
	if initialTick != 0 {
		t.Errorf("Initial tick should be 0, got %d", initialTick)
	}
}
