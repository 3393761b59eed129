// Package network provides the transport layer transform-sync rides on:
// a TCP connection to a GameServer, the PlayerCommand/PoseUpdate message
// envelope, and a tick-driven authoritative server (see gameserver.go).
package network

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/opd-ai/transformsync/pkg/engine"
	"github.com/opd-ai/transformsync/pkg/transformsync"
)

// Client is a connection to a GameServer. It implements
// transformsync.Dispatcher for whichever entity this process owns:
// SendToServer reports the locally-simulated pose, SendToClients is a
// no-op because fan-out to other peers is the server's job, not a
// client's.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	encoder *json.Encoder
	decoder *json.Decoder
}

// Connect dials a GameServer at address.
func Connect(address string) (*Client, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", address, err)
	}
	return &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		decoder: json.NewDecoder(conn),
	}, nil
}

// SendCommand transmits a player input command to the server.
func (c *Client) SendCommand(cmd *PlayerCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encoder.Encode(&ClientMessage{Command: cmd})
}

// ReceiveMessage blocks until the next envelope arrives from the server.
// The caller inspects which field of ClientMessage is populated.
func (c *Client) ReceiveMessage() (*ClientMessage, error) {
	var msg ClientMessage
	if err := c.decoder.Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// SendToServer implements transformsync.Dispatcher. ch is accepted for
// interface conformance; this transport has no distinct reliable and
// unreliable lanes, so every send travels the same TCP stream.
func (c *Client) SendToServer(entity engine.Entity, ch transformsync.Channel, ts float64, packet transformsync.SnapshotPacket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.encoder.Encode(&ClientMessage{Pose: &PoseUpdate{EntityID: entity, Timestamp: ts, Packet: packet}})
}

// SendToClients is a no-op: a Client never fans a pose out to other
// peers, only the authoritative GameServer does.
func (c *Client) SendToClients(entity engine.Entity, ch transformsync.Channel, ts float64, packet transformsync.SnapshotPacket) {
}
