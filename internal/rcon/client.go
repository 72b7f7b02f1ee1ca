package rcon

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Source RCON packet types as used by Minecraft servers.
const (
	typeResponse = 0
	typeCommand  = 2
	typeLogin    = 3
)

// ErrAuthFailed is returned when the server rejects the password.
var ErrAuthFailed = errors.New("rcon authentication failed")

const maxPayload = 4096

// Client is a minimal RCON client. One request is in flight at a time.
type Client struct {
	mu        sync.Mutex
	conn      net.Conn
	requestID int32
}

// Dial connects and authenticates against an RCON endpoint.
func Dial(addr, password string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rcon: %w", err)
	}

	c := &Client{conn: conn}
	if err := c.authenticate(password); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Execute sends a command and returns the server's reply payload.
func (c *Client) Execute(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.writePacket(typeCommand, cmd)
	if err != nil {
		return "", err
	}

	replyID, _, payload, err := c.readPacket()
	if err != nil {
		return "", err
	}
	if replyID != id {
		return "", fmt.Errorf("rcon response id mismatch: got %d, want %d", replyID, id)
	}
	return payload, nil
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) authenticate(password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.writePacket(typeLogin, password)
	if err != nil {
		return err
	}

	// A failed login answers with request id -1.
	replyID, _, _, err := c.readPacket()
	if err != nil {
		return err
	}
	if replyID == -1 {
		return ErrAuthFailed
	}
	if replyID != id {
		return fmt.Errorf("rcon login id mismatch: got %d, want %d", replyID, id)
	}
	return nil
}

// writePacket frames one packet: little-endian length, request id, type,
// then the payload with two trailing NULs.
func (c *Client) writePacket(packetType int32, payload string) (int32, error) {
	if len(payload) > maxPayload {
		return 0, fmt.Errorf("rcon payload too large (%d bytes)", len(payload))
	}

	c.requestID++
	id := c.requestID

	length := int32(4 + 4 + len(payload) + 2)
	buf := make([]byte, 0, 4+length)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(length))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(packetType))
	buf = append(buf, payload...)
	buf = append(buf, 0, 0)

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := c.conn.Write(buf); err != nil {
		return 0, fmt.Errorf("failed to write rcon packet: %w", err)
	}
	return id, nil
}

func (c *Client) readPacket() (id, packetType int32, payload string, err error) {
	c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var length int32
	if err := binary.Read(c.conn, binary.LittleEndian, &length); err != nil {
		return 0, 0, "", fmt.Errorf("failed to read rcon packet: %w", err)
	}
	if length < 10 || length > maxPayload+10 {
		return 0, 0, "", fmt.Errorf("invalid rcon packet length %d", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		return 0, 0, "", fmt.Errorf("failed to read rcon packet: %w", err)
	}

	id = int32(binary.LittleEndian.Uint32(body[0:4]))
	packetType = int32(binary.LittleEndian.Uint32(body[4:8]))
	payload = string(body[8 : length-2])
	return id, packetType, payload, nil
}
