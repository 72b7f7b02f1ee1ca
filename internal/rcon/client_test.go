package rcon

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
)

// fakeServer speaks just enough RCON for the client: one login exchange,
// then echoes commands back prefixed with "ok:".
func fakeServer(t *testing.T, password string) (addr string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			id, packetType, payload, err := readFramed(conn)
			if err != nil {
				return
			}
			switch packetType {
			case typeLogin:
				if payload != password {
					writeFramed(conn, -1, typeCommand, "")
					return
				}
				writeFramed(conn, id, typeCommand, "")
			case typeCommand:
				writeFramed(conn, id, typeResponse, "ok:"+payload)
			}
		}
	}()

	return ln.Addr().String()
}

func readFramed(conn net.Conn) (id, packetType int32, payload string, err error) {
	var length int32
	if err := binary.Read(conn, binary.LittleEndian, &length); err != nil {
		return 0, 0, "", err
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(conn, body); err != nil {
		return 0, 0, "", err
	}
	id = int32(binary.LittleEndian.Uint32(body[0:4]))
	packetType = int32(binary.LittleEndian.Uint32(body[4:8]))
	payload = string(body[8 : length-2])
	return id, packetType, payload, nil
}

func writeFramed(conn net.Conn, id, packetType int32, payload string) {
	length := int32(4 + 4 + len(payload) + 2)
	buf := make([]byte, 0, 4+length)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(length))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(packetType))
	buf = append(buf, payload...)
	buf = append(buf, 0, 0)
	conn.Write(buf)
}

func TestDialAndExecute(t *testing.T) {
	addr := fakeServer(t, "hunter2")

	client, err := Dial(addr, "hunter2")
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	reply, err := client.Execute("list")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if reply != "ok:list" {
		t.Fatalf("unexpected reply %q", reply)
	}

	reply, err = client.Execute("whitelist add Steve")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if reply != "ok:whitelist add Steve" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestDialWrongPassword(t *testing.T) {
	addr := fakeServer(t, "hunter2")

	_, err := Dial(addr, "wrong")
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}
