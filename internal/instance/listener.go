package instance

import (
	"fmt"
	"log"
	"net"
)

// armListener binds the instance port and waits for one inbound connection
// as the wake-up signal. Only armed while the instance is Stopped and the
// start_on_connection flag is set; the listener releases the port before the
// real server process binds it.
func (in *Instance) armListener() {
	if !in.startOnConnection() {
		return
	}
	if in.Status() != StateStopped {
		return
	}

	in.listenerMu.Lock()
	defer in.listenerMu.Unlock()
	if in.listenerCancel != nil {
		return
	}

	port := in.ConfigSnapshot().Port
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.Printf("[Instance %s] cannot arm start-on-connection listener: %v", in.Name(), err)
		return
	}

	cancelled := make(chan struct{})
	in.listenerCancel = func() {
		close(cancelled)
		ln.Close()
	}

	log.Printf("[Instance %s] waiting for a connection on port %d", in.Name(), port)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-cancelled:
			default:
				log.Printf("[Instance %s] listener accept failed: %v", in.Name(), err)
			}
			return
		}
		conn.Close()
		ln.Close()

		in.listenerMu.Lock()
		in.listenerCancel = nil
		in.listenerMu.Unlock()

		log.Printf("[Instance %s] connection received, starting server", in.Name())
		if err := in.Start(); err != nil {
			log.Printf("[Instance %s] start-on-connection failed: %v", in.Name(), err)
		}
	}()
}

// stopListener cancels a pending start-on-connection listener, if any.
func (in *Instance) stopListener() {
	in.listenerMu.Lock()
	defer in.listenerMu.Unlock()
	if in.listenerCancel != nil {
		in.listenerCancel()
		in.listenerCancel = nil
	}
}
