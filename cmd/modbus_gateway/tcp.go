package main

// Socket side of the gateway. Each client connection is read by its own
// goroutine into a pending buffer; the gateway loop picks up clients
// with waiting bytes through Accept, without ever blocking.

import (
	"context"
	"log"
	"net"
	"sync"
	"time"
)

const (
	TCP_SEND_TIMEOUT = 5 * time.Second
	TCP_MAX_PENDING  = 4 * MAX_TCP_FRAME // backlog per client before it is dropped
	TCP_READY_QUEUE  = 64
)

// A client connection as seen by the gateway loop
type TCPConn interface {
	ReadAvailable(buf []byte) int
	Send(b []byte) error
	Close() error
}

type TCPAcceptor interface {
	Accept() TCPConn // nil if no client has bytes waiting
}

type TCPServer struct {
	listener net.Listener
	ready    chan *tcpClient
	again    []*tcpClient // only used by the gateway loop
}

type tcpClient struct {
	server  *TCPServer
	conn    net.Conn
	mu      sync.Mutex
	pending []byte
	queued  bool // waiting in ready or again
	closed  bool
}

func ListenTCP(addr string) (*TCPServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPServer{
		listener: listener,
		ready:    make(chan *tcpClient, TCP_READY_QUEUE),
	}, nil
}

func (s *TCPServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Accept connections until ctx is cancelled
func (s *TCPServer) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()
	log.Printf("Starting modbus TCP gateway on %s", s.listener.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("listener.Accept: %v", err)
			time.Sleep(1 * time.Second)
			continue
		}
		c := &tcpClient{server: s, conn: conn}
		go c.reader(ctx)
	}
}

func (c *tcpClient) reader(ctx context.Context) {
	defer c.Close()
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()
	buf := make([]byte, MAX_TCP_FRAME)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 && !c.push(buf[:n]) {
			log.Printf("!tcp %s: backlog exceeded, closing", c)
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *tcpClient) push(data []byte) bool {
	c.mu.Lock()
	if c.closed {
		// dropped by the gateway; the next read fails
		c.mu.Unlock()
		return true
	}
	if len(c.pending)+len(data) > TCP_MAX_PENDING {
		c.mu.Unlock()
		return false
	}
	c.pending = append(c.pending, data...)
	notify := !c.queued
	c.queued = true
	c.mu.Unlock()
	if notify {
		c.server.ready <- c
	}
	return true
}

func (s *TCPServer) Accept() TCPConn {
	for {
		var c *tcpClient
		if len(s.again) > 0 {
			c = s.again[0]
			s.again = s.again[1:]
		} else {
			select {
			case c = <-s.ready:
			default:
				return nil
			}
		}
		if c.accepted() {
			return c
		}
	}
}

// Withdraw the client's offer; false if it has been closed meanwhile
func (c *tcpClient) accepted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queued = false
	return !c.closed
}

// Copy out up to len(buf) pending bytes. A client with bytes left over
// is offered again by the next Accept, unless it already has an offer
// outstanding.
func (c *tcpClient) ReadAvailable(buf []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := copy(buf, c.pending)
	c.pending = c.pending[:copy(c.pending, c.pending[n:])]
	if len(c.pending) > 0 && !c.queued {
		c.queued = true
		c.server.again = append(c.server.again, c)
	}
	return n
}

func (c *tcpClient) Send(b []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(TCP_SEND_TIMEOUT))
	_, err := c.conn.Write(b)
	return err
}

func (c *tcpClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.pending = nil
	return c.conn.Close()
}

func (c *tcpClient) String() string {
	return c.conn.RemoteAddr().String()
}
