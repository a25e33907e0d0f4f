package main

// Modbus TCP to RTU gateway: one transaction at a time, driven by Poll.

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

type GatewayConfig struct {
	Listen          string        `yaml:"listen"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	BroadcastDelay  time.Duration `yaml:"broadcast_delay"`
	Exceptions      bool          `yaml:"exceptions"`
	Units           []UnitRule    `yaml:"units"`
	Dump            bool          `yaml:"dump"`
}

type Gateway struct {
	config  *GatewayConfig
	tcp     TCPAcceptor
	link    *LinkFramer
	metrics *GatewayMetrics
	clock   clock

	asm       FrameAssembler
	owner     TCPConn // client whose bytes are in asm
	lastInput time.Time
	lastRead  int

	readBuf [MAX_TCP_FRAME]byte
	rtuBuf  [MAX_RTU_FRAME]byte
	tcpBuf  [MAX_TCP_FRAME]byte
}

func NewGateway(config *GatewayConfig, tcp TCPAcceptor, link *LinkFramer, metrics *GatewayMetrics) *Gateway {
	if metrics == nil {
		metrics = NewGatewayMetrics(nil)
	}
	g := &Gateway{
		config:  config,
		tcp:     tcp,
		link:    link,
		metrics: metrics,
		clock:   realClock{},
	}
	link.onOverflow = metrics.LinkOverflow
	return g
}

// Run one gateway cycle. The result is nil when there was nothing to do
// or a transaction completed; otherwise it says why a request was
// dropped or a collaborator failed.
func (g *Gateway) Poll(ctx context.Context) error {
	g.lastRead = 0

	// anything arriving on the bus while idle is not an answer to us
	if err := g.link.Poll(); err != nil {
		log.Printf("!%v", err)
		return err
	}
	if frame, ok := g.link.TakeReadyFrame(); ok {
		log.Printf("!serial: unsolicited frame discarded: %02X", frame)
	}

	conn := g.owner
	if g.asm.Len() == 0 {
		conn = g.tcp.Accept()
		g.owner = conn
	}
	if conn == nil {
		return nil
	}

	if !g.asm.IsComplete() {
		n := conn.ReadAvailable(g.readBuf[:g.asm.Free()])
		if n == 0 {
			return g.checkAbandoned()
		}
		g.lastRead = n
		g.lastInput = g.clock.Now()
		if g.config.Dump {
			log.Printf("->%02X", g.readBuf[:n])
		}
		if err := g.asm.Append(g.readBuf[:n]); err != nil {
			// the rest of this client's stream cannot be resynchronised
			log.Printf("!tcp %v: %v", conn, err)
			g.drop(conn)
			g.metrics.Transaction(err)
			return err
		}
		if !g.asm.IsComplete() {
			return nil
		}
	}

	err := g.transact(ctx, conn)
	if err != errBroadcast {
		g.metrics.Transaction(err)
		return err
	}
	g.metrics.Broadcast()
	return nil
}

// A partial frame whose sender has gone quiet would block every other
// client, so it is given up after the response timeout.
func (g *Gateway) checkAbandoned() error {
	if g.asm.Len() == 0 || g.clock.Now().Sub(g.lastInput) <= g.config.ResponseTimeout {
		return nil
	}
	log.Printf("!tcp %v: %v (%d bytes)", g.owner, ERR_FRAME_INCOMPLETE, g.asm.Len())
	g.asm.Reset()
	g.owner = nil
	g.metrics.Transaction(ERR_FRAME_INCOMPLETE)
	return ERR_FRAME_INCOMPLETE
}

func (g *Gateway) drop(conn TCPConn) {
	g.asm.Reset()
	g.owner = nil
	if err := conn.Close(); err != nil {
		log.Printf("!tcp %v: close: %v", conn, err)
	}
}

// internal outcome: request sent to unit 0, nothing to wait for
var errBroadcast = fmt.Errorf("broadcast")

// Forward the complete frame at the head of the assembler and relay
// the answer. The frame is consumed whatever the outcome.
func (g *Gateway) transact(ctx context.Context, conn TCPConn) error {
	header, err := ParseMBAP(g.asm.Frame())
	if err == nil && header.PDULen == 0 {
		err = ERR_INVALID_MBAP
	}
	if err != nil {
		log.Printf("!tcp %v: %v: %02X", conn, err, g.asm.Frame())
		g.asm.Reset()
		return err
	}
	defer g.consume()
	pdu := ExtractPDU(g.asm.Frame())

	if !CheckUnit(header.UnitID, g.config.Units) {
		log.Printf("!tcp %v: unit %d rejected by rules", conn, header.UnitID)
		g.exception(conn, header, pdu[0], EXC_GATEWAY_PATH_UNAVAILABLE)
		return ERR_UNIT_REJECTED
	}

	request, err := BuildRTURequest(g.rtuBuf[:0], header.UnitID, pdu)
	if err != nil {
		return err
	}
	if err := g.link.Flush(); err != nil {
		log.Printf("!%v", err)
		return err
	}
	if err := g.link.Send(request); err != nil {
		log.Printf("!%v", err)
		g.exception(conn, header, pdu[0], EXC_GATEWAY_TARGET_FAILED)
		return err
	}
	start := g.clock.Now()

	if header.UnitID == 0 {
		// No response to broadcast; give the slaves time to act on it
		g.clock.Sleep(g.config.BroadcastDelay)
		return errBroadcast
	}

	reply, err := g.awaitResponse(ctx)
	if err != nil {
		log.Printf("!unit %d: %v", header.UnitID, err)
		g.exception(conn, header, pdu[0], EXC_GATEWAY_TARGET_FAILED)
		return err
	}
	unit, rpdu, err := ParseRTUResponse(reply)
	if err != nil {
		log.Printf("!unit %d: %v: %02X", header.UnitID, err, reply)
		g.exception(conn, header, pdu[0], EXC_GATEWAY_TARGET_FAILED)
		return err
	}
	g.metrics.ResponseTime(g.clock.Now().Sub(start))
	return g.reply(conn, header.TransactionID, unit, rpdu)
}

// Poll the link until a frame is ready or the deadline passes
func (g *Gateway) awaitResponse(ctx context.Context) ([]byte, error) {
	deadline := g.clock.Now().Add(g.config.ResponseTimeout)
	for {
		if err := g.link.Poll(); err != nil {
			return nil, err
		}
		if frame, ok := g.link.TakeReadyFrame(); ok {
			return frame, nil
		}
		if !g.clock.Now().Before(deadline) {
			return nil, ERR_RTU_TIMEOUT
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g.clock.Sleep(g.config.PollInterval)
	}
}

func (g *Gateway) reply(conn TCPConn, transactionID uint16, unit byte, pdu []byte) error {
	frame, err := BuildTCPResponse(g.tcpBuf[:0], transactionID, unit, pdu)
	if err != nil {
		return err
	}
	if g.config.Dump {
		log.Printf("<-%02X", frame)
	}
	if err := conn.Send(frame); err != nil {
		log.Printf("!tcp %v: send: %v", conn, err)
		g.drop(conn)
		return err
	}
	return nil
}

// Answer on behalf of the bus, if configured to. Otherwise the client
// sees no response and relies on its own timeout.
func (g *Gateway) exception(conn TCPConn, header MBAPHeader, function byte, code byte) {
	if !g.config.Exceptions {
		return
	}
	g.reply(conn, header.TransactionID, header.UnitID, ExceptionPDU(function, code))
}

func (g *Gateway) consume() {
	if g.asm.Len() == 0 {
		// already reset by a failed send
		return
	}
	if err := g.asm.Consume(); err != nil {
		log.Printf("!tcp %v: %v", g.owner, err)
		g.drop(g.owner)
		g.metrics.Transaction(err)
	}
}

// Poll until ctx is cancelled, sleeping when there is no input
func (g *Gateway) Run(ctx context.Context) {
	for ctx.Err() == nil {
		err := g.Poll(ctx)
		if errors.Is(err, ERR_SERIAL) {
			// don't spin on a broken serial port
			g.clock.Sleep(1 * time.Second)
			continue
		}
		if g.lastRead == 0 && !g.asm.IsComplete() {
			g.clock.Sleep(g.config.PollInterval)
		}
	}
}
