package main

// RTU link layer: frames on the serial line are delimited by silence.
//
// The Modbus RTU standard delimits frames with 3.5 character times. By
// default a fixed wall-clock gap (DEFAULT_SILENCE) is used instead, which
// is longer than 3.5 characters at 9600 baud and above; SilenceForBaud
// gives the standard value when the serial config asks for it. Because the
// line is polled, the effective gap is at least the poll interval.

import (
	"fmt"
	"io"
	"log"
	"time"
)

const DEFAULT_SILENCE = 5 * time.Millisecond

// Serial port collaborator. ReadAvailable must not block: it returns
// whatever has been received so far, possibly nothing.
type SerialLine interface {
	ReadAvailable(buf []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error // wait until written bytes have left the UART
}

type clock interface {
	Now() time.Time
	Sleep(time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// 3.5 character times at 11 bits per character. Above 19200 baud the
// standard fixes the gap at 1750us.
func SilenceForBaud(baud int) time.Duration {
	if baud <= 0 {
		return DEFAULT_SILENCE
	}
	if baud > 19200 {
		return 1750 * time.Microsecond
	}
	return time.Duration(38500000000 / int64(baud))
}

type LinkFramer struct {
	line       SerialLine
	dir        DirectionControl
	silence    time.Duration
	clock      clock
	dump       bool
	onOverflow func()

	// accumulation buffer; discarding is set after an overflow until
	// the line goes quiet again
	buf        [MAX_RTU_FRAME]byte
	n          int
	discarding bool
	lastByte   time.Time

	// last complete frame, handed over by TakeReadyFrame
	frame    [MAX_RTU_FRAME]byte
	frameLen int
	ready    bool
}

func NewLinkFramer(line SerialLine, dir DirectionControl, silence time.Duration) (*LinkFramer, error) {
	if dir == nil {
		dir = noDirection{}
	}
	if silence <= 0 {
		silence = DEFAULT_SILENCE
	}
	l := &LinkFramer{
		line:    line,
		dir:     dir,
		silence: silence,
		clock:   realClock{},
	}
	if err := dir.SetTransmit(false); err != nil {
		return nil, fmt.Errorf("set receive mode: %w", err)
	}
	return l, nil
}

// Read whatever the line has and declare a frame complete once the line
// has been silent for longer than the configured gap.
func (l *LinkFramer) Poll() error {
	var chunk [MAX_RTU_FRAME]byte
	for {
		n, err := l.line.ReadAvailable(chunk[:])
		if n > 0 {
			l.receive(chunk[:n])
		}
		if err != nil {
			return fmt.Errorf("%w: read: %w", ERR_SERIAL, err)
		}
		if n < len(chunk) {
			break
		}
	}
	if l.n == 0 && !l.discarding {
		return nil
	}
	if l.clock.Now().Sub(l.lastByte) <= l.silence {
		return nil
	}
	if l.discarding {
		l.discarding = false
		l.n = 0
		return nil
	}
	l.frameLen = copy(l.frame[:], l.buf[:l.n])
	l.ready = true
	l.n = 0
	if l.dump {
		log.Printf("=<%02X", l.frame[:l.frameLen])
	}
	return nil
}

func (l *LinkFramer) receive(data []byte) {
	l.lastByte = l.clock.Now()
	if l.discarding {
		return
	}
	if l.n+len(data) > len(l.buf) {
		// more than any valid frame: drop everything up to the next gap
		l.n = 0
		l.discarding = true
		log.Printf("!serial: receive buffer overflow, frame discarded")
		if l.onOverflow != nil {
			l.onOverflow()
		}
		return
	}
	l.n += copy(l.buf[l.n:], data)
}

// Returns the last complete frame, if any, and clears the ready flag.
// The slice is only valid until the next call to Poll.
func (l *LinkFramer) TakeReadyFrame() ([]byte, bool) {
	if !l.ready {
		return nil, false
	}
	l.ready = false
	return l.frame[:l.frameLen], true
}

// Discard partial and complete frames, including bytes still waiting
// in the serial driver.
func (l *LinkFramer) Flush() error {
	var chunk [MAX_RTU_FRAME]byte
	for {
		n, err := l.line.ReadAvailable(chunk[:])
		if err != nil {
			return fmt.Errorf("%w: read: %w", ERR_SERIAL, err)
		}
		if n == 0 {
			break
		}
	}
	l.n = 0
	l.discarding = false
	l.ready = false
	return nil
}

// Transmit a frame. The driver is switched to transmit for exactly the
// duration of the write and the drain, and always switched back.
func (l *LinkFramer) Send(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	if err := l.dir.SetTransmit(true); err != nil {
		return fmt.Errorf("%w: set transmit mode: %w", ERR_SERIAL, err)
	}
	err := l.write(frame)
	if derr := l.dir.SetTransmit(false); derr != nil && err == nil {
		err = fmt.Errorf("%w: set receive mode: %w", ERR_SERIAL, derr)
	}
	l.lastByte = l.clock.Now()
	if err == nil && l.dump {
		log.Printf("=>%02X", frame)
	}
	return err
}

func (l *LinkFramer) write(frame []byte) error {
	p := 0
	for p < len(frame) {
		n, err := l.line.Write(frame[p:])
		if err != nil {
			return fmt.Errorf("%w: write: %w", ERR_SERIAL, err)
		}
		if n < 1 {
			return fmt.Errorf("%w: write: %w", ERR_SERIAL, io.ErrShortWrite)
		}
		p += n
	}
	if err := l.line.Drain(); err != nil {
		return fmt.Errorf("%w: drain: %w", ERR_SERIAL, err)
	}
	return nil
}
