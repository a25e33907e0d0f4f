package main

import (
	"encoding/binary"
)

// Reassembles a Modbus TCP byte stream into frames using the MBAP length
// field. Bytes stay in the buffer across polls until the frame is
// consumed or discarded.
type FrameAssembler struct {
	buf [MAX_TCP_FRAME]byte
	n   int
}

func (a *FrameAssembler) Len() int {
	return a.n
}

// Space left before the buffer is full
func (a *FrameAssembler) Free() int {
	return len(a.buf) - a.n
}

// Append received bytes. Input that does not fit is rejected as a whole
// and the buffer is reset. A length field announcing a PDU that can
// never fit is rejected as soon as it is seen.
func (a *FrameAssembler) Append(data []byte) error {
	if len(data) > a.Free() {
		a.Reset()
		return ERR_FRAME_OVERFLOW
	}
	a.n += copy(a.buf[a.n:], data)
	if a.n >= 6 && a.declaredLength() > MAX_PDU_LEN+1 {
		a.Reset()
		return ERR_PDU_TOO_LARGE
	}
	return nil
}

// big-endian length field at offset 4
func (a *FrameAssembler) declaredLength() int {
	return int(binary.BigEndian.Uint16(a.buf[4:6]))
}

func (a *FrameAssembler) frameLen() int {
	return 6 + a.declaredLength()
}

func (a *FrameAssembler) IsComplete() bool {
	if a.n < MBAP_HEADER_LEN {
		return false
	}
	return a.n >= a.frameLen()
}

// The complete frame at the head of the buffer, excluding any bytes of a
// following frame. Only valid while IsComplete is true.
func (a *FrameAssembler) Frame() []byte {
	l := a.frameLen()
	if l < MBAP_HEADER_LEN {
		// a zero length field still needs the whole header for parsing
		l = MBAP_HEADER_LEN
	}
	return a.buf[:l]
}

// Drop the frame at the head of the buffer, keeping any bytes that
// already belong to the next one. Those bytes are checked like freshly
// appended ones.
func (a *FrameAssembler) Consume() error {
	if !a.IsComplete() {
		a.Reset()
		return nil
	}
	l := len(a.Frame())
	a.n = copy(a.buf[:], a.buf[l:a.n])
	return a.Append(nil)
}

func (a *FrameAssembler) Reset() {
	a.n = 0
}
