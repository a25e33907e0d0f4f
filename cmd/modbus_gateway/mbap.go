package main

import (
	"encoding/binary"
)

// Decoded Modbus TCP application header
type MBAPHeader struct {
	TransactionID uint16
	UnitID        byte
	PDULen        int // length field minus the unit id byte
}

// Decode and validate the first 7 bytes of a Modbus TCP frame.
func ParseMBAP(frame []byte) (MBAPHeader, error) {
	if len(frame) < MBAP_HEADER_LEN {
		return MBAPHeader{}, ERR_INVALID_MBAP
	}
	proto := binary.BigEndian.Uint16(frame[2:4])
	if proto != MBAP_PROTOCOL_ID {
		return MBAPHeader{}, ERR_INVALID_MBAP
	}
	l := int(binary.BigEndian.Uint16(frame[4:6]))
	if l < 1 || l > MAX_PDU_LEN+1 {
		return MBAPHeader{}, ERR_INVALID_MBAP
	}
	return MBAPHeader{
		TransactionID: binary.BigEndian.Uint16(frame[0:2]),
		UnitID:        frame[6],
		PDULen:        l - 1,
	}, nil
}

// Write a response header into out[0:7]. The length field counts the
// unit id, so it is pduLen+1.
func PutMBAP(out []byte, transactionID uint16, unit byte, pduLen int) {
	binary.BigEndian.PutUint16(out[0:2], transactionID)
	binary.BigEndian.PutUint16(out[2:4], MBAP_PROTOCOL_ID)
	binary.BigEndian.PutUint16(out[4:6], uint16(pduLen+1))
	out[6] = unit
}
