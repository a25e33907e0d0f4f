package main

// RTU framing: UNIT-1 PDU-N CRC-2 (CRC low byte first)

// Append an RTU request frame for unit/pdu to dst[:0]. A dst with capacity
// MAX_RTU_FRAME is filled in place.
func BuildRTURequest(dst []byte, unit byte, pdu []byte) ([]byte, error) {
	if len(pdu) > MAX_PDU_LEN {
		return nil, ERR_PDU_TOO_LARGE
	}
	frame := WrapUnitPDU(dst, unit, pdu)
	return AppendCRC(frame, frame), nil
}

// Validate an RTU frame and split it into unit id and PDU. The returned
// pdu is a sub-slice of frame. A frame failing the CRC check yields
// nothing but the error.
func ParseRTUResponse(frame []byte) (unit byte, pdu []byte, err error) {
	l := len(frame)
	if l < MIN_RTU_FRAME {
		return 0, nil, ERR_FRAME_TOO_SHORT
	}
	plen := l - RTU_CRC_LEN
	received := uint16(frame[plen]) | uint16(frame[plen+1])<<8
	if !VerifyCRC(frame[:plen], received) {
		return 0, nil, ERR_CRC_MISMATCH
	}
	unit, pdu = StripUnitPDU(frame[:plen])
	return unit, pdu, nil
}
