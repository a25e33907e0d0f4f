package main

// PDUs are opaque byte strings here. The only byte ever inspected is the
// function code, and only to build an exception reply.

// The PDU of a complete TCP frame
func ExtractPDU(frame []byte) []byte {
	if len(frame) <= MBAP_HEADER_LEN {
		return frame[len(frame):]
	}
	return frame[MBAP_HEADER_LEN:]
}

// unit ++ pdu, appended to dst[:0]
func WrapUnitPDU(dst []byte, unit byte, pdu []byte) []byte {
	b := append(dst[:0], unit)
	return append(b, pdu...)
}

// Inverse of WrapUnitPDU. b must not be empty.
func StripUnitPDU(b []byte) (byte, []byte) {
	return b[0], b[1:]
}

// Append a complete Modbus TCP response frame to dst[:0].
func BuildTCPResponse(dst []byte, transactionID uint16, unit byte, pdu []byte) ([]byte, error) {
	if len(pdu) > MAX_PDU_LEN {
		return nil, ERR_PDU_TOO_LARGE
	}
	var header [MBAP_HEADER_LEN]byte
	PutMBAP(header[:], transactionID, unit, len(pdu))
	frame := append(dst[:0], header[:]...)
	return append(frame, pdu...), nil
}

// Exception reply for a request with the given function code
func ExceptionPDU(function, code byte) []byte {
	return []byte{function | 0x80, code}
}
