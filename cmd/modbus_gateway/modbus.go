/*
Framing constants and error kinds shared by the Modbus TCP and RTU sides
of the gateway. The gateway never looks inside a PDU beyond its first byte
(needed only to build exception responses).
*/

package main

import (
	"fmt"
)

const (
	MBAP_HEADER_LEN  = 7   // transaction(2) protocol(2) length(2) unit(1)
	MAX_PDU_LEN      = 253 // function code + data
	MAX_TCP_FRAME    = MBAP_HEADER_LEN + MAX_PDU_LEN
	RTU_CRC_LEN      = 2
	MIN_RTU_FRAME    = 1 + 1 + RTU_CRC_LEN // unit + at least one PDU byte + CRC
	MAX_RTU_FRAME    = 1 + MAX_PDU_LEN + RTU_CRC_LEN
	MBAP_PROTOCOL_ID = 0
)

// Modbus exception codes used when the gateway answers on behalf of the bus
const (
	EXC_GATEWAY_PATH_UNAVAILABLE = 0x0A
	EXC_GATEWAY_TARGET_FAILED    = 0x0B
)

var ERR_INVALID_MBAP = fmt.Errorf("Invalid MBAP header")
var ERR_RTU_TIMEOUT = fmt.Errorf("No RTU response within timeout")
var ERR_CRC_MISMATCH = fmt.Errorf("CRC check failed")
var ERR_FRAME_TOO_SHORT = fmt.Errorf("RTU frame too short")
var ERR_FRAME_OVERFLOW = fmt.Errorf("Frame buffer overflow")
var ERR_PDU_TOO_LARGE = fmt.Errorf("PDU exceeds 253 bytes")
var ERR_UNIT_REJECTED = fmt.Errorf("Unit id not allowed")
var ERR_FRAME_INCOMPLETE = fmt.Errorf("Incomplete TCP frame abandoned")

// wraps failures of the serial port or direction control
var ERR_SERIAL = fmt.Errorf("serial")

var gatewayErrorToLabel = map[error]string{
	ERR_INVALID_MBAP:     "invalid_mbap",
	ERR_RTU_TIMEOUT:      "timeout",
	ERR_CRC_MISMATCH:     "crc_failed",
	ERR_FRAME_TOO_SHORT:  "frame_too_short",
	ERR_FRAME_OVERFLOW:   "overflow",
	ERR_PDU_TOO_LARGE:    "pdu_too_large",
	ERR_UNIT_REJECTED:    "rejected",
	ERR_FRAME_INCOMPLETE: "incomplete",
}

// labels for outcomes which are not errors, or not one of the above
const (
	LABEL_OK        = "ok"
	LABEL_BROADCAST = "broadcast"
	LABEL_IO_ERROR  = "io_error"
)
