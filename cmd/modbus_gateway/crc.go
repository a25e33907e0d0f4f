package main

import (
	"github.com/sigurn/crc16"
)

// CRC-16/MODBUS: reflected polynomial 0xA001, initial value 0xFFFF
var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// Append the checksum of pkt to dst in wire order (low byte first)
func AppendCRC(dst []byte, pkt []byte) []byte {
	crc := CRC16(pkt)
	return append(dst, byte(crc&0xff), byte(crc>>8))
}

func VerifyCRC(data []byte, crc uint16) bool {
	return CRC16(data) == crc
}
