package main

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

type SerialConfig struct {
	Device          string         `yaml:"device"`
	Baud            int            `yaml:"baud"`
	DataBits        int            `yaml:"data_bits"`
	Parity          string         `yaml:"parity"`
	StopBits        int            `yaml:"stop_bits"`
	Direction       string         `yaml:"direction"`
	DirectionPin    int            `yaml:"direction_pin"`
	DirectionInvert bool           `yaml:"direction_invert"`
	Silence         *time.Duration `yaml:"silence"`
	Dump            bool           `yaml:"dump"`
}

var serialParity = map[string]serial.Parity{
	"N": serial.NoParity,
	"E": serial.EvenParity,
	"O": serial.OddParity,
}

var serialStopBits = map[int]serial.StopBits{
	1: serial.OneStopBit,
	2: serial.TwoStopBits,
}

// Inter-frame gap for the link framer. An explicit zero asks for the
// baud-derived RTU value.
func (c *SerialConfig) FrameSilence() time.Duration {
	if c.Silence == nil {
		return DEFAULT_SILENCE
	}
	if *c.Silence == 0 {
		return SilenceForBaud(c.Baud)
	}
	return *c.Silence
}

// go.bug.st/serial port with a zero read timeout, so reads return
// immediately with whatever the driver holds.
type Serial struct {
	config *SerialConfig
	port   serial.Port
}

func OpenSerial(config *SerialConfig) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: config.Baud,
		Parity:   serialParity[config.Parity],
		DataBits: config.DataBits,
		StopBits: serialStopBits[config.StopBits],
	}
	port, err := serial.Open(config.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("%s: device %s", config.Device, err)
	}
	if err := port.SetReadTimeout(0); err != nil {
		port.Close()
		return nil, fmt.Errorf("%s: set read timeout: %s", config.Device, err)
	}
	return &Serial{config: config, port: port}, nil
}

func (s *Serial) ReadAvailable(buf []byte) (int, error) {
	return s.port.Read(buf)
}

func (s *Serial) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *Serial) Drain() error {
	return s.port.Drain()
}

func (s *Serial) SetRTS(on bool) error {
	return s.port.SetRTS(on)
}

func (s *Serial) SetDTR(on bool) error {
	return s.port.SetDTR(on)
}

func (s *Serial) Close() error {
	return s.port.Close()
}
