package main

// RS-485 driver direction control for half-duplex transceivers.

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type DirectionControl interface {
	SetTransmit(on bool) error
}

// Transceiver switches direction by itself
type noDirection struct{}

func (noDirection) SetTransmit(bool) error { return nil }

// RTS or DTR line of the serial port wired to DE/RE
type modemLineDirection struct {
	set    func(bool) error
	invert bool
}

func (d *modemLineDirection) SetTransmit(on bool) error {
	return d.set(on != d.invert)
}

const gpioSysfsRoot = "/sys/class/gpio"

// GPIO pin wired to DE/RE, driven through the sysfs value file
type gpioDirection struct {
	value  string
	invert bool
}

func newGPIODirection(root string, pin int, invert bool) (*gpioDirection, error) {
	dir := filepath.Join(root, "gpio"+strconv.Itoa(pin))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.WriteFile(filepath.Join(root, "export"), []byte(strconv.Itoa(pin)), 0644); err != nil {
			return nil, fmt.Errorf("gpio %d: export: %w", pin, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "direction"), []byte("out"), 0644); err != nil {
		return nil, fmt.Errorf("gpio %d: direction: %w", pin, err)
	}
	return &gpioDirection{value: filepath.Join(dir, "value"), invert: invert}, nil
}

func (d *gpioDirection) SetTransmit(on bool) error {
	v := []byte("0")
	if on != d.invert {
		v[0] = '1'
	}
	return os.WriteFile(d.value, v, 0644)
}

// modem lines of an open port, as used by the rts/dtr direction modes
type modemLines interface {
	SetRTS(bool) error
	SetDTR(bool) error
}

func NewDirectionControl(config *SerialConfig, port modemLines) (DirectionControl, error) {
	return newDirectionControl(config, port, gpioSysfsRoot)
}

func newDirectionControl(config *SerialConfig, port modemLines, gpioRoot string) (DirectionControl, error) {
	switch config.Direction {
	case "", "none":
		return noDirection{}, nil
	case "rts":
		return &modemLineDirection{set: port.SetRTS, invert: config.DirectionInvert}, nil
	case "dtr":
		return &modemLineDirection{set: port.SetDTR, invert: config.DirectionInvert}, nil
	case "gpio":
		return newGPIODirection(gpioRoot, config.DirectionPin, config.DirectionInvert)
	}
	return nil, fmt.Errorf("unknown direction control %q", config.Direction)
}
