package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Serial  *SerialConfig  `yaml:"serial"`
	Gateway *GatewayConfig `yaml:"gateway"`
	Metrics *MetricsConfig `yaml:"metrics"`
}

func ReadConfigFile(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadConfig(file)
}

func ReadConfig(r io.Reader) (*Config, error) {
	config := Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(&config)
	if err == io.EOF {
		return nil, fmt.Errorf("Empty configuration!")
	}
	if err != nil {
		return nil, err
	}

	if config.Serial == nil {
		return nil, fmt.Errorf("serial section is required")
	}
	if config.Gateway == nil {
		config.Gateway = &GatewayConfig{}
	}
	if err := config.Serial.setDefaults(); err != nil {
		return nil, fmt.Errorf("serial: %w", err)
	}
	if err := config.Gateway.setDefaults(); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	return &config, nil
}

func (c *SerialConfig) setDefaults() error {
	if c.Device == "" {
		return fmt.Errorf("device is required")
	}
	if c.Baud == 0 {
		c.Baud = 9600
	}
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.Parity == "" {
		c.Parity = "N"
	}
	if c.StopBits == 0 {
		c.StopBits = 1
	}
	if c.Baud < 0 {
		return fmt.Errorf("invalid baud rate %d", c.Baud)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("invalid data bits %d", c.DataBits)
	}
	if _, ok := serialParity[c.Parity]; !ok {
		return fmt.Errorf("invalid parity %q (N, E or O)", c.Parity)
	}
	if _, ok := serialStopBits[c.StopBits]; !ok {
		return fmt.Errorf("invalid stop bits %d", c.StopBits)
	}
	switch c.Direction {
	case "", "none", "rts", "dtr":
	case "gpio":
		if c.DirectionPin <= 0 {
			return fmt.Errorf("direction gpio needs direction_pin")
		}
	default:
		return fmt.Errorf("invalid direction %q", c.Direction)
	}
	if c.Silence != nil && *c.Silence < 0 {
		return fmt.Errorf("invalid silence %v", *c.Silence)
	}
	return nil
}

func (c *GatewayConfig) setDefaults() error {
	if c.Listen == "" {
		c.Listen = ":502"
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = 1000 * time.Millisecond
	}
	if c.PollInterval == 0 {
		c.PollInterval = 1 * time.Millisecond
	}
	if c.BroadcastDelay == 0 {
		c.BroadcastDelay = 100 * time.Millisecond
	}
	if c.ResponseTimeout < 0 || c.PollInterval < 0 || c.BroadcastDelay < 0 {
		return fmt.Errorf("durations must be positive")
	}
	return nil
}
