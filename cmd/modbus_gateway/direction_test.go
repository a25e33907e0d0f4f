package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGPIODirection(t *testing.T) {
	root := t.TempDir()
	pin := filepath.Join(root, "gpio17")
	os.Mkdir(pin, 0755)
	os.WriteFile(filepath.Join(pin, "value"), []byte("0"), 0644)

	for _, invert := range []bool{false, true} {
		d, err := newGPIODirection(root, 17, invert)
		if err != nil {
			t.Fatalf("newGPIODirection: %v", err)
		}
		if b, _ := os.ReadFile(filepath.Join(pin, "direction")); string(b) != "out" {
			t.Errorf("direction: got %q", b)
		}
		for _, on := range []bool{true, false} {
			if err := d.SetTransmit(on); err != nil {
				t.Fatalf("SetTransmit: %v", err)
			}
			exp := "0"
			if on != invert {
				exp = "1"
			}
			if b, _ := os.ReadFile(filepath.Join(pin, "value")); string(b) != exp {
				t.Errorf("invert=%v transmit=%v: got %q, expected %q", invert, on, b, exp)
			}
		}
	}
}

func TestGPIOExport(t *testing.T) {
	root := t.TempDir()
	// no gpio22 directory appears, as there is no kernel behind it
	if _, err := newGPIODirection(root, 22, false); err == nil {
		t.Errorf("expected error")
	}
	if b, _ := os.ReadFile(filepath.Join(root, "export")); string(b) != "22" {
		t.Errorf("export: got %q", b)
	}
}

type fakeModemLines struct {
	rts, dtr []bool
}

func (f *fakeModemLines) SetRTS(on bool) error {
	f.rts = append(f.rts, on)
	return nil
}

func (f *fakeModemLines) SetDTR(on bool) error {
	f.dtr = append(f.dtr, on)
	return nil
}

func TestModemLineDirection(t *testing.T) {
	lines := &fakeModemLines{}
	d, err := NewDirectionControl(&SerialConfig{Direction: "rts"}, lines)
	if err != nil {
		t.Fatalf("rts: %v", err)
	}
	d.SetTransmit(true)
	d.SetTransmit(false)

	d, err = NewDirectionControl(&SerialConfig{Direction: "dtr", DirectionInvert: true}, lines)
	if err != nil {
		t.Fatalf("dtr: %v", err)
	}
	d.SetTransmit(true)

	if len(lines.rts) != 2 || !lines.rts[0] || lines.rts[1] {
		t.Errorf("rts: got %v", lines.rts)
	}
	if len(lines.dtr) != 1 || lines.dtr[0] {
		t.Errorf("dtr: got %v", lines.dtr)
	}
}

func TestDirectionControlModes(t *testing.T) {
	for _, mode := range []string{"", "none"} {
		d, err := NewDirectionControl(&SerialConfig{Direction: mode}, nil)
		if err != nil || d.SetTransmit(true) != nil {
			t.Errorf("%q: %v", mode, err)
		}
	}
	if _, err := NewDirectionControl(&SerialConfig{Direction: "rs485"}, nil); err == nil {
		t.Errorf("unknown mode accepted")
	}
}

func TestDirectionControlGPIO(t *testing.T) {
	root := t.TempDir()
	pin := filepath.Join(root, "gpio18")
	os.Mkdir(pin, 0755)
	config := &SerialConfig{Direction: "gpio", DirectionPin: 18, DirectionInvert: true}
	d, err := newDirectionControl(config, nil, root)
	if err != nil {
		t.Fatalf("gpio: %v", err)
	}
	d.SetTransmit(true)
	if b, _ := os.ReadFile(filepath.Join(pin, "value")); string(b) != "0" {
		t.Errorf("value: got %q", b)
	}
}
