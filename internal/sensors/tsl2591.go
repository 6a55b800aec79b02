// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/relabs-tech/sky_quality/internal/sky"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// TSL2591 register map (subset).
const (
	TSL2591DefaultAddr uint16 = 0x29

	tslCommandBit    byte = 0xA0
	tslRegEnable     byte = 0x00
	tslRegControl    byte = 0x01
	tslRegDeviceID   byte = 0x12
	tslRegCh0Low     byte = 0x14
	tslEnablePowerOn byte = 0x01
	tslEnableAEN     byte = 0x02
	tslDeviceID      byte = 0x50
)

// TSL2591Gains is the gain table, lowest sensitivity first.
var TSL2591Gains = []sky.Level{
	{Code: 0x00, Scale: 1},    // low
	{Code: 0x10, Scale: 25},   // medium
	{Code: 0x20, Scale: 425},  // high
	{Code: 0x30, Scale: 9876}, // max
}

// TSL2591Integrations is the integration table in milliseconds. 100ms is left
// out, it is never useful at night.
var TSL2591Integrations = []sky.Level{
	{Code: 0x01, Scale: 200},
	{Code: 0x02, Scale: 300},
	{Code: 0x03, Scale: 400},
	{Code: 0x04, Scale: 500},
	{Code: 0x05, Scale: 600},
}

// TSL2591 drives an ams TSL2591 light-to-digital converter over I2C.
type TSL2591 struct {
	bus   i2c.BusCloser
	dev   *i2c.Dev
	gain  byte
	atime byte
}

// NewTSL2591 opens the I2C bus, checks the device ID, powers the ADC on and
// programs the lowest gain and shortest used integration time.
func NewTSL2591(busName string, addr uint16) (*TSL2591, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("tsl2591: periph host init: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("tsl2591: i2c open %q: %w", busName, err)
	}

	t, err := newTSL2591(bus, addr)
	if err != nil {
		bus.Close()
		return nil, err
	}
	log.Printf("tsl2591: initialized at 0x%02X on bus %q", addr, busName)
	return t, nil
}

func newTSL2591(bus i2c.BusCloser, addr uint16) (*TSL2591, error) {
	t := &TSL2591{
		bus:   bus,
		dev:   &i2c.Dev{Addr: addr, Bus: bus},
		gain:  TSL2591Gains[0].Code,
		atime: TSL2591Integrations[0].Code,
	}

	id := make([]byte, 1)
	if err := t.dev.Tx([]byte{tslCommandBit | tslRegDeviceID}, id); err != nil {
		return nil, fmt.Errorf("tsl2591: read device id: %w", err)
	}
	if id[0] != tslDeviceID {
		return nil, fmt.Errorf("tsl2591: unexpected device id 0x%02X at 0x%02X", id[0], addr)
	}

	if err := t.dev.Tx([]byte{tslCommandBit | tslRegEnable, tslEnablePowerOn | tslEnableAEN}, nil); err != nil {
		return nil, fmt.Errorf("tsl2591: enable: %w", err)
	}
	if err := t.writeControl(t.gain, t.atime); err != nil {
		return nil, err
	}
	return t, nil
}

// ReadRawChannels reads CH0 (full spectrum) and CH1 (infrared) in one transaction.
func (t *TSL2591) ReadRawChannels() (sky.RawSample, error) {
	buf := make([]byte, 4)
	if err := t.dev.Tx([]byte{tslCommandBit | tslRegCh0Low}, buf); err != nil {
		return sky.RawSample{}, fmt.Errorf("tsl2591: read channels: %w", err)
	}
	return sky.RawSample{
		Ch0: binary.LittleEndian.Uint16(buf[0:2]),
		Ch1: binary.LittleEndian.Uint16(buf[2:4]),
	}, nil
}

// SetGain programs the gain bits, keeping the current integration time.
func (t *TSL2591) SetGain(code byte) error {
	if err := t.writeControl(code, t.atime); err != nil {
		return err
	}
	t.gain = code
	return nil
}

// SetIntegrationTime programs the integration bits, keeping the current gain.
func (t *TSL2591) SetIntegrationTime(code byte) error {
	if err := t.writeControl(t.gain, code); err != nil {
		return err
	}
	t.atime = code
	return nil
}

// Close powers the ADC down and releases the bus.
func (t *TSL2591) Close() error {
	if err := t.dev.Tx([]byte{tslCommandBit | tslRegEnable, 0x00}, nil); err != nil {
		log.Printf("tsl2591: power off: %v", err)
	}
	return t.bus.Close()
}

func (t *TSL2591) writeControl(gain, atime byte) error {
	if err := t.dev.Tx([]byte{tslCommandBit | tslRegControl, gain | atime}, nil); err != nil {
		return fmt.Errorf("tsl2591: write control 0x%02X: %w", gain|atime, err)
	}
	return nil
}
