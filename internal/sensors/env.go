// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/sky_quality/internal/env"
)

// BMP280DefaultAddr is the BMP280 address with SDO tied low.
const BMP280DefaultAddr = 0x76

// AmbientSensor reports the conditions around the light sensor.
type AmbientSensor interface {
	ReadAmbient() (env.Sample, error)
}

// BMP280 is a Bosch BMP280/BME280 on I2C.
type BMP280 struct {
	bus i2c.BusCloser
	dev *bmxx80.Dev
}

func NewBMP280(busName string, addr uint16) (*BMP280, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("BMP I2C open: %w", err)
	}

	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("BMP init: %w", err)
	}
	log.Printf("sensor: BMP280 ready at 0x%02X", addr)

	return &BMP280{bus: bus, dev: dev}, nil
}

// ReadAmbient reads temperature and pressure.
func (b *BMP280) ReadAmbient() (env.Sample, error) {
	var e physic.Env
	if err := b.dev.Sense(&e); err != nil {
		return env.Sample{}, fmt.Errorf("BMP sense: %w", err)
	}

	pressurePa := float64(e.Pressure) / float64(physic.Pascal)
	return env.Sample{
		Temperature: e.Temperature.Celsius(),
		PressureHPa: pressurePa / 100.0, // 1 hPa = 100 Pa
	}, nil
}

func (b *BMP280) Close() error {
	if err := b.dev.Halt(); err != nil {
		log.Printf("sensor: BMP halt: %v", err)
	}
	return b.bus.Close()
}
