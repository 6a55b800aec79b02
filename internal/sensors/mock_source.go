// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"math/rand"
	"sync"

	"github.com/relabs-tech/sky_quality/internal/sky"
)

// mockCountsPerUnit scales gain × integration(ms/100) × 10^(-0.4·mpsas) into counts.
// At 20 MPSAS the lowest range reads under the visible floor and high gain at
// 200ms reads in the tens of thousands.
const mockCountsPerUnit = 5e9

// MockLightSensor simulates a TSL2591 looking at a sky of a given brightness.
// It follows the TSL2591 gain/integration tables so the autoranging behaves as
// on hardware.
type MockLightSensor struct {
	mu         sync.Mutex
	mpsas      float64
	irFraction float64
	noise      float64
	gain       byte
	atime      byte
}

// NewMockLightSensor creates a simulated sensor looking at a sky of mpsas.
func NewMockLightSensor(mpsas float64) *MockLightSensor {
	return &MockLightSensor{
		mpsas:      mpsas,
		irFraction: 0.3,
		noise:      0.02,
		gain:       TSL2591Gains[0].Code,
		atime:      TSL2591Integrations[0].Code,
	}
}

// SetSky changes the simulated sky brightness.
func (m *MockLightSensor) SetSky(mpsas float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mpsas = mpsas
}

func (m *MockLightSensor) ReadRawChannels() (sky.RawSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gain := LevelScale(TSL2591Gains, m.gain)
	integ := LevelScale(TSL2591Integrations, m.atime)

	visible := mockCountsPerUnit * gain * (integ / 100) * math.Pow(10, -0.4*m.mpsas)
	visible *= 1 + m.noise*(rand.Float64()*2-1)

	full := visible / (1 - m.irFraction)
	ir := full - visible
	return sky.RawSample{Ch0: clampCount(full), Ch1: clampCount(ir)}, nil
}

func (m *MockLightSensor) SetGain(code byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gain = code
	return nil
}

func (m *MockLightSensor) SetIntegrationTime(code byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.atime = code
	return nil
}

func clampCount(v float64) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= sky.SaturationValue {
		return sky.SaturationValue
	}
	return uint16(v)
}
