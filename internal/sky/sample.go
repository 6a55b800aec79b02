// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sky

import (
	"time"

	"github.com/relabs-tech/sky_quality/internal/env"
)

const (
	// VisibleFloor is the smallest visible signal distinguishable from the sensor noise floor.
	VisibleFloor = 128

	// SaturationValue is the channel count reported when the ADC is saturated.
	SaturationValue = 0xFFFF
)

// RawSample is one pair of photon counts read from the sensor.
type RawSample struct {
	Ch0 uint16 `json:"ch0"` // full spectrum
	Ch1 uint16 `json:"ch1"` // infrared
}

// Visible returns ch0 - ch1. It can be negative on a noisy dark read.
func (s RawSample) Visible() int {
	return int(s.Ch0) - int(s.Ch1)
}

// Saturated reports whether either channel is pinned at full scale.
func (s RawSample) Saturated() bool {
	return s.Ch0 == SaturationValue || s.Ch1 == SaturationValue
}

// Reading is the result of one measurement cycle.
type Reading struct {
	Ch0     uint16       `json:"ch0"`
	Ch1     uint16       `json:"ch1"`
	MPSAS   float64      `json:"mpsas"`
	Valid   bool         `json:"valid"` // false: calibrating or out of range, MPSAS is meaningless
	Lux     float64      `json:"lux"`
	Setting RangeSetting `json:"setting"`
	Time    time.Time    `json:"time"`

	// Ambient is set when an ambient sensor is fitted.
	Ambient *env.Sample `json:"ambient,omitempty"`
}
