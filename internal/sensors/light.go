// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import "github.com/relabs-tech/sky_quality/internal/sky"

// LightSensor is the capability the meter and calibration need from a
// two-channel photodiode sensor. Implementations are not reentrant; call them
// from a single goroutine.
type LightSensor interface {
	ReadRawChannels() (sky.RawSample, error)
	SetGain(code byte) error
	SetIntegrationTime(code byte) error
}

// LevelScale returns the scale factor for code in table, or 0 if the code is unknown.
func LevelScale(table []sky.Level, code byte) float64 {
	for _, l := range table {
		if l.Code == code {
			return l.Scale
		}
	}
	return 0
}
