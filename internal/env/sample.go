// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package env

// Sample is one ambient measurement taken next to the light sensor.
type Sample struct {
	Temperature float64 `json:"temp_c"`       // °C
	PressureHPa float64 `json:"pressure_hpa"` // hPa
}
