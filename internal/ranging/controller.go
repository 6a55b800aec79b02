// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ranging owns the sensor's current gain and integration indices.
package ranging

import (
	"errors"
	"fmt"

	"github.com/relabs-tech/sky_quality/internal/sky"
)

// ErrHardwareConfig wraps any failure to program gain or integration. The
// sensor state is unknown afterwards, callers should stop measuring.
var ErrHardwareConfig = errors.New("sensor range configuration failed")

// Configurer is the part of the sensor driver that sets the range.
type Configurer interface {
	SetGain(code byte) error
	SetIntegrationTime(code byte) error
}

// Controller keeps the current RangeSetting within the bounds of the gain and
// integration tables and pushes every change to the hardware.
type Controller struct {
	hw           Configurer
	gains        []sky.Level
	integrations []sky.Level
	current      sky.RangeSetting
}

// New creates a controller at the lowest gain and integration and programs the
// hardware accordingly.
func New(hw Configurer, gains, integrations []sky.Level) (*Controller, error) {
	if len(gains) == 0 || len(integrations) == 0 {
		return nil, fmt.Errorf("ranging: empty range table (gains=%d, integrations=%d)", len(gains), len(integrations))
	}
	c := &Controller{hw: hw, gains: gains, integrations: integrations}
	if err := c.Apply(sky.RangeSetting{}); err != nil {
		return nil, err
	}
	return c, nil
}

// Current returns the active setting.
func (c *Controller) Current() sky.RangeSetting {
	return c.current
}

// MaxGain and MaxIntegration are the highest valid indices.
func (c *Controller) MaxGain() int        { return len(c.gains) - 1 }
func (c *Controller) MaxIntegration() int { return len(c.integrations) - 1 }

// GainScale returns the gain multiplier of the active setting.
func (c *Controller) GainScale() float64 {
	return c.gains[c.current.Gain].Scale
}

// IntegrationScale returns the integration time (ms) of the active setting.
func (c *Controller) IntegrationScale() float64 {
	return c.integrations[c.current.Integration].Scale
}

// BumpGain moves the gain index one step and programs the hardware with the
// resulting (clamped) code. It reports atLimit when the index was already at
// the boundary and did not move.
func (c *Controller) BumpGain(increase bool) (atLimit bool, err error) {
	idx, atLimit := step(c.current.Gain, increase, c.MaxGain())
	c.current.Gain = idx
	if err := c.hw.SetGain(c.gains[idx].Code); err != nil {
		return atLimit, fmt.Errorf("%w: gain %d: %v", ErrHardwareConfig, idx, err)
	}
	return atLimit, nil
}

// BumpIntegration is BumpGain for the integration index.
func (c *Controller) BumpIntegration(increase bool) (atLimit bool, err error) {
	idx, atLimit := step(c.current.Integration, increase, c.MaxIntegration())
	c.current.Integration = idx
	if err := c.hw.SetIntegrationTime(c.integrations[idx].Code); err != nil {
		return atLimit, fmt.Errorf("%w: integration %d: %v", ErrHardwareConfig, idx, err)
	}
	return atLimit, nil
}

// Apply jumps to s, programming both gain and integration. Settings outside
// the tables are rejected without touching the hardware.
func (c *Controller) Apply(s sky.RangeSetting) error {
	if !c.Valid(s) {
		return fmt.Errorf("ranging: setting %s outside table (max g%d/i%d)", s, c.MaxGain(), c.MaxIntegration())
	}
	if err := c.hw.SetGain(c.gains[s.Gain].Code); err != nil {
		return fmt.Errorf("%w: gain %d: %v", ErrHardwareConfig, s.Gain, err)
	}
	c.current.Gain = s.Gain
	if err := c.hw.SetIntegrationTime(c.integrations[s.Integration].Code); err != nil {
		return fmt.Errorf("%w: integration %d: %v", ErrHardwareConfig, s.Integration, err)
	}
	c.current.Integration = s.Integration
	return nil
}

// Valid reports whether s indexes both tables.
func (c *Controller) Valid(s sky.RangeSetting) bool {
	return s.Gain >= 0 && s.Gain <= c.MaxGain() &&
		s.Integration >= 0 && s.Integration <= c.MaxIntegration()
}

// Settings lists the full gain × integration cross-product, gain-major.
func (c *Controller) Settings() []sky.RangeSetting {
	out := make([]sky.RangeSetting, 0, len(c.gains)*len(c.integrations))
	for g := range c.gains {
		for i := range c.integrations {
			out = append(out, sky.RangeSetting{Gain: g, Integration: i})
		}
	}
	return out
}

func step(idx int, increase bool, top int) (int, bool) {
	if increase {
		if idx >= top {
			return top, true
		}
		return idx + 1, false
	}
	if idx <= 0 {
		return 0, true
	}
	return idx - 1, false
}
