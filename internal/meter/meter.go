// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package meter turns raw sensor reads into sky brightness readings, moving
// the gain and integration time to keep the signal in the usable band.
package meter

import (
	"fmt"
	"sync"
	"time"

	"github.com/relabs-tech/sky_quality/internal/calibration"
	"github.com/relabs-tech/sky_quality/internal/sky"
)

const (
	// StabilizeSamples caps how many samples a reading averages.
	StabilizeSamples = 32

	// StabilizeDelay separates the averaged samples.
	StabilizeDelay = 5 * time.Millisecond
)

// Ranger is the range control the meter steps through.
type Ranger interface {
	Current() sky.RangeSetting
	BumpGain(increase bool) (atLimit bool, err error)
	BumpIntegration(increase bool) (atLimit bool, err error)
	GainScale() float64
	IntegrationScale() float64
}

// Meter produces one Reading per Read call. Read must not run concurrently
// with itself or with a calibration procedure sharing the sensor.
type Meter struct {
	sensor Reader
	ranger Ranger
	agg    *Aggregator
	now    func() time.Time

	mu         sync.RWMutex
	table      *calibration.Table
	calibrated bool
}

// New returns an uncalibrated meter. Until a table is set every reading is
// invalid.
func New(sensor Reader, ranger Ranger) *Meter {
	return &Meter{
		sensor: sensor,
		ranger: ranger,
		agg:    NewAggregator(sensor),
		now:    time.Now,
	}
}

// UseTable installs the calibration used by Read. persisted marks a table that
// is stored on the device, as opposed to one only held for this session.
func (m *Meter) UseTable(t *calibration.Table, persisted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table = t
	m.calibrated = persisted && t != nil
}

// Table returns the calibration in use, or nil.
func (m *Meter) Table() *calibration.Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table
}

// Calibrated reports whether the meter runs on a stored calibration.
func (m *Meter) Calibrated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calibrated
}

// Read takes one measurement. A too dark sample raises gain (then integration),
// a saturated one lowers it; the sample is only converted when no further
// step is possible in the needed direction or none was needed. Otherwise the
// reading comes back invalid and the next call continues the search. Only
// hardware failures are returned as errors.
func (m *Meter) Read() (sky.Reading, error) {
	first, err := m.sensor.ReadRawChannels()
	if err != nil {
		return sky.Reading{}, fmt.Errorf("meter: read: %w", err)
	}

	acceptable := true
	if first.Visible() < sky.VisibleFloor {
		if acceptable, err = m.step(true); err != nil {
			return sky.Reading{}, err
		}
	}
	if first.Saturated() {
		if acceptable, err = m.step(false); err != nil {
			return sky.Reading{}, err
		}
	}

	reading := sky.Reading{
		Ch0:     first.Ch0,
		Ch1:     first.Ch1,
		Setting: m.ranger.Current(),
		Time:    m.now(),
	}
	if !acceptable {
		return reading, nil
	}

	seed := Accumulation{VisibleSum: float64(first.Visible()), Count: 1, Last: first}
	acc, err := m.agg.Accumulate(seed, StabilizeSamples, sky.VisibleFloor, StabilizeDelay)
	if err != nil {
		return sky.Reading{}, fmt.Errorf("meter: %w", err)
	}
	reading.Ch0, reading.Ch1 = acc.Last.Ch0, acc.Last.Ch1
	reading.Lux = Lux(acc.Last, m.ranger.GainScale(), m.ranger.IntegrationScale())
	if acc.VisibleSum == 0 {
		return reading, nil
	}

	reading.MPSAS, reading.Valid = m.Table().Lookup(reading.Setting, acc.Mean())
	if !reading.Valid {
		reading.MPSAS = 0
	}
	return reading, nil
}

// step moves gain one notch, or integration when gain is exhausted, and
// discards the next sample. It reports true when both are exhausted, meaning
// the current sample is the best this range table can do.
func (m *Meter) step(increase bool) (bool, error) {
	atLimit, err := m.ranger.BumpGain(increase)
	if err != nil {
		return false, err
	}
	if atLimit {
		if atLimit, err = m.ranger.BumpIntegration(increase); err != nil {
			return false, err
		}
	}
	// first read after a range change reflects the old setting
	if _, err := m.sensor.ReadRawChannels(); err != nil {
		return false, fmt.Errorf("meter: flush read: %w", err)
	}
	return atLimit, nil
}

// Lux estimates illuminance with the TSL2591 reference formula. Zero is
// returned for a dark or saturated sample.
func Lux(s sky.RawSample, gain, integrationMs float64) float64 {
	if s.Ch0 == 0 || s.Saturated() || gain <= 0 || integrationMs <= 0 {
		return 0
	}
	cpl := integrationMs * gain / 408.0
	ch0, ch1 := float64(s.Ch0), float64(s.Ch1)
	return (ch0 - ch1) * (1 - ch1/ch0) / cpl
}
