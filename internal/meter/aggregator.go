// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package meter

import (
	"fmt"
	"time"

	"github.com/relabs-tech/sky_quality/internal/sky"
)

// Reader supplies raw samples.
type Reader interface {
	ReadRawChannels() (sky.RawSample, error)
}

// Accumulation is a running sum of visible counts.
type Accumulation struct {
	VisibleSum float64
	Count      int
	Last       sky.RawSample
}

// Mean returns VisibleSum / Count, or 0 for an empty accumulation.
func (a Accumulation) Mean() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.VisibleSum / float64(a.Count)
}

// Aggregator extends an accumulation with fresh reads until enough signal is
// collected.
type Aggregator struct {
	sensor Reader
	sleep  func(time.Duration)
}

func NewAggregator(sensor Reader) *Aggregator {
	return &Aggregator{sensor: sensor, sleep: time.Sleep}
}

// Accumulate reads, after waiting delay each time, while the sum is below
// minVisible and fewer than maxSamples samples have been counted. The seed
// counts towards maxSamples. Saturated samples are not filtered here.
func (a *Aggregator) Accumulate(seed Accumulation, maxSamples int, minVisible float64, delay time.Duration) (Accumulation, error) {
	acc := seed
	for acc.VisibleSum < minVisible && acc.Count < maxSamples {
		if delay > 0 {
			a.sleep(delay)
		}
		s, err := a.sensor.ReadRawChannels()
		if err != nil {
			return acc, fmt.Errorf("aggregate sample %d: %w", acc.Count+1, err)
		}
		acc.VisibleSum += float64(s.Visible())
		acc.Count++
		acc.Last = s
	}
	return acc, nil
}
