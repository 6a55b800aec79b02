// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration maps normalized visible-light readings to sky brightness
// (MPSAS) using a table captured against a reference meter, one bucket per
// gain/integration setting.
package calibration

import (
	"math"
	"sort"
	"time"

	"github.com/relabs-tech/sky_quality/internal/sky"
)

// Point pairs a mean visible signal with the reference brightness measured at
// the same time.
type Point struct {
	Visible float64 `json:"visible"`
	MPSAS   float64 `json:"mpsas"`
}

// Bucket holds the points of one range setting, ascending by Visible once the
// table is sorted. Equal Visible values keep their capture order.
type Bucket []Point

// Table is the full calibration: a bucket per range setting. It is built by a
// Procedure and read-only afterwards.
type Table struct {
	ID        string
	CreatedAt time.Time

	buckets map[sky.RangeSetting]Bucket
}

// NewTable returns an empty table.
func NewTable(id string, createdAt time.Time) *Table {
	return &Table{
		ID:        id,
		CreatedAt: createdAt,
		buckets:   make(map[sky.RangeSetting]Bucket),
	}
}

// Add appends p to the bucket of s. Call Sort before using the table for lookups.
func (t *Table) Add(s sky.RangeSetting, p Point) {
	if t.buckets == nil {
		t.buckets = make(map[sky.RangeSetting]Bucket)
	}
	t.buckets[s] = append(t.buckets[s], p)
}

// Sort orders every bucket ascending by visible signal.
func (t *Table) Sort() {
	for _, b := range t.buckets {
		sort.SliceStable(b, func(i, j int) bool { return b[i].Visible < b[j].Visible })
	}
}

// Bucket returns the points recorded for s (nil if none).
func (t *Table) Bucket(s sky.RangeSetting) Bucket {
	if t == nil {
		return nil
	}
	return t.buckets[s]
}

// Settings lists the settings that have a bucket, gain-major.
func (t *Table) Settings() []sky.RangeSetting {
	if t == nil {
		return nil
	}
	out := make([]sky.RangeSetting, 0, len(t.buckets))
	for s := range t.buckets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Gain != out[j].Gain {
			return out[i].Gain < out[j].Gain
		}
		return out[i].Integration < out[j].Integration
	})
	return out
}

// Points returns the total number of points across all buckets.
func (t *Table) Points() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, b := range t.buckets {
		n += len(b)
	}
	return n
}

// Lookup interpolates the brightness for visible in the bucket of s. It fails
// (ok == false) when the table or bucket is missing or empty, or when visible
// lies outside the recorded range: the table never extrapolates.
func (t *Table) Lookup(s sky.RangeSetting, visible float64) (mpsas float64, ok bool) {
	return t.Bucket(s).Interpolate(visible)
}

// Interpolate does a piecewise-linear lookup over a sorted bucket. An exact hit
// returns the first point with that visible value.
func (b Bucket) Interpolate(visible float64) (float64, bool) {
	if len(b) == 0 || math.IsNaN(visible) {
		return 0, false
	}
	if visible < b[0].Visible || visible > b[len(b)-1].Visible {
		return 0, false
	}

	i := sort.Search(len(b), func(i int) bool { return b[i].Visible >= visible })
	hi := b[i]
	if hi.Visible == visible {
		return hi.MPSAS, true
	}
	// visible > b[0].Visible here, so i >= 1 and lo.Visible < visible < hi.Visible
	lo := b[i-1]
	frac := (visible - lo.Visible) / (hi.Visible - lo.Visible)
	return lo.MPSAS + frac*(hi.MPSAS-lo.MPSAS), true
}
