// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/relabs-tech/sky_quality/internal/sky"
)

// SchemaVersion is the version written to encoded tables.
const SchemaVersion = 1

type tableFile struct {
	SchemaVersion int          `json:"schema_version"`
	ID            string       `json:"id"`
	CreatedAt     time.Time    `json:"created_at"`
	Buckets       []bucketFile `json:"buckets"`
}

type bucketFile struct {
	Gain        int          `json:"gain"`
	Integration int          `json:"integration"`
	Points      [][2]float64 `json:"points"` // (visible, mpsas)
}

// MarshalJSON encodes the table with buckets in gain-major order.
func (t *Table) MarshalJSON() ([]byte, error) {
	f := tableFile{
		SchemaVersion: SchemaVersion,
		ID:            t.ID,
		CreatedAt:     t.CreatedAt,
		Buckets:       []bucketFile{},
	}
	for _, s := range t.Settings() {
		b := t.buckets[s]
		pts := make([][2]float64, len(b))
		for i, p := range b {
			pts[i] = [2]float64{p.Visible, p.MPSAS}
		}
		f.Buckets = append(f.Buckets, bucketFile{Gain: s.Gain, Integration: s.Integration, Points: pts})
	}
	return json.Marshal(f)
}

// UnmarshalJSON decodes a table and re-sorts its buckets.
func (t *Table) UnmarshalJSON(data []byte) error {
	var f tableFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.SchemaVersion != SchemaVersion {
		return fmt.Errorf("calibration: unsupported schema version %d", f.SchemaVersion)
	}

	*t = *NewTable(f.ID, f.CreatedAt)
	for _, b := range f.Buckets {
		s := sky.RangeSetting{Gain: b.Gain, Integration: b.Integration}
		if s.Gain < 0 || s.Integration < 0 {
			return fmt.Errorf("calibration: negative range index in bucket %s", s)
		}
		for _, p := range b.Points {
			t.Add(s, Point{Visible: p[0], MPSAS: p[1]})
		}
	}
	t.Sort()
	return nil
}

// Encode returns the indented JSON form of t.
func Encode(t *Table) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// Decode parses a table produced by Encode.
func Decode(data []byte) (*Table, error) {
	t := &Table{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("decode calibration: %w", err)
	}
	return t, nil
}
