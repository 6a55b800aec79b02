// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package display shows the three readout fields of the meter.
package display

import (
	"fmt"
	"log"
	"sync"

	"github.com/relabs-tech/sky_quality/internal/sky"
)

// Field identifies one text line of the display.
type Field int

const (
	FieldVisible Field = iota
	FieldInfrared
	FieldBrightness

	fieldCount
)

func (f Field) String() string {
	switch f {
	case FieldVisible:
		return "visible"
	case FieldInfrared:
		return "infrared"
	case FieldBrightness:
		return "brightness"
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// Display accepts text for a field. Updates are fire-and-forget: failures are
// logged by the implementation and never reach the caller.
type Display interface {
	SetField(f Field, text string)
}

// Show writes a reading to all three fields.
func Show(d Display, r sky.Reading) {
	vis, ir, brightness := Format(r)
	d.SetField(FieldVisible, vis)
	d.SetField(FieldInfrared, ir)
	d.SetField(FieldBrightness, brightness)
}

// Format renders the three field texts for r. The visible field is ch0 - ch1.
// An invalid reading shows a placeholder instead of a brightness.
func Format(r sky.Reading) (visible, infrared, brightness string) {
	visible = fmt.Sprintf("Vis: %d", sky.RawSample{Ch0: r.Ch0, Ch1: r.Ch1}.Visible())
	infrared = fmt.Sprintf("IR:  %d", r.Ch1)
	if !r.Valid {
		return visible, infrared, "Sky: --.-- " + r.Setting.String()
	}
	return visible, infrared, fmt.Sprintf("Sky: %.2f mpsas", r.MPSAS)
}

// LogDisplay logs field changes. It stands in for the panel on headless runs.
type LogDisplay struct {
	mu     sync.Mutex
	fields [fieldCount]string
}

func (d *LogDisplay) SetField(f Field, text string) {
	if f < 0 || f >= fieldCount {
		log.Printf("display: unknown field %d", int(f))
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fields[f] == text {
		return
	}
	d.fields[f] = text
	log.Printf("display: %s = %q", f, text)
}

// Text returns the current text of f.
func (d *LogDisplay) Text(f Field) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f < 0 || f >= fieldCount {
		return ""
	}
	return d.fields[f]
}
