// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"fmt"
	"image"
	"log"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"
)

// Panel drives an SSD1306 OLED (I2C address 0x3C) with one text line per field.
type Panel struct {
	bus i2c.BusCloser
	dev *ssd1306.Dev

	mu     sync.Mutex
	fields [fieldCount]string
	bounds image.Rectangle
}

// NewPanel opens busName ("" for the first bus) and initializes a w×h panel.
func NewPanel(busName string, w, h int) (*Panel, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}

	opts := ssd1306.DefaultOpts
	opts.W, opts.H = w, h
	dev, err := ssd1306.NewI2C(bus, &opts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: %dx%d panel initialized", w, h)

	return &Panel{bus: bus, dev: dev, bounds: image.Rect(0, 0, w, h)}, nil
}

func (p *Panel) SetField(f Field, text string) {
	if f < 0 || f >= fieldCount {
		log.Printf("display: unknown field %d", int(f))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fields[f] == text {
		return
	}
	p.fields[f] = text

	img := render(p.bounds, p.fields)
	if err := p.dev.Draw(p.dev.Bounds(), img, image.Point{}); err != nil {
		log.Printf("display: error updating panel: %v", err)
	}
}

// Close blanks the panel and releases the bus.
func (p *Panel) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.dev.Halt(); err != nil {
		log.Printf("display: halt: %v", err)
	}
	return p.bus.Close()
}

// render draws the fields as evenly spaced text lines.
func render(bounds image.Rectangle, fields [fieldCount]string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(bounds)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	lineHeight := bounds.Dy() / len(fields)
	descent := basicfont.Face7x13.Descent
	for i, text := range fields {
		if text == "" {
			continue
		}
		drawer.Dot = fixed.P(0, (i+1)*lineHeight-descent+2)
		drawer.DrawString(text)
	}
	return img
}
