// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"log"

	"github.com/relabs-tech/sky_quality/internal/app"
	"github.com/relabs-tech/sky_quality/internal/config"
)

func main() {
	log.Println("starting sky-quality web server (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal("sky_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Println("Note: web calibration opens the sensor itself, stop the meter before starting one")

	if err := app.RunWeb(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
