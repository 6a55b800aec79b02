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
	log.Println("starting sky-quality meter")

	// Load configuration
	if err := config.InitGlobal("sky_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunMeter(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
