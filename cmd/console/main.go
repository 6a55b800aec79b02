// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/sky_quality/internal/app"
)

func main() {
	sky := flag.Float64("sky", 20.5, "simulated sky brightness (mpsas)")
	table := flag.String("table", "", "calibration file to convert readings with")
	flag.Parse()

	log.Println("starting sky-quality (mock console)")

	if err := app.RunMockConsole(*sky, *table); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
