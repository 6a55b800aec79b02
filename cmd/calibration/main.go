// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Guided calibration of the sky-quality meter against a reference meter.
// Each stage sweeps every gain/integration setting while the operator holds
// the sensor and the reference on the same sky, then records the reference
// brightness against the mean visible signal of each usable setting. Run
// stages at several sky brightnesses (dusk to full dark) for a useful table.
//
// Output:
//
//	The table is written to the configured calibration store (CALIBRATION_FILE
//	or the sqlite database). If the store is read-only, for example because the
//	device storage is mounted by a host, the save waits until it is writable.
//
// Run:
//
//	go run ./cmd/calibration
//
// Notes:
//   - Stop the meter first, both need the sensor.
//   - With SQM_SERIAL_PORT set, the reference prompt is pre-filled from an SQM-LU.
package main

import (
	"log"

	"github.com/relabs-tech/sky_quality/internal/app"
	"github.com/relabs-tech/sky_quality/internal/config"
)

func main() {
	if err := config.InitGlobal("sky_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunCalibration(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
