// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/sky_quality/internal/calibration"
	"github.com/relabs-tech/sky_quality/internal/meter"
	"github.com/relabs-tech/sky_quality/internal/ranging"
	"github.com/relabs-tech/sky_quality/internal/sensors"
	"github.com/relabs-tech/sky_quality/internal/sky"
)

// RunMockConsole runs the meter against a simulated sky and prints readings.
// tablePath may be empty, readings are then all invalid.
func RunMockConsole(mpsas float64, tablePath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src := sensors.NewMockLightSensor(mpsas)
	ctrl, err := ranging.New(src, sensors.TSL2591Gains, sensors.TSL2591Integrations)
	if err != nil {
		return err
	}

	m := meter.New(src, ctrl)
	if tablePath != "" {
		loadCalibration(calibration.NewFileStore(tablePath, 0), m)
	}
	log.Printf("console: simulated sky at %.2f mpsas", mpsas)

	return measureLoop(ctx, m, 500*time.Millisecond, func(r sky.Reading) {
		fmt.Println(formatReadingLine(r))
	})
}
