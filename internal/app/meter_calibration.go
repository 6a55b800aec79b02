// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/relabs-tech/sky_quality/internal/calibration"
	"github.com/relabs-tech/sky_quality/internal/meter"
	"github.com/relabs-tech/sky_quality/internal/sky"
)

// lockedMeter serializes meter reads with calibration sessions borrowing the
// same rig.
type lockedMeter struct {
	m  *meter.Meter
	mu *sync.Mutex
}

func (l lockedMeter) Read() (sky.Reading, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.Read()
}

// sharedRig lends r to a calibration session. Measuring pauses until the
// session closes the returned rig; the hardware itself stays open.
func sharedRig(r *rig, mu *sync.Mutex) func() (*rig, error) {
	return func() (*rig, error) {
		mu.Lock()
		return &rig{
			sensor: r.sensor,
			ranger: r.ranger,
			close: func() error {
				mu.Unlock()
				return nil
			},
		}, nil
	}
}

// meterCalibration is the calibration service of the measuring process. A
// finished table replaces the meter's table straight away.
func meterCalibration(ctx context.Context, r *rig, mu *sync.Mutex, store calibration.Store, m *meter.Meter) *calibrationService {
	return &calibrationService{
		openRig:     sharedRig(r, mu),
		store:       store,
		sampleDelay: calibration.DefaultSampleDelay,
		done:        func(res *calibration.Result) { useResult(m, res) },
		shutdown:    ctx,
	}
}

// useResult installs a finished calibration on m. An unsaved table is used
// until the process exits.
func useResult(m *meter.Meter, res *calibration.Result) {
	m.UseTable(res.Table, res.Saved)
	if res.Saved {
		log.Printf("meter: using calibration %s (%d points)", res.Table.ID, res.Table.Points())
		return
	}
	log.Printf("meter: calibration %s not saved (%v), using it until restart", res.Table.ID, res.SaveErr)
}

func serveMeterCalibration(ctx context.Context, port int, svc *calibrationService) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/calibration", svc.HandleWS)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	go func() {
		log.Printf("meter: calibration websocket on %s/ws/calibration", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("meter: calibration server: %v", err)
		}
	}()
}
