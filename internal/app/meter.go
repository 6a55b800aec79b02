// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/sky_quality/internal/config"
	"github.com/relabs-tech/sky_quality/internal/display"
	"github.com/relabs-tech/sky_quality/internal/meter"
	"github.com/relabs-tech/sky_quality/internal/ranging"
	"github.com/relabs-tech/sky_quality/internal/readingdb"
	"github.com/relabs-tech/sky_quality/internal/sensors"
	"github.com/relabs-tech/sky_quality/internal/sky"
)

// RunMeter measures continuously, showing each reading on the display,
// publishing it over MQTT and logging it to the reading history.
func RunMeter() error {
	cfg := config.Get()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := openRig(cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	st, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	m := meter.New(r.sensor, r.ranger)
	loadCalibration(st.calibration, m)

	var disp display.Display = &display.LogDisplay{}
	if cfg.DisplayEnabled {
		panel, err := display.NewPanel(cfg.I2CBus, cfg.DisplayWidth, cfg.DisplayHeight)
		if err != nil {
			log.Printf("display: %v, logging readings instead", err)
		} else {
			defer panel.Close()
			disp = panel
		}
	}

	var ambient sensors.AmbientSensor
	if cfg.AmbientSensorEnabled {
		bmp, err := sensors.NewBMP280(cfg.I2CBus, cfg.AmbientI2CAddr)
		if err != nil {
			log.Printf("sensor: ambient sensor unavailable: %v", err)
		} else {
			defer bmp.Close()
			ambient = bmp
		}
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDMeter, "meter")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	sink := &readingSink{
		display: disp,
		client:  client,
		topic:   cfg.TopicReading,
		history: st.readings,
		ambient: ambient,
	}

	var rigMu sync.Mutex
	if cfg.MeterCalibrationPort > 0 {
		svc := meterCalibration(ctx, r, &rigMu, st.calibration, m)
		serveMeterCalibration(ctx, cfg.MeterCalibrationPort, svc)
	}

	interval := time.Duration(cfg.MeterSampleInterval) * time.Millisecond
	log.Printf("meter: sampling every %s, publishing to %s", interval, cfg.TopicReading)
	return measureLoop(ctx, lockedMeter{m: m, mu: &rigMu}, interval, sink.handle)
}

// readingSource produces one reading per call.
type readingSource interface {
	Read() (sky.Reading, error)
}

// measureLoop reads every interval until ctx is cancelled. Range
// configuration failures end the loop; other read errors are logged and the
// loop carries on.
func measureLoop(ctx context.Context, m readingSource, interval time.Duration, handle func(sky.Reading)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("meter: shutting down")
			return nil
		case <-ticker.C:
		}

		reading, err := m.Read()
		if errors.Is(err, ranging.ErrHardwareConfig) {
			return fmt.Errorf("meter: %w", err)
		}
		if err != nil {
			log.Printf("meter: %v", err)
			continue
		}
		handle(reading)
	}
}

type readingSink struct {
	display display.Display
	client  mqtt.Client
	topic   string
	history *readingdb.DB
	ambient sensors.AmbientSensor
}

func (s *readingSink) handle(r sky.Reading) {
	display.Show(s.display, r)

	if s.ambient != nil {
		a, err := s.ambient.ReadAmbient()
		if err != nil {
			log.Printf("sensor: %v", err)
		} else {
			r.Ambient = &a
		}
	}

	payload, err := json.Marshal(r)
	if err != nil {
		log.Printf("meter: reading marshal error: %v", err)
		return
	}
	if s.client != nil {
		token := s.client.Publish(s.topic, 0, false, payload)
		token.Wait()
		if token.Error() != nil {
			log.Printf("meter: MQTT publish error: %v", token.Error())
		}
	}

	if s.history != nil {
		if err := s.history.RecordReading(r); err != nil {
			log.Printf("storage: %v", err)
		}
	}
}
