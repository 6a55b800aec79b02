// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/sky_quality/internal/calibration"
	"github.com/relabs-tech/sky_quality/internal/config"
	"github.com/relabs-tech/sky_quality/internal/meter"
	"github.com/relabs-tech/sky_quality/internal/ranging"
	"github.com/relabs-tech/sky_quality/internal/readingdb"
	"github.com/relabs-tech/sky_quality/internal/sensors"
)

// calibrationName is the row the sqlite store keeps the table under.
const calibrationName = "default"

// rig is the light sensor together with the controller owning its range.
type rig struct {
	sensor sensors.LightSensor
	ranger *ranging.Controller
	close  func() error
}

func (r *rig) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

func openRig(cfg *config.Config) (*rig, error) {
	var (
		sensor  sensors.LightSensor
		closeFn func() error
	)
	if cfg.UseMockSensor {
		log.Printf("sensor: using simulated sky at %.2f mpsas", cfg.MockSkyMPSAS)
		sensor = sensors.NewMockLightSensor(cfg.MockSkyMPSAS)
	} else {
		dev, err := sensors.NewTSL2591(cfg.I2CBus, cfg.SensorI2CAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize TSL2591: %w", err)
		}
		log.Printf("sensor: TSL2591 ready at 0x%02X", cfg.SensorI2CAddr)
		sensor, closeFn = dev, dev.Close
	}

	ctrl, err := ranging.New(sensor, sensors.TSL2591Gains, sensors.TSL2591Integrations)
	if err != nil {
		if closeFn != nil {
			closeFn()
		}
		return nil, fmt.Errorf("sensor: %w", err)
	}
	return &rig{sensor: sensor, ranger: ctrl, close: closeFn}, nil
}

// storage groups the calibration store and the optional reading history.
type storage struct {
	calibration calibration.Store
	readings    *readingdb.DB
}

func openStorage(cfg *config.Config) (*storage, error) {
	st := &storage{}
	if cfg.ReadingDBPath != "" {
		db, err := readingdb.Open(cfg.ReadingDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open reading database %s: %w", cfg.ReadingDBPath, err)
		}
		st.readings = db
		log.Printf("storage: reading history in %s", cfg.ReadingDBPath)
	}

	retry := time.Duration(cfg.RemountRetryInterval) * time.Millisecond
	switch cfg.CalibrationStore {
	case config.StoreSQLite:
		cs := st.readings.CalibrationStore(calibrationName)
		if retry > 0 {
			cs.RetryInterval = retry
		}
		st.calibration = cs
	default:
		st.calibration = calibration.NewFileStore(cfg.CalibrationFile, retry)
	}
	return st, nil
}

func (s *storage) Close() error {
	if s.readings == nil {
		return nil
	}
	return s.readings.Close()
}

// loadCalibration installs the stored table on m. A missing or unreadable
// table leaves m uncalibrated.
func loadCalibration(store calibration.Store, m *meter.Meter) {
	table, err := store.Load()
	switch {
	case errors.Is(err, calibration.ErrNotCalibrated):
		log.Println("meter: no calibration stored, readings stay invalid until calibrated")
	case err != nil:
		log.Printf("meter: unable to load calibration, running uncalibrated: %v", err)
	default:
		m.UseTable(table, true)
		log.Printf("meter: calibration %s loaded (%d points, %d settings)", table.ID, table.Points(), len(table.Settings()))
	}
}

func connectMQTT(broker, clientID, component string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	log.Printf("%s: connected to MQTT broker at %s", component, broker)
	return client, nil
}
