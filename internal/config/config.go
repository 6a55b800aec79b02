// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Calibration store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Config holds all application configuration values.
type Config struct {
	// Sensor
	I2CBus        string // periph bus name, empty for the first bus
	SensorI2CAddr uint16
	UseMockSensor bool
	MockSkyMPSAS  float64

	// Ambient sensor
	AmbientSensorEnabled bool
	AmbientI2CAddr       uint16

	// Display
	DisplayEnabled bool
	DisplayWidth   int
	DisplayHeight  int

	// MQTT
	MQTTBroker          string
	MQTTClientIDMeter   string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string

	// Topics
	TopicReading string

	// Timing
	MeterSampleInterval  int // milliseconds
	RemountRetryInterval int // milliseconds

	// Storage
	CalibrationStore string // "file" or "sqlite"
	CalibrationFile  string
	ReadingDBPath    string

	// Reference meter
	SQMSerialPort string
	SQMBaudRate   int

	// Web Server
	WebServerPort int

	// MeterCalibrationPort, when set, makes the meter serve the websocket
	// calibration itself so a finished table is used without a restart.
	MeterCalibrationPort int
}

// Package-level singleton: InitGlobal sets it once, Get reads it under the
// read lock.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// defaults returns a Config with every optional key at its default.
func defaults() *Config {
	return &Config{
		SensorI2CAddr:        0x29,
		MockSkyMPSAS:         20.5,
		AmbientI2CAddr:       0x76,
		DisplayWidth:         128,
		DisplayHeight:        32,
		MQTTClientIDMeter:    "sky-meter",
		MQTTClientIDConsole:  "sky-console",
		MQTTClientIDWeb:      "sky-web",
		MeterSampleInterval:  500,
		RemountRetryInterval: 5000,
		CalibrationStore:     StoreFile,
		SQMBaudRate:          115200,
		WebServerPort:        8080,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return parse(file)
}

func parse(r io.Reader) (*Config, error) {
	cfg := defaults()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		if err := cfg.setValue(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Sensor
	case "I2C_BUS":
		c.I2CBus = value
	case "SENSOR_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid SENSOR_I2C_ADDR %q: %w", value, err)
		}
		c.SensorI2CAddr = uint16(addr)
	case "USE_MOCK_SENSOR":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid USE_MOCK_SENSOR %q: %w", value, err)
		}
		c.UseMockSensor = v
	case "MOCK_SKY_MPSAS":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MOCK_SKY_MPSAS %q: %w", value, err)
		}
		c.MockSkyMPSAS = v

	// Ambient sensor
	case "AMBIENT_SENSOR_ENABLED":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid AMBIENT_SENSOR_ENABLED %q: %w", value, err)
		}
		c.AmbientSensorEnabled = v
	case "AMBIENT_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid AMBIENT_I2C_ADDR %q: %w", value, err)
		}
		c.AmbientI2CAddr = uint16(addr)

	// Display
	case "DISPLAY_ENABLED":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_ENABLED %q: %w", value, err)
		}
		c.DisplayEnabled = v
	case "DISPLAY_WIDTH":
		w, err := positiveInt(key, value)
		if err != nil {
			return err
		}
		c.DisplayWidth = w
	case "DISPLAY_HEIGHT":
		h, err := positiveInt(key, value)
		if err != nil {
			return err
		}
		c.DisplayHeight = h

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_METER":
		c.MQTTClientIDMeter = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value

	// Topics
	case "TOPIC_READING":
		c.TopicReading = value

	// Timing
	case "METER_SAMPLE_INTERVAL":
		interval, err := positiveInt(key, value)
		if err != nil {
			return err
		}
		c.MeterSampleInterval = interval
	case "REMOUNT_RETRY_INTERVAL":
		interval, err := positiveInt(key, value)
		if err != nil {
			return err
		}
		c.RemountRetryInterval = interval

	// Storage
	case "CALIBRATION_STORE":
		if value != StoreFile && value != StoreSQLite {
			return fmt.Errorf("CALIBRATION_STORE must be %q or %q, got %q", StoreFile, StoreSQLite, value)
		}
		c.CalibrationStore = value
	case "CALIBRATION_FILE":
		c.CalibrationFile = value
	case "READING_DB_PATH":
		c.ReadingDBPath = value

	// Reference meter
	case "SQM_SERIAL_PORT":
		c.SQMSerialPort = value
	case "SQM_BAUD_RATE":
		rate, err := positiveInt(key, value)
		if err != nil {
			return err
		}
		c.SQMBaudRate = rate

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", port)
		}
		c.WebServerPort = port
	case "METER_CALIBRATION_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid METER_CALIBRATION_PORT %q: %w", value, err)
		}
		if port < 0 || port > 65535 {
			return fmt.Errorf("METER_CALIBRATION_PORT must be 0-65535, got %d", port)
		}
		c.MeterCalibrationPort = port

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func positiveInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, v)
	}
	return v, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicReading == "" {
		return fmt.Errorf("TOPIC_READING is required")
	}
	if c.CalibrationStore == StoreFile && c.CalibrationFile == "" {
		return fmt.Errorf("CALIBRATION_FILE is required when CALIBRATION_STORE=%s", StoreFile)
	}
	if c.CalibrationStore == StoreSQLite && c.ReadingDBPath == "" {
		return fmt.Errorf("READING_DB_PATH is required when CALIBRATION_STORE=%s", StoreSQLite)
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once so only the first call loads; later calls return nil.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
