package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
MQTT_BROKER=tcp://localhost:1883
TOPIC_READING=sky/reading
CALIBRATION_FILE=/var/lib/sky/calibration.json
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := parse(strings.NewReader(minimal))
	require.NoError(t, err)

	assert.Equal(t, uint16(0x29), cfg.SensorI2CAddr)
	assert.Equal(t, uint16(0x76), cfg.AmbientI2CAddr)
	assert.False(t, cfg.AmbientSensorEnabled)
	assert.Equal(t, 128, cfg.DisplayWidth)
	assert.Equal(t, 32, cfg.DisplayHeight)
	assert.Equal(t, 500, cfg.MeterSampleInterval)
	assert.Equal(t, 5000, cfg.RemountRetryInterval)
	assert.Equal(t, StoreFile, cfg.CalibrationStore)
	assert.Equal(t, 115200, cfg.SQMBaudRate)
	assert.Equal(t, 8080, cfg.WebServerPort)
	assert.Zero(t, cfg.MeterCalibrationPort)
	assert.False(t, cfg.UseMockSensor)
}

func TestParse_AllKeys(t *testing.T) {
	input := `# sky quality meter
I2C_BUS=/dev/i2c-1
SENSOR_I2C_ADDR=0x28
USE_MOCK_SENSOR=true
MOCK_SKY_MPSAS=21.3
AMBIENT_SENSOR_ENABLED=1
AMBIENT_I2C_ADDR=0x77
DISPLAY_ENABLED=true
DISPLAY_WIDTH=128
DISPLAY_HEIGHT=64
MQTT_BROKER = tcp://broker:1883
MQTT_CLIENT_ID_METER=m
MQTT_CLIENT_ID_CONSOLE=c
MQTT_CLIENT_ID_WEB=w
TOPIC_READING=sky/reading
METER_SAMPLE_INTERVAL=1000
REMOUNT_RETRY_INTERVAL=2500
CALIBRATION_STORE=sqlite
READING_DB_PATH=/var/lib/sky/readings.db
SQM_SERIAL_PORT=/dev/ttyUSB0
SQM_BAUD_RATE=9600
WEB_SERVER_PORT=9000
METER_CALIBRATION_PORT=8081
`
	cfg, err := parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, &Config{
		I2CBus:               "/dev/i2c-1",
		SensorI2CAddr:        0x28,
		UseMockSensor:        true,
		MockSkyMPSAS:         21.3,
		AmbientSensorEnabled: true,
		AmbientI2CAddr:       0x77,
		DisplayEnabled:       true,
		DisplayWidth:         128,
		DisplayHeight:        64,
		MQTTBroker:           "tcp://broker:1883",
		MQTTClientIDMeter:    "m",
		MQTTClientIDConsole:  "c",
		MQTTClientIDWeb:      "w",
		TopicReading:         "sky/reading",
		MeterSampleInterval:  1000,
		RemountRetryInterval: 2500,
		CalibrationStore:     StoreSQLite,
		ReadingDBPath:        "/var/lib/sky/readings.db",
		SQMSerialPort:        "/dev/ttyUSB0",
		SQMBaudRate:          9600,
		WebServerPort:        9000,
		MeterCalibrationPort: 8081,
	}, cfg)
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown key":         minimal + "GPS_SERIAL_PORT=/dev/ttyS0\n",
		"missing equals":      minimal + "DISPLAY_ENABLED\n",
		"bad bool":            minimal + "USE_MOCK_SENSOR=maybe\n",
		"bad address":         minimal + "SENSOR_I2C_ADDR=0x1ffff\n",
		"zero interval":       minimal + "METER_SAMPLE_INTERVAL=0\n",
		"bad store":           minimal + "CALIBRATION_STORE=nfs\n",
		"port range":          minimal + "WEB_SERVER_PORT=70000\n",
		"calibration port":    minimal + "METER_CALIBRATION_PORT=-1\n",
		"missing broker":      "TOPIC_READING=a\nCALIBRATION_FILE=b\n",
		"missing topic":       "MQTT_BROKER=a\nCALIBRATION_FILE=b\n",
		"missing file":        "MQTT_BROKER=a\nTOPIC_READING=b\n",
		"sqlite without path": minimal + "CALIBRATION_STORE=sqlite\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parse(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sky_config.txt")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sky/reading", cfg.TopicReading)

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
