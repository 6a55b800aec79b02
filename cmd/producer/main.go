// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"encoding/json"
	"flag"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/sky_quality/internal/meter"
	"github.com/relabs-tech/sky_quality/internal/ranging"
	"github.com/relabs-tech/sky_quality/internal/sensors"
)

// Publishes readings of a simulated dusk, the sky darkening from -from to -to
// mpsas over -duration, so subscribers can be tried without hardware.
func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker")
	topic := flag.String("topic", "sky/reading", "reading topic")
	from := flag.Float64("from", 16, "starting sky brightness (mpsas)")
	to := flag.Float64("to", 21.5, "final sky brightness (mpsas)")
	duration := flag.Duration("duration", 10*time.Minute, "length of the simulated dusk")
	flag.Parse()

	log.Println("starting sky-quality MQTT producer (mock)")

	// 1) Connect to MQTT broker
	opts := mqtt.NewClientOptions().
		AddBroker(*broker).
		SetClientID("sky-producer-mock")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("MQTT connect error: %v", token.Error())
	}
	defer client.Disconnect(250)

	src := sensors.NewMockLightSensor(*from)
	ctrl, err := ranging.New(src, sensors.TSL2591Gains, sensors.TSL2591Integrations)
	if err != nil {
		log.Fatalf("range controller: %v", err)
	}
	m := meter.New(src, ctrl)

	start := time.Now()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for t := range ticker.C {
		frac := min(t.Sub(start).Seconds()/duration.Seconds(), 1)
		src.SetSky(*from + frac*(*to-*from))

		reading, err := m.Read()
		if err != nil {
			log.Fatalf("meter: %v", err)
		}

		payload, err := json.Marshal(reading)
		if err != nil {
			log.Printf("json marshal error: %v", err)
			continue
		}

		token := client.Publish(*topic, 0, true, payload)
		token.Wait()

		log.Printf("%s published reading: ch0=%d ch1=%d %s", t.Format(time.RFC3339), reading.Ch0, reading.Ch1, reading.Setting)
	}
}
