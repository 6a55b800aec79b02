// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/sky_quality/internal/config"
	"github.com/relabs-tech/sky_quality/internal/sky"
)

func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole, "console")
	if err != nil {
		return err
	}

	token := client.Subscribe(cfg.TopicReading, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var r sky.Reading
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("console: reading unmarshal error: %v", err)
			return
		}
		fmt.Println(formatReadingLine(r))
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicReading)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

func formatReadingLine(r sky.Reading) string {
	mpsas := "  --.--"
	if r.Valid {
		mpsas = fmt.Sprintf("%7.2f", r.MPSAS)
	}
	line := fmt.Sprintf(
		"[SKY] %s  MPSAS=%s  CH0=%5d  CH1=%5d  LUX=%9.4f  %s",
		r.Time.Format("15:04:05"), mpsas, r.Ch0, r.Ch1, r.Lux, r.Setting,
	)
	if r.Ambient != nil {
		line += fmt.Sprintf("  T=%5.1fC  P=%7.1fhPa", r.Ambient.Temperature, r.Ambient.PressureHPa)
	}
	return line
}
