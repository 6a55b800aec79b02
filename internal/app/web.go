// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/sky_quality/internal/calibration"
	"github.com/relabs-tech/sky_quality/internal/config"
	"github.com/relabs-tech/sky_quality/internal/readingdb"
	"github.com/relabs-tech/sky_quality/internal/refmeter"
	"github.com/relabs-tech/sky_quality/internal/sky"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 10000
)

func RunWeb() error {
	cfg := config.Get()

	st, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 1) Connect to MQTT broker
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb, "web")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	// 2) Subscribe to readings and keep the latest
	latest := &latestReading{}
	token := client.Subscribe(cfg.TopicReading, 0, func(_ mqtt.Client, msg mqtt.Message) {
		latest.update(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: subscribed to MQTT topic %s", cfg.TopicReading)

	// 3) Calibration over websocket, optionally pre-filled by the reference meter
	cal := &calibrationService{
		openRig:     func() (*rig, error) { return openRig(cfg) },
		store:       st.calibration,
		sampleDelay: calibration.DefaultSampleDelay,
	}
	if cfg.SQMSerialPort != "" {
		sqm, err := refmeter.Open(cfg.SQMSerialPort, cfg.SQMBaudRate)
		if err != nil {
			log.Printf("web: reference meter unavailable: %v", err)
		} else {
			defer sqm.Close()
			cal.suggest = sqm.ReadMPSAS
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/api/reading", latest)
	if st.readings != nil {
		mux.Handle("/api/readings", historyHandler(st.readings))
	}
	mux.HandleFunc("/ws/calibration", cal.HandleWS)

	// 4) Static files from ./web as the root
	mux.Handle("/", http.FileServer(http.Dir("web")))

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

// latestReading serves the most recent reading received over MQTT.
type latestReading struct {
	mu      sync.RWMutex
	reading sky.Reading
	have    bool
}

func (l *latestReading) update(payload []byte) {
	var r sky.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		log.Printf("web: reading unmarshal error: %v", err)
		return
	}
	l.mu.Lock()
	l.reading = r
	l.have = true
	l.mu.Unlock()
}

func (l *latestReading) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.have {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(l.reading); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// historyHandler serves recent readings, newest first. ?limit=N caps the count.
func historyHandler(db *readingdb.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > maxHistoryLimit {
				http.Error(w, fmt.Sprintf("limit must be 1-%d", maxHistoryLimit), http.StatusBadRequest)
				return
			}
			limit = n
		}

		readings, err := db.RecentReadings(limit)
		if err != nil {
			log.Printf("web: history query error: %v", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		if readings == nil {
			readings = []sky.Reading{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(readings); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	}
}
