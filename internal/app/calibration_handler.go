// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/sky_quality/internal/calibration"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocket message types
type WSMessage struct {
	Action    string  `json:"action"` // init, ready, not_ready, reference, continue, finish, cancel
	Reference float64 `json:"reference,omitempty"`
}

type WSResponse struct {
	Type      string                  `json:"type"` // prompt, report, complete, error
	Prompt    string                  `json:"prompt,omitempty"`
	Stage     int                     `json:"stage"`
	Suggested *float64                `json:"suggested,omitempty"`
	Report    *calibration.PassReport `json:"report,omitempty"`
	Results   map[string]interface{}  `json:"results,omitempty"`
	Message   string                  `json:"message,omitempty"`
}

// calibrationService lends the sensor to one websocket session at a time.
type calibrationService struct {
	mu          sync.Mutex
	openRig     func() (*rig, error)
	store       calibration.Store
	suggest     func() (float64, error)
	sampleDelay time.Duration

	// done receives every finished result, saved or not.
	done func(*calibration.Result)

	// shutdown, when cancelled, closes open sessions.
	shutdown context.Context
}

// CalibrationSession holds the state of an active calibration
type CalibrationSession struct {
	Conn    *websocket.Conn
	proc    *calibration.Procedure
	suggest func() (float64, error)
}

// HandleWS handles the WebSocket connection for calibration
func (c *calibrationService) HandleWS(w http.ResponseWriter, r *http.Request) {
	if !c.mu.TryLock() {
		http.Error(w, "calibration already in progress", http.StatusConflict)
		return
	}
	defer c.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("calibration: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	if c.shutdown != nil {
		ctx = c.shutdown
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	rg, err := c.openRig()
	if err != nil {
		log.Printf("calibration: %v", err)
		conn.WriteJSON(WSResponse{Type: "error", Message: err.Error()})
		return
	}
	defer rg.Close()

	proc := calibration.NewProcedure(rg.sensor, rg.ranger, c.store)
	proc.SampleDelay = c.sampleDelay
	session := &CalibrationSession{Conn: conn, proc: proc, suggest: c.suggest}

	// Main message loop
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Printf("calibration: websocket read error: %v", err)
			return
		}

		if msg.Action == "cancel" {
			log.Printf("calibration: cancelled by user")
			return
		}

		prompt, err := session.handle(ctx, msg)
		if err != nil {
			session.sendError(err.Error())
			continue
		}
		if prompt.Kind == calibration.PromptDone {
			c.finished(prompt.Result)
		}
		session.sendPrompt(prompt)
	}
}

func (c *calibrationService) finished(res *calibration.Result) {
	if c.done != nil {
		c.done(res)
		return
	}
	if !res.Saved {
		log.Printf("calibration: table %s not saved and dropped with the session: %v", res.Table.ID, res.SaveErr)
	}
}

func (s *CalibrationSession) handle(ctx context.Context, msg WSMessage) (calibration.Prompt, error) {
	switch msg.Action {
	case "init":
		log.Printf("calibration: session started")
		return s.proc.Start(), nil
	case "ready":
		return s.proc.Respond(ctx, calibration.Confirm(true))
	case "not_ready":
		return s.proc.Respond(ctx, calibration.Confirm(false))
	case "reference":
		return s.proc.Respond(ctx, calibration.Reference(msg.Reference))
	case "continue":
		return s.proc.Respond(ctx, calibration.Continue(true))
	case "finish":
		return s.proc.Respond(ctx, calibration.Continue(false))
	}
	return s.proc.Pending(), fmt.Errorf("unknown action %q", msg.Action)
}

func (s *CalibrationSession) sendPrompt(p calibration.Prompt) {
	resp := WSResponse{Type: "prompt", Prompt: p.Kind.String(), Stage: p.Stage}

	switch p.Kind {
	case calibration.PromptReference:
		if s.suggest != nil {
			if v, err := s.suggest(); err != nil {
				log.Printf("calibration: reference meter read failed: %v", err)
			} else {
				resp.Suggested = &v
			}
		}

	case calibration.PromptContinue:
		resp.Type = "report"
		resp.Report = p.Report

	case calibration.PromptDone:
		res := p.Result
		resp.Type = "complete"
		resp.Results = map[string]interface{}{
			"id":       res.Table.ID,
			"stages":   res.Stages,
			"points":   res.Table.Points(),
			"settings": len(res.Table.Settings()),
			"saved":    res.Saved,
		}
		if res.SaveErr != nil {
			resp.Results["error"] = res.SaveErr.Error()
		}
	}

	s.Conn.WriteJSON(resp)
}

func (s *CalibrationSession) sendError(message string) {
	s.Conn.WriteJSON(WSResponse{
		Type:    "error",
		Message: message,
	})
}
