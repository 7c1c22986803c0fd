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

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocket message types
type WSMessage struct {
	Action string `json:"action"` // run, cancel
}

type WSResponse struct {
	Type     string                 `json:"type"` // phase, progress, stats, complete, error
	Phase    string                 `json:"phase,omitempty"`
	Progress float64                `json:"progress,omitempty"`
	Stats    map[string]interface{} `json:"stats,omitempty"`
	Results  interface{}            `json:"results,omitempty"`
	Message  string                 `json:"message,omitempty"`
}

// CalibrationSession is one browser connection. It runs at most one
// pipeline at a time and streams its stages back.
type CalibrationSession struct {
	server *Server
	Conn   *websocket.Conn

	writeMu sync.Mutex

	stateMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// HandleCalibrationWS handles the WebSocket connection for calibration runs.
func (s *Server) HandleCalibrationWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("calibration: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := &CalibrationSession{server: s, Conn: conn}
	defer session.stop()

	// Main message loop
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Printf("calibration: websocket read error: %v", err)
			return
		}

		switch msg.Action {
		case "run":
			session.start()

		case "cancel":
			log.Printf("calibration: cancelled by user")
			return

		default:
			session.sendError(fmt.Sprintf("unknown action %q", msg.Action))
		}
	}
}

func (cs *CalibrationSession) start() {
	cs.stateMu.Lock()
	defer cs.stateMu.Unlock()

	if cs.cancel != nil {
		cs.sendError("calibration already running")
		return
	}
	if !cs.server.runMu.TryLock() {
		cs.sendError("another calibration is running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	cs.cancel = cancel
	cs.wg.Add(1)
	go func() {
		defer cs.wg.Done()
		defer cs.server.runMu.Unlock()
		defer func() {
			cs.stateMu.Lock()
			cs.cancel = nil
			cs.stateMu.Unlock()
			cancel()
		}()
		cs.run(ctx)
	}()
}

// stop cancels a running pipeline and waits for it to return.
func (cs *CalibrationSession) stop() {
	cs.stateMu.Lock()
	if cs.cancel != nil {
		cs.cancel()
	}
	cs.stateMu.Unlock()
	cs.wg.Wait()
}

func (cs *CalibrationSession) run(ctx context.Context) {
	obs := ObserverFunc(func(stage string, progress float64) {
		cs.sendPhase(stage)
		cs.sendProgress(progress)
	})

	out, err := RunCalibration(ctx, cs.server.cfg, obs, cs.server.publisher)
	if err != nil {
		log.Printf("calibration: run failed: %v", err)
		cs.sendError(err.Error())
		return
	}
	cs.server.setLatest(out.Result)

	cs.sendStats(out)
	cs.send(WSResponse{
		Type:     "complete",
		Progress: 100,
		Results:  out.Result,
	})
}

func (cs *CalibrationSession) send(resp WSResponse) {
	cs.writeMu.Lock()
	defer cs.writeMu.Unlock()
	if err := cs.Conn.WriteJSON(resp); err != nil {
		log.Printf("calibration: websocket write error: %v", err)
	}
}

func (cs *CalibrationSession) sendPhase(phase string) {
	cs.send(WSResponse{
		Type:  "phase",
		Phase: phase,
	})
}

func (cs *CalibrationSession) sendProgress(progress float64) {
	cs.send(WSResponse{
		Type:     "progress",
		Progress: progress,
	})
}

func (cs *CalibrationSession) sendStats(out *Outcome) {
	var r2 interface{}
	if out.Result.RSquared != nil {
		r2 = *out.Result.RSquared
	}
	stats := map[string]interface{}{
		"a":         out.Result.A,
		"b":         out.Result.B,
		"r_squared": r2,
		"mae":       out.Result.MAE,
		"samples":   out.Result.Samples,
		"dropped":   out.Result.Dropped,
	}
	cs.send(WSResponse{
		Type:  "stats",
		Stats: stats,
	})
}

func (cs *CalibrationSession) sendError(message string) {
	cs.send(WSResponse{
		Type:    "error",
		Message: message,
	})
}
