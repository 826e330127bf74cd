// Package api exposes the capture service over HTTP: session lifecycle
// operations, status and metrics, persisted frame queries, and a
// server-sent-events tail of live frames.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/mmwave.report/internal/capture"
	"github.com/banshee-data/mmwave.report/internal/db"
	"github.com/banshee-data/mmwave.report/internal/monitoring"
	"github.com/banshee-data/mmwave.report/internal/rangeprofile"
	"github.com/banshee-data/mmwave.report/internal/serialio"
	"github.com/banshee-data/mmwave.report/internal/session"
	"github.com/banshee-data/mmwave.report/internal/telemetry"
)

type Server struct {
	ctrl  *session.Controller
	store *db.DB
	temps *telemetry.Simulator
	hub   *FrameHub

	// consumer is handed to StartCapture; the server does not build its
	// own so that recording and fan-out wiring stays in main.
	consumer capture.Consumer
}

// NewServer creates the API server. store and temps may be nil (tests,
// replay tooling); the corresponding endpoints degrade gracefully.
func NewServer(ctrl *session.Controller, store *db.DB, temps *telemetry.Simulator, hub *FrameHub, consumer capture.Consumer) *Server {
	return &Server{
		ctrl:     ctrl,
		store:    store,
		temps:    temps,
		hub:      hub,
		consumer: consumer,
	}
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/ports", s.handlePorts)
	mux.HandleFunc("/api/connect", s.handleConnect)
	mux.HandleFunc("/api/disconnect", s.handleDisconnect)
	mux.HandleFunc("/api/capture/start", s.handleCaptureStart)
	mux.HandleFunc("/api/capture/stop", s.handleCaptureStop)
	mux.HandleFunc("/api/capture/pause", s.handleCapturePause)
	mux.HandleFunc("/api/capture/resume", s.handleCaptureResume)
	mux.HandleFunc("/api/config/send", s.handleSendConfig)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/api/frames/recent", s.handleRecentFrames)
	mux.HandleFunc("/api/frames/latest", s.handleLatestFrame)
	mux.HandleFunc("/api/frames/tail", s.handleFrameTail)
	mux.HandleFunc("/", s.handleHome)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("api: failed to encode response: %v", err)
	}
}

// statusForErr maps session errors onto HTTP status codes: precondition
// failures are 409s, everything else is a 500.
func statusForErr(err error) int {
	switch {
	case errors.Is(err, session.ErrNotConnected),
		errors.Is(err, session.ErrAlreadyConnected),
		errors.Is(err, session.ErrAlreadyCapturing),
		errors.Is(err, session.ErrNotCapturing),
		errors.Is(err, session.ErrNotPaused):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, statusForErr(err), map[string]string{"error": err.Error()})
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, "mmWave capture service\n")
}

type statusResponse struct {
	State       string            `json:"state"`
	Capturing   bool              `json:"capturing"`
	RunID       string            `json:"run_id,omitempty"`
	Temperature *float64          `json:"temperature_c,omitempty"`
	Overheated  bool              `json:"overheated"`
	Metrics     *capture.Snapshot `json:"metrics,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		State:     s.ctrl.State().String(),
		Capturing: s.ctrl.Capturing(),
	}
	if id, ok := s.ctrl.RunID(); ok {
		resp.RunID = id.String()
	}
	if s.temps != nil {
		t := s.temps.Temperature()
		resp.Temperature = &t
		resp.Overheated = s.temps.Overheated()
	}
	if m := s.ctrl.Metrics(); m != nil {
		snap := m.Snapshot()
		resp.Metrics = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	ports, err := serialio.ListPorts()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ports": ports})
}

type connectRequest struct {
	ControlPort string `json:"control_port"`
	DataPort    string `json:"data_port"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.ControlPort == "" || req.DataPort == "" {
		http.Error(w, "control_port and data_port are required", http.StatusBadRequest)
		return
	}
	if err := s.ctrl.Connect(req.ControlPort, req.DataPort); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.ctrl.State().String()})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.ctrl.Disconnect(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.ctrl.State().String()})
}

func (s *Server) handleCaptureStart(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.ctrl.StartCapture(s.consumer); err != nil {
		writeErr(w, err)
		return
	}
	id, _ := s.ctrl.RunID()
	if s.store != nil {
		cfg := s.ctrl.Ports()
		if err := s.store.CreateRun(id.String(), cfg.Control, cfg.Data); err != nil {
			monitoring.Logf("api: failed to record run %s: %v", id, err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"state":  s.ctrl.State().String(),
		"run_id": id.String(),
	})
}

func (s *Server) handleCaptureStop(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	id, hadRun := s.ctrl.RunID()
	metrics := s.ctrl.Metrics()
	if err := s.ctrl.StopCapture(); err != nil {
		writeErr(w, err)
		return
	}
	if s.store != nil && hadRun && metrics != nil {
		snap := metrics.Snapshot()
		if err := s.store.CloseRun(id.String(), snap.FramesDecoded, snap.PointsDecoded-snap.PointsFiltered); err != nil {
			monitoring.Logf("api: failed to close run %s: %v", id, err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.ctrl.State().String()})
}

func (s *Server) handleCapturePause(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.ctrl.Pause(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.ctrl.State().String()})
}

func (s *Server) handleCaptureResume(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.ctrl.Resume(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.ctrl.State().String()})
}

func (s *Server) handleSendConfig(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.ctrl.SendConfig(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "config sent"})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}
	if err := s.ctrl.SendCommand(command); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "command sent"})
}

func (s *Server) handleRecentFrames(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "frame store not configured", http.StatusNotImplemented)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	frames, err := s.store.RecentFrames(limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"frames": frames})
}

func (s *Server) handleLatestFrame(w http.ResponseWriter, r *http.Request) {
	frame, ok := s.hub.Latest()
	if !ok {
		http.Error(w, "no frames decoded yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"frame_number":  frame.Header.FrameNumber,
		"points":        frame.Points,
		"range_profile": rangeprofile.Default(frame.Points),
	})
}

// handleFrameTail streams decoded frames as server-sent events until the
// client goes away.
func (s *Server) handleFrameTail(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable buffering for nginx

	id, frames := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	// Initial ping to establish the stream.
	io.WriteString(w, ": ping\n\n")
	flusher.Flush()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			payload, err := json.Marshal(map[string]any{
				"frame_number": frame.Header.FrameNumber,
				"points":       frame.Points,
			})
			if err != nil {
				monitoring.Logf("api: failed to marshal frame: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
