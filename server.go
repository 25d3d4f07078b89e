package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"i4.energy/across/hc06ctl/hc06"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // The bridge is meant for a local UI
	},
}

const wsWriteTimeout = 10 * time.Second

// Server exposes the controller to a UI over HTTP and pushes core events
// over a WebSocket.
type Server struct {
	Logger     *slog.Logger
	Controller *hc06.Controller
	Provider   hc06.Provider

	once sync.Once
	mux  *http.ServeMux
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.once.Do(func() {
		s.mux = http.NewServeMux()
		s.mux.HandleFunc("GET /status", s.handleStatus)
		s.mux.HandleFunc("POST /connect", s.handleConnect)
		s.mux.HandleFunc("POST /disconnect", s.handleDisconnect)
		s.mux.HandleFunc("PUT /settings/{field}", s.handleSetting)
		s.mux.HandleFunc("GET /ports", s.handlePorts)
		s.mux.HandleFunc("GET /events", s.handleEvents)
	})
	s.mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	s.sendJSON(w, ErrorResponse{Message: message}, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Debug("Failed to write response", "error", err)
	}
}

// statusFor maps core errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, hc06.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, hc06.ErrNoPort):
		return http.StatusNotFound
	case errors.Is(err, hc06.ErrPortNotOpen), errors.Is(err, hc06.ErrCommandPending), errors.Is(err, hc06.ErrAlreadyOpen):
		return http.StatusConflict
	case errors.Is(err, hc06.ErrDeviceRejected):
		return http.StatusBadGateway
	case errors.Is(err, hc06.ErrDeviceUnresponsive):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.Logger.Error("Request failed", "op", op, "error", err)
	} else {
		s.Logger.Info("Request refused", "op", op, "error", err)
	}
	s.sendError(w, err.Error(), code)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, s.Controller.Status(), http.StatusOK)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.Controller.ToggleConnect(r.Context()); err != nil {
		s.fail(w, "connect", err)
		return
	}
	s.sendJSON(w, s.Controller.Status(), http.StatusOK)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.Controller.Disconnect(); err != nil {
		s.fail(w, "disconnect", err)
		return
	}
	s.sendJSON(w, s.Controller.Status(), http.StatusOK)
}

// handleSetting writes one device property. Name and PIN edits may ask to be
// debounced, in which case the write happens later and 202 is returned.
func (s *Server) handleSetting(w http.ResponseWriter, r *http.Request) {
	type SettingRequest struct {
		Value    string `json:"value"`
		Debounce bool   `json:"debounce"`
	}

	var req SettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	field := hc06.Property(r.PathValue("field"))
	if req.Debounce {
		var err error
		switch field {
		case hc06.PropertyName:
			err = s.Controller.ScheduleName(req.Value)
		case hc06.PropertyPIN:
			err = s.Controller.SchedulePIN(req.Value)
		default:
			s.sendError(w, "only name and pin writes can be debounced", http.StatusBadRequest)
			return
		}
		if err != nil {
			s.fail(w, "schedule "+string(field), err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err := applySetting(r.Context(), s.Controller, field, req.Value); err != nil {
		s.fail(w, "set "+string(field), err)
		return
	}
	s.Logger.Info("Setting written", "field", string(field))
	s.sendJSON(w, s.Controller.Status(), http.StatusOK)
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	type Port struct {
		Name     string            `json:"name"`
		Identity hc06.PortIdentity `json:"identity"`
	}

	ports := []Port{}
	if s.Provider != nil {
		known, err := s.Provider.Known(r.Context())
		if err != nil {
			s.fail(w, "ports", err)
			return
		}
		for _, d := range known {
			ports = append(ports, Port{Name: d.Name(), Identity: d.Identity()})
		}
	}
	s.sendJSON(w, ports, http.StatusOK)
}

// wsEvent is the wire form of hc06.Event.
type wsEvent struct {
	Type       string `json:"type"`
	Time       string `json:"time"`
	From       string `json:"from,omitempty"`
	State      string `json:"state,omitempty"`
	Property   string `json:"property,omitempty"`
	WriteState string `json:"writeState,omitempty"`
	Error      string `json:"error,omitempty"`
}

func toWire(e hc06.Event) wsEvent {
	out := wsEvent{
		Type:       e.Type.String(),
		Time:       e.Time.Format(time.RFC3339Nano),
		From:       string(e.From),
		State:      string(e.State),
		Property:   string(e.Property),
		WriteState: string(e.WriteState),
	}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return out
}

// handleEvents streams core events to one WebSocket client until it goes
// away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	log := s.Logger.With("client", uuid.NewString())
	log.Info("Event client connected", "remote", r.RemoteAddr)
	defer log.Info("Event client disconnected")

	bus := s.Controller.Session().Events()
	events := make(chan hc06.Event, 32)
	bus.Subscribe(events)
	defer bus.Unsubscribe(events)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client sends nothing; reading only detects it going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(s.Controller.Status()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case e := <-events:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(toWire(e)); err != nil {
				log.Debug("Event write failed", "error", err)
				return
			}
		}
	}
}
