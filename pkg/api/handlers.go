package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cuelink/cuelink-go/pkg/connection"
	"github.com/cuelink/cuelink-go/pkg/discovery"
	"github.com/cuelink/cuelink-go/pkg/orchestrator"
	"github.com/cuelink/cuelink-go/pkg/persistence"
	"github.com/cuelink/cuelink-go/pkg/wire"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type connectRequest struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Name string `json:"name,omitempty"`
}

type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Connected  bool   `json:"connected"`
	Responding bool   `json:"responding"`
}

type removedResponse struct {
	Removed bool `json:"removed"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

// handleHealth reports the server version and, when connected, whether the
// host answers a ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: s.config.Version}
	if s.ctl.Status().IsConnected {
		resp.Connected = true
		resp.Responding = s.ctl.HealthCheck(r.Context())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Port == 0 {
		req.Port = discovery.DefaultControlPort
	}

	ep := connection.Endpoint{Host: strings.TrimSpace(req.Host), Port: req.Port, Name: req.Name}
	if err := s.ctl.Connect(r.Context(), ep); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Reconnect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.ctl.Disconnect()
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	cmd := wire.Command(strings.ToUpper(chi.URLParam(r, "command")))
	if err := s.ctl.Send(r.Context(), cmd); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Status().History)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.ClearHistory(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveHistory(w http.ResponseWriter, r *http.Request) {
	removed, err := s.ctl.RemoveFromHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "history entry not found", Kind: "NotFound"})
		return
	}
	writeJSON(w, http.StatusOK, removedResponse{Removed: true})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Status().Settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch persistence.SettingsPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	settings, err := s.ctl.UpdateSettings(r.Context(), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleStartDiscovery(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.StartDiscovery(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

func (s *Server) handleStopDiscovery(w http.ResponseWriter, r *http.Request) {
	s.ctl.StopDiscovery()
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

// decodeBody decodes the JSON body into v. It writes a 400 and returns
// false when the body is malformed.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("invalid request body: %v", err),
			Kind:  connection.KindInput.String(),
		})
		return false
	}
	return true
}

// statusFor maps a failure to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrNoHistory):
		return http.StatusNotFound
	case errors.Is(err, discovery.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, connection.ErrNotConnected),
		errors.Is(err, connection.ErrConnectInProgress):
		return http.StatusConflict
	}

	switch connection.KindOf(err) {
	case connection.KindInput:
		return http.StatusBadRequest
	case connection.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{
		Error: err.Error(),
		Kind:  connection.KindOf(err).String(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
