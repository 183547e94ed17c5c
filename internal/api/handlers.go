package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ledlink/internal/color"
	"github.com/dokzlo13/ledlink/internal/effect"
	"github.com/dokzlo13/ledlink/internal/link"
	"github.com/dokzlo13/ledlink/internal/session"
)

const defaultLedgerLimit = 50

type connectRequest struct {
	Address string `json:"address"`
	Auto    bool   `json:"auto"`
}

type colorRequest struct {
	color.Partial
	Hex string `json:"hex"`
}

type powerRequest struct {
	Power *bool `json:"power"`
}

type effectRequest struct {
	Effect string `json:"effect"`
	Speed  int    `json:"speed"`
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports ready once the session timeline answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ctrl.Snapshot(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decode(w, r, &req) {
		return
	}

	var err error
	switch {
	case req.Auto:
		_, err = s.ctrl.ConnectAuto(r.Context())
	case req.Address == "":
		_, err = s.ctrl.Retry(r.Context())
	default:
		_, err = s.ctrl.Connect(r.Context(), req.Address)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.handleSession(w, r)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	address, err := s.ctrl.Discover(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": address})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Disconnect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.handleSession(w, r)
}

func (s *Server) handleColor(w http.ResponseWriter, r *http.Request) {
	var req colorRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		state color.State
		err   error
	)
	if req.Hex != "" {
		state, err = s.ctrl.SetHex(r.Context(), req.Hex)
		if err == nil && req.Brightness != nil {
			state, err = s.ctrl.SetColor(r.Context(), color.Partial{Brightness: req.Brightness})
		}
	} else {
		state, err = s.ctrl.SetColor(r.Context(), req.Partial)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	var req powerRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		state color.State
		err   error
	)
	if req.Power == nil {
		state, err = s.ctrl.TogglePower(r.Context())
	} else {
		state, err = s.ctrl.SetPower(r.Context(), *req.Power)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleEffects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"effects": s.ctrl.Effects(),
		"presets": session.PresetNames(),
	})
}

func (s *Server) handleEffect(w http.ResponseWriter, r *http.Request) {
	var req effectRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := s.ctrl.StartEffect(r.Context(), req.Effect)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeviceEffect(w http.ResponseWriter, r *http.Request) {
	var req effectRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Effect == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "effect is required"})
		return
	}
	if err := s.ctrl.SetDeviceEffect(r.Context(), req.Effect, req.Speed); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"effect": req.Effect, "speed": req.Speed})
}

func (s *Server) handleAutoEffect(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ctrl.SetAutoEffect(r.Context(), req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

func (s *Server) handleAccessPoint(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := s.ctrl.SetAccessPoint(r.Context(), req.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleAutoEffectStatus(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.ctrl.AutoEffect(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (s *Server) handleAccessPointStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.ctrl.AccessPoint(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleLEDStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.ctrl.LEDStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handlePreset(w http.ResponseWriter, r *http.Request) {
	state, err := s.ctrl.ApplyPreset(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, s.history.Events())
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ledger disabled"})
		return
	}
	limit := defaultLedgerLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	entries, err := s.ledger.Recent(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// decode reads an optional JSON body. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case link.IsValidation(err),
		errors.Is(err, effect.ErrUnknownEffect),
		errors.Is(err, session.ErrUnknownPreset):
		return http.StatusBadRequest
	case errors.Is(err, link.ErrNoDeviceFound):
		return http.StatusNotFound
	case errors.Is(err, link.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, link.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, link.ErrConnection), errors.Is(err, link.ErrPushFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
