package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/layout"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/session"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/store"
)

const (
	defaultLogLimit = 100
	maxBodyBytes    = 1 << 20
)

func writeAPIResponse(w http.ResponseWriter, status int, data any) {
	writeJSONResponse(w, status, APIResponse{Success: true, Data: data})
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSONResponse(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
	})
}

func writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeSessionError maps session failures to HTTP statuses. Anything that is
// not a shutdown or not-connected condition was caused by the request.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotConnected):
		writeAPIError(w, http.StatusConflict, ErrCodeNotConnected, err.Error())
	case errors.Is(err, session.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		writeAPIError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		writeAPIError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeAPIResponse(w, http.StatusOK, s.dashboard.Status())
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	updates, err := s.dashboard.Snapshot(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeAPIResponse(w, http.StatusOK, updates)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	created, err := s.dashboard.Subscribe(r.Context(), req.Topic, req.Type, req.Transform)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeAPIResponse(w, status, SubscribeResponse{Pattern: req.Topic, Created: created})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	pattern, err := url.PathUnescape(chi.URLParam(r, "pattern"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid pattern encoding")
		return
	}

	removed, err := s.dashboard.Unsubscribe(r.Context(), pattern)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if !removed {
		writeAPIError(w, http.StatusNotFound, ErrCodeNotFound, "Subscription not found: "+pattern)
		return
	}
	writeAPIResponse(w, http.StatusOK, UnsubscribeResponse{Pattern: pattern, Removed: true})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	if err := s.dashboard.Publish(r.Context(), req.Topic, []byte(req.Payload)); err != nil {
		switch {
		case errors.Is(err, session.ErrEmptyTopic), errors.Is(err, session.ErrNotConnected):
			writeSessionError(w, err)
		default:
			s.logger.Warn().Err(err).Str("topic", req.Topic).Msg("Publish failed")
			writeAPIError(w, http.StatusBadGateway, ErrCodeInternal, err.Error())
		}
		return
	}
	writeAPIResponse(w, http.StatusOK, req)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeAPIError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON: "+err.Error())
			return
		}
	}

	if err := s.dashboard.Connect(r.Context(), req.Host, req.Port); err != nil {
		writeSessionError(w, err)
		return
	}
	writeAPIResponse(w, http.StatusAccepted, s.dashboard.Status())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.dashboard.Disconnect(r.Context()); err != nil {
		writeSessionError(w, err)
		return
	}
	writeAPIResponse(w, http.StatusOK, s.dashboard.Status())
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeAPIError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.dashboard.LogTail(r.Context(), limit)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeAPIResponse(w, http.StatusOK, entries)
}

func (s *Server) handleGetLayout(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.dashboard.ExportLayout(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeAPIResponse(w, http.StatusOK, cfg)
}

// handleSaveLayoutFile writes the configured layout file. The destination is
// never taken from the request.
func (s *Server) handleSaveLayoutFile(w http.ResponseWriter, r *http.Request) {
	if err := s.dashboard.SaveLayout(r.Context(), ""); err != nil {
		s.logger.Error().Err(err).Msg("Failed to save layout file")
		writeAPIError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	writeAPIResponse(w, http.StatusOK, SaveLayoutResponse{Saved: true})
}

// Named layouts

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.layouts == nil {
		writeAPIError(w, http.StatusNotFound, ErrCodeStoreDisabled, "No layout store configured")
		return false
	}
	return true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrLayoutNotFound):
		writeAPIError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidName):
		writeAPIError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		writeAPIError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

func (s *Server) handleListLayouts(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	infos, err := s.layouts.ListLayouts(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeAPIResponse(w, http.StatusOK, infos)
}

func (s *Server) handleGetNamedLayout(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	cfg, err := s.layouts.LoadLayout(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeAPIResponse(w, http.StatusOK, cfg)
}

// handlePutNamedLayout stores the request body under name, or the current
// dashboard when the body is empty.
func (s *Server) handlePutNamedLayout(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	var cfg layout.Config
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &cfg); err != nil {
			writeAPIError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON: "+err.Error())
			return
		}
	} else {
		exported, err := s.dashboard.ExportLayout(r.Context())
		if err != nil {
			writeSessionError(w, err)
			return
		}
		cfg = exported
	}

	name := chi.URLParam(r, "name")
	if err := s.layouts.SaveLayout(r.Context(), name, cfg); err != nil {
		writeStoreError(w, err)
		return
	}
	writeAPIResponse(w, http.StatusOK, cfg.Normalize())
}

func (s *Server) handleApplyNamedLayout(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	cfg, err := s.layouts.LoadLayout(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.dashboard.ImportLayout(r.Context(), cfg); err != nil {
		writeSessionError(w, err)
		return
	}
	writeAPIResponse(w, http.StatusOK, cfg)
}

func (s *Server) handleDeleteNamedLayout(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	name := chi.URLParam(r, "name")
	if err := s.layouts.DeleteLayout(r.Context(), name); err != nil {
		writeStoreError(w, err)
		return
	}
	writeAPIResponse(w, http.StatusOK, map[string]string{"deleted": name})
}
