package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-discovery/internal/bridges/openwebnet"
	"github.com/nerrad567/gray-logic-discovery/internal/discovery"
	"github.com/nerrad567/gray-logic-discovery/internal/inbox"
)

// ScanResponse acknowledges a scan start or stop request.
type ScanResponse struct {
	Status string `json:"status"`
	Dongle string `json:"dongle,omitempty"`
}

// handleListKinds returns the device kinds the service can discover.
func (s *Server) handleListKinds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"kinds": s.scanner.SupportedKinds(),
	})
}

// handleListScanners returns per-dongle scan status.
func (s *Server) handleListScanners(w http.ResponseWriter, _ *http.Request) {
	scanners := s.scanner.Scanners()
	writeJSON(w, http.StatusOK, map[string]any{
		"scanners": scanners,
		"count":    len(scanners),
	})
}

// handleStartScan starts a scan on every dongle, or on the one named by
// the dongle query parameter.
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	s.controlScan(w, r, true)
}

// handleStopScan stops scanning on every dongle, or on the one named by
// the dongle query parameter.
func (s *Server) handleStopScan(w http.ResponseWriter, r *http.Request) {
	s.controlScan(w, r, false)
}

func (s *Server) controlScan(w http.ResponseWriter, r *http.Request, start bool) {
	dongle := r.URL.Query().Get("dongle")
	status := "stopped"
	if start {
		status = "scanning"
	}

	if dongle == "" {
		if start {
			s.scanner.StartScan()
		} else {
			s.scanner.StopScan()
		}
		s.logger.Info("scan "+status, "dongle", "all")
		writeJSON(w, http.StatusAccepted, ScanResponse{Status: status})
		return
	}

	var err error
	if start {
		err = s.scanner.StartScanOn(dongle)
	} else {
		err = s.scanner.StopScanOn(dongle)
	}
	if err != nil {
		if errors.Is(err, openwebnet.ErrUnknownDongle) {
			writeNotFound(w, "unknown dongle: "+dongle)
			return
		}
		s.logger.Error("scan control failed", "dongle", dongle, "error", err)
		writeInternalError(w, "failed to control scan")
		return
	}

	s.logger.Info("scan "+status, "dongle", dongle)
	writeJSON(w, http.StatusAccepted, ScanResponse{Status: status, Dongle: dongle})
}

// handleListResults returns the discovery inbox, newest first.
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	entries, err := s.inbox.List(r.Context(), inbox.ListFilter{
		Kind:  discovery.DeviceKind(r.URL.Query().Get("kind")),
		Limit: limit,
	})
	if err != nil {
		s.logger.Error("failed to list discovery results", "error", err)
		writeInternalError(w, "failed to list discovery results")
		return
	}
	if entries == nil {
		entries = []inbox.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": entries,
		"count":   len(entries),
	})
}

// handleGetResult returns a single inbox entry.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	entry, err := s.inbox.Get(r.Context(), uid)
	if err != nil {
		if errors.Is(err, inbox.ErrResultNotFound) {
			writeNotFound(w, "discovery result not found")
			return
		}
		s.logger.Error("failed to get discovery result", "uid", uid, "error", err)
		writeInternalError(w, "failed to get discovery result")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// handleDeleteResult removes an inbox entry. A device that is seen again
// reappears with a fresh first_seen.
func (s *Server) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	if err := s.inbox.Delete(r.Context(), uid); err != nil {
		if errors.Is(err, inbox.ErrResultNotFound) {
			writeNotFound(w, "discovery result not found")
			return
		}
		s.logger.Error("failed to delete discovery result", "uid", uid, "error", err)
		writeInternalError(w, "failed to delete discovery result")
		return
	}

	s.logger.Info("discovery result deleted", "uid", uid)
	w.WriteHeader(http.StatusNoContent)
}

// handleListSessions returns recent scan sessions, newest first.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	sessions, err := s.inbox.ListSessions(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list scan sessions", "error", err)
		writeInternalError(w, "failed to list scan sessions")
		return
	}
	if sessions == nil {
		sessions = []inbox.Session{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleTahomaDevices lists the TaHoma devices with handlers and the
// command counters.
func (s *Server) handleTahomaDevices(w http.ResponseWriter, _ *http.Request) {
	if s.tahoma == nil {
		writeUnavailable(w, "tahoma bridge not enabled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": s.tahoma.Devices(),
		"stats":   s.tahoma.Stats(),
	})
}

// parseLimit reads the optional limit query parameter. It writes a 400 and
// returns false when the value is not a positive integer.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeBadRequest(w, "limit must be a positive integer")
		return 0, false
	}
	return limit, true
}
