package webserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pulseboard/pulseboard/internal/ingest"
	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/internal/store"
	"github.com/pulseboard/pulseboard/pkg/protocol"
)

// Bodies larger than this are rejected before JSON decoding.
const maxEventBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Logger.Error("failed to encode json response", "status", status, "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// handleIngest accepts one webhook event per request. Malformed
// payloads get a 400 and are never retried; store failures get a 500 so
// the sender retries (processing is idempotent, replays are safe).
func (srv *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}

	ev, err := ingest.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := srv.processor.Apply(r.Context(), ev); err != nil {
		logging.Logger.Error("applying event failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process event")
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (srv *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filter := store.SessionFilter{
		Hostname: r.URL.Query().Get("hostname"),
		Status:   r.URL.Query().Get("status"),
	}
	if r.URL.Query().Get("include_archived") == "true" {
		filter.IncludeArchived = true
	}

	sessions, err := srv.store.ListSessions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	out := make([]any, 0, len(sessions))
	for i := range sessions {
		out = append(out, ingest.ToProtocolSession(&sessions[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// sessionDetail is the GET /api/sessions/{id} response: the session
// projection plus its full timeline, so one fetch recovers a stale tab.
type sessionDetail struct {
	Session  *protocol.Session        `json:"session"`
	Timeline []protocol.TimelineEvent `json:"timeline"`
}

func (srv *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	sess, err := srv.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	events, err := srv.store.ListTimeline(r.Context(), id, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load timeline")
		return
	}
	timeline := make([]protocol.TimelineEvent, 0, len(events))
	for i := range events {
		timeline = append(timeline, *ingest.ToProtocolTimelineEvent(&events[i]))
	}

	writeJSON(w, http.StatusOK, sessionDetail{
		Session:  ingest.ToProtocolSession(sess),
		Timeline: timeline,
	})
}

func (srv *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if err := srv.store.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (srv *Server) handleSessionTimeline(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	events, err := srv.store.ListTimeline(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list timeline")
		return
	}

	out := make([]any, 0, len(events))
	for i := range events {
		out = append(out, ingest.ToProtocolTimelineEvent(&events[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (srv *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := srv.store.ListInstances(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list instances")
		return
	}

	now := time.Now().UnixMilli()
	type instanceView struct {
		Hostname string `json:"hostname"`
		LastSeen int64  `json:"last_seen"`
		Online   bool   `json:"online"`
	}
	out := make([]instanceView, 0, len(instances))
	for _, inst := range instances {
		out = append(out, instanceView{
			Hostname: inst.Hostname,
			LastSeen: inst.LastSeen,
			Online:   now-inst.LastSeen <= store.StaleThresholdMillis,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (srv *Server) handleUsageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := srv.store.UsageStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to aggregate usage")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
