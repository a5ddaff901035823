package webserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/pulseboard/pulseboard/internal/hub"
	"github.com/pulseboard/pulseboard/internal/store"
	"github.com/pulseboard/pulseboard/pkg/protocol"
)

func newTestServer(t *testing.T, opts Options) (*Server, *store.Store) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "pulseboard.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return New(s, hub.New(), opts), s
}

func performRequest(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func performJSONRequest(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestIngestSessionCreated(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rec := performJSONRequest(t, srv, http.MethodPost, "/api/events",
		`{"type":"session.created","sessionId":"s1","title":"refactor","hostname":"devbox","timestamp":1000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	out := decodeResponse[successResponse](t, rec)
	if !out.Success {
		t.Fatal("response success = false, want true")
	}

	listRec := performRequest(t, srv, http.MethodGet, "/api/sessions")
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", listRec.Code, http.StatusOK)
	}
	sessions := decodeResponse[[]protocol.Session](t, listRec)
	if len(sessions) != 1 {
		t.Fatalf("sessions length = %d, want 1", len(sessions))
	}
	if sessions[0].ID != "s1" || sessions[0].Hostname != "devbox" {
		t.Fatalf("session = %+v, want id=s1 hostname=devbox", sessions[0])
	}
}

func TestIngestRejectsMalformed(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"missing type", `{"sessionId":"s1"}`},
		{"missing session id", `{"type":"timeline","eventType":"tool"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := performJSONRequest(t, srv, http.MethodPost, "/api/events", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestIngestUnknownTypeAccepted(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rec := performJSONRequest(t, srv, http.MethodPost, "/api/events",
		`{"type":"session.paused","sessionId":"s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestIngestReplayIsIdempotent(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	body := `{"type":"session.created","sessionId":"s1","title":"first","hostname":"devbox","timestamp":1000}`
	for i := 0; i < 3; i++ {
		rec := performJSONRequest(t, srv, http.MethodPost, "/api/events", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("replay %d status = %d, want %d", i, rec.Code, http.StatusOK)
		}
	}

	sessions := decodeResponse[[]protocol.Session](t, performRequest(t, srv, http.MethodGet, "/api/sessions"))
	if len(sessions) != 1 {
		t.Fatalf("sessions length = %d, want 1", len(sessions))
	}
}

func TestSessionByIDAndDelete(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	performJSONRequest(t, srv, http.MethodPost, "/api/events",
		`{"type":"session.created","sessionId":"s1","title":"t","hostname":"h","timestamp":1}`)
	performJSONRequest(t, srv, http.MethodPost, "/api/events",
		`{"type":"timeline","sessionId":"s1","eventType":"tool","summary":"ran tests","timestamp":2}`)

	getRec := performRequest(t, srv, http.MethodGet, "/api/sessions/s1")
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", getRec.Code, http.StatusOK)
	}
	detail := decodeResponse[sessionDetail](t, getRec)
	if detail.Session == nil || detail.Session.ID != "s1" {
		t.Fatalf("detail session = %+v, want s1", detail.Session)
	}
	if len(detail.Timeline) != 1 {
		t.Fatalf("detail timeline = %+v, want one event", detail.Timeline)
	}

	tlRec := performRequest(t, srv, http.MethodGet, "/api/sessions/s1/timeline")
	if tlRec.Code != http.StatusOK {
		t.Fatalf("timeline status = %d, want %d", tlRec.Code, http.StatusOK)
	}
	events := decodeResponse[[]protocol.TimelineEvent](t, tlRec)
	if len(events) != 1 || events[0].ID == 0 {
		t.Fatalf("timeline = %+v, want one event with assigned id", events)
	}

	delRec := performRequest(t, srv, http.MethodDelete, "/api/sessions/s1")
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want %d", delRec.Code, http.StatusOK)
	}

	missingRec := performRequest(t, srv, http.MethodGet, "/api/sessions/s1")
	if missingRec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want %d", missingRec.Code, http.StatusNotFound)
	}

	againRec := performRequest(t, srv, http.MethodDelete, "/api/sessions/s1")
	if againRec.Code != http.StatusNotFound {
		t.Fatalf("delete again status = %d, want %d", againRec.Code, http.StatusNotFound)
	}
}

func TestInstancesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	performJSONRequest(t, srv, http.MethodPost, "/api/events",
		`{"type":"session.created","sessionId":"s1","title":"t","hostname":"devbox","timestamp":1000}`)

	rec := performRequest(t, srv, http.MethodGet, "/api/instances")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var out []struct {
		Hostname string `json:"hostname"`
		LastSeen int64  `json:"last_seen"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Hostname != "devbox" {
		t.Fatalf("instances = %+v, want one devbox entry", out)
	}
}

func TestUsageStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	performJSONRequest(t, srv, http.MethodPost, "/api/events",
		`{"type":"session.created","sessionId":"s1","title":"t","hostname":"h","timestamp":1}`)
	performJSONRequest(t, srv, http.MethodPost, "/api/events",
		`{"type":"tokens","sessionId":"s1","providerId":"anthropic","modelId":"m1","tokensIn":100,"tokensOut":50,"cost":0.25,"timestamp":2}`)

	rec := performRequest(t, srv, http.MethodGet, "/api/stats/usage")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	stats := decodeResponse[[]store.UsageStat](t, rec)
	if len(stats) != 1 {
		t.Fatalf("stats length = %d, want 1", len(stats))
	}
	if stats[0].TotalTokens != 150 || stats[0].Requests != 1 {
		t.Fatalf("stats = %+v, want total_tokens=150 requests=1", stats[0])
	}
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rec := performRequest(t, srv, http.MethodGet, "/api/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want %q", got, "*")
	}

	preflight := performRequest(t, srv, http.MethodOptions, "/api/sessions")
	if preflight.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want %d", preflight.Code, http.StatusNoContent)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rec := performRequest(t, srv, http.MethodGet, "/api/nonexistent")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestAuthTokenGuardsAPI(t *testing.T) {
	srv, _ := newTestServer(t, Options{AuthToken: "secret"})

	rec := performRequest(t, srv, http.MethodGet, "/api/sessions")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret")
	okRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(okRec, req)
	if okRec.Code != http.StatusOK {
		t.Fatalf("status with token = %d, want %d", okRec.Code, http.StatusOK)
	}
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	return ws
}

func readEnvelope(t *testing.T, ws *websocket.Conn) *protocol.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, raw, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("websocket read: %v", err)
	}
	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestWebSocketBroadcast(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ws := dialWS(t, ts)
	defer ws.CloseNow()

	// Without a password the server acks immediately.
	env := readEnvelope(t, ws)
	if env.Type != protocol.MsgAuth {
		t.Fatalf("first message type = %q, want %q", env.Type, protocol.MsgAuth)
	}
	ack, err := protocol.DecodeData[protocol.AuthAck](env)
	if err != nil || !ack.Success {
		t.Fatalf("auth ack = %+v (err %v), want success", ack, err)
	}

	resp, err := http.Post(ts.URL+"/api/events", "application/json",
		strings.NewReader(`{"type":"session.created","sessionId":"s1","title":"t","hostname":"h","timestamp":1}`))
	if err != nil {
		t.Fatalf("post event: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	env = readEnvelope(t, ws)
	if env.Type != protocol.MsgSessionCreated {
		t.Fatalf("broadcast type = %q, want %q", env.Type, protocol.MsgSessionCreated)
	}
	sess, err := protocol.DecodeData[protocol.Session](env)
	if err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.ID != "s1" {
		t.Fatalf("broadcast session id = %q, want s1", sess.ID)
	}
}

func TestWebSocketAuthHandshake(t *testing.T) {
	srv, _ := newTestServer(t, Options{Password: "hunter2"})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("correct password", func(t *testing.T) {
		ws := dialWS(t, ts)
		defer ws.CloseNow()

		frame, err := protocol.Encode(protocol.MsgAuth, protocol.AuthRequest{Password: "hunter2"})
		if err != nil {
			t.Fatalf("encode auth: %v", err)
		}
		if err := ws.Write(ctx, websocket.MessageText, frame); err != nil {
			t.Fatalf("write auth: %v", err)
		}

		env := readEnvelope(t, ws)
		ack, err := protocol.DecodeData[protocol.AuthAck](env)
		if err != nil || env.Type != protocol.MsgAuth || !ack.Success {
			t.Fatalf("ack = %+v type=%q (err %v), want success", ack, env.Type, err)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		ws := dialWS(t, ts)
		defer ws.CloseNow()

		frame, _ := protocol.Encode(protocol.MsgAuth, protocol.AuthRequest{Password: "wrong"})
		if err := ws.Write(ctx, websocket.MessageText, frame); err != nil {
			t.Fatalf("write auth: %v", err)
		}

		env := readEnvelope(t, ws)
		ack, err := protocol.DecodeData[protocol.AuthAck](env)
		if err != nil || env.Type != protocol.MsgAuth || ack.Success {
			t.Fatalf("ack = %+v type=%q (err %v), want failure", ack, env.Type, err)
		}
	})
}
