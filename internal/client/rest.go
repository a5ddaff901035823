package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pulseboard/pulseboard/pkg/protocol"
)

// resync replaces the local session list with the server's REST view.
func (m *Manager) resync(ctx context.Context) error {
	sessions, err := m.FetchSessions(ctx)
	if err != nil {
		return err
	}
	m.state.ReplaceSessions(sessions)
	m.onChange()
	return nil
}

// FetchSessions loads the full session list over REST.
func (m *Manager) FetchSessions(ctx context.Context) ([]protocol.Session, error) {
	var sessions []protocol.Session
	if err := m.getJSON(ctx, "/api/sessions", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// FetchTimeline loads a session's timeline over REST.
func (m *Manager) FetchTimeline(ctx context.Context, sessionID string) ([]protocol.TimelineEvent, error) {
	var events []protocol.TimelineEvent
	if err := m.getJSON(ctx, "/api/sessions/"+sessionID+"/timeline", &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (m *Manager) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.serverURL+path, nil)
	if err != nil {
		return err
	}
	if m.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+m.authToken)
	}

	resp, err := m.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
