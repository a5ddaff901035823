// Package pushover forwards attention-worthy session notifications to
// the Pushover API so a phone buzzes when an agent is blocked on a
// human.
package pushover

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/pkg/protocol"
)

const (
	apiURL = "https://api.pushover.net/1/messages.json"

	// MaxTitleLen is the maximum length for a Pushover notification title.
	MaxTitleLen = 250

	// MaxMessageLen is the maximum length for a Pushover notification message.
	MaxMessageLen = 1024
)

// Priority levels for Pushover notifications.
const (
	PriorityLowest = -2
	PriorityLow    = -1
	PriorityNormal = 0
	PriorityHigh   = 1
)

// Config holds Pushover API credentials.
type Config struct {
	UserKey  string `json:"user_key,omitempty"`
	AppToken string `json:"app_token,omitempty"`
}

// Configured returns true if both credentials are set.
func (c Config) Configured() bool {
	return c.UserKey != "" && c.AppToken != ""
}

// Message is one notification to send.
type Message struct {
	Title    string
	Body     string
	Priority int
}

type apiResponse struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors,omitempty"`
}

// Send delivers one message. Titles and bodies beyond the API limits
// are truncated rather than rejected.
func Send(cfg Config, msg Message) error {
	if !cfg.Configured() {
		return fmt.Errorf("pushover not configured")
	}

	title := msg.Title
	if len(title) > MaxTitleLen {
		title = title[:MaxTitleLen]
	}
	body := msg.Body
	if len(body) > MaxMessageLen {
		body = body[:MaxMessageLen]
	}

	form := url.Values{
		"token":    {cfg.AppToken},
		"user":     {cfg.UserKey},
		"title":    {title},
		"message":  {body},
		"priority": {fmt.Sprintf("%d", msg.Priority)},
	}

	httpc := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpc.Post(apiURL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("sending pushover notification: %w", err)
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding pushover response: %w", err)
	}
	if result.Status != 1 {
		return fmt.Errorf("pushover API error: %s", strings.Join(result.Errors, "; "))
	}
	return nil
}

// Notifier pushes Pushover alerts for the notifications a human should
// act on: a session waiting on a permission prompt, or a session error.
// Everything else is a no-op; the live dashboard carries those. It
// satisfies the ingestion processor's notifier interface so it can be
// fanned out next to the WebSocket hub.
//
// Sends happen on the ingestion path, so they run in a goroutine and
// failures only log.
type Notifier struct {
	cfg Config
}

func NewNotifier(cfg Config) *Notifier {
	return &Notifier{cfg: cfg}
}

func (n *Notifier) Attention(att *protocol.Attention) {
	if !att.NeedsAttention || att.SubAgent {
		return
	}
	title := att.Title
	if title == "" {
		title = att.SessionID
	}
	n.send(Message{
		Title:    "Agent needs attention",
		Body:     title,
		Priority: PriorityHigh,
	})
}

func (n *Notifier) ErrorNotice(notice *protocol.ErrorNotice) {
	n.send(Message{
		Title:    "Agent error",
		Body:     notice.Message,
		Priority: PriorityNormal,
	})
}

func (n *Notifier) SessionCreated(*protocol.Session)      {}
func (n *Notifier) SessionUpdated(*protocol.Session)      {}
func (n *Notifier) TimelineEvent(*protocol.TimelineEvent) {}
func (n *Notifier) Idle(*protocol.Idle)                   {}

func (n *Notifier) send(msg Message) {
	go func() {
		if err := Send(n.cfg, msg); err != nil {
			logging.Logger.Error("pushover send failed", "title", msg.Title, "error", err)
		}
	}()
}
