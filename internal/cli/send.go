package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/hexid"
)

var sendCmd = &cobra.Command{
	Use:   "send <type>",
	Short: "Send one event to a server",
	Long: `Send a single event to a pulseboard server. Intended for agent hook
scripts and for testing.

Types: session.created, session.updated, session.idle, timeline, tokens

Examples:
  pulseboard send session.created --session abc123 --title "refactor auth"
  pulseboard send timeline --session abc123 --event-type tool --summary "go test ./..."
  pulseboard send tokens --session abc123 --tokens-in 1200 --tokens-out 300 --cost 0.04`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringP("server", "s", "", "Server URL (default from ~/.pulseboard/config.json)")
	sendCmd.Flags().String("auth-token", "", "Bearer token for API access")
	sendCmd.Flags().String("session", "", "Session id (generated when omitted)")
	sendCmd.Flags().String("title", "", "Session title")
	sendCmd.Flags().String("hostname", "", "Reporting hostname (default: this machine)")
	sendCmd.Flags().String("directory", "", "Working directory")
	sendCmd.Flags().String("parent", "", "Parent session id for sub-agents")
	sendCmd.Flags().String("event-type", "", "Timeline event type (tool, message, user, error, permission)")
	sendCmd.Flags().String("summary", "", "Timeline event summary")
	sendCmd.Flags().String("tool", "", "Tool name for tool events")
	sendCmd.Flags().String("provider", "", "Provider id for token events")
	sendCmd.Flags().String("model", "", "Model id for token events")
	sendCmd.Flags().Int64("tokens-in", 0, "Input tokens")
	sendCmd.Flags().Int64("tokens-out", 0, "Output tokens")
	sendCmd.Flags().Float64("cost", 0, "Cost in USD")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	eventType := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	serverURL, _ := cmd.Flags().GetString("server")
	if serverURL == "" {
		serverURL = cfg.ServerURL
	}
	if serverURL == "" {
		serverURL = fmt.Sprintf("http://127.0.0.1:%d", config.DefaultPort)
	}
	authToken, _ := cmd.Flags().GetString("auth-token")
	if authToken == "" {
		authToken = cfg.AuthToken
	}

	sessionID, _ := cmd.Flags().GetString("session")
	if sessionID == "" {
		sessionID = hexid.New()
		fmt.Printf("Session id: %s\n", sessionID)
	}
	hostname, _ := cmd.Flags().GetString("hostname")
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	payload := map[string]any{
		"type":      eventType,
		"sessionId": sessionID,
		"hostname":  hostname,
		"timestamp": time.Now().UnixMilli(),
	}
	addStringFlag(cmd, payload, "title", "title")
	addStringFlag(cmd, payload, "directory", "directory")
	addStringFlag(cmd, payload, "parent", "parentSessionId")
	addStringFlag(cmd, payload, "event-type", "eventType")
	addStringFlag(cmd, payload, "summary", "summary")
	addStringFlag(cmd, payload, "tool", "tool")
	addStringFlag(cmd, payload, "provider", "providerId")
	addStringFlag(cmd, payload, "model", "modelId")
	if v, _ := cmd.Flags().GetInt64("tokens-in"); v != 0 {
		payload["tokensIn"] = v
	}
	if v, _ := cmd.Flags().GetInt64("tokens-out"); v != 0 {
		payload["tokensOut"] = v
	}
	if v, _ := cmd.Flags().GetFloat64("cost"); v != 0 {
		payload["cost"] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, serverURL+"/api/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	httpc := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpc.Do(req)
	if err != nil {
		return fmt.Errorf("sending event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	fmt.Println("Event accepted.")
	return nil
}

func addStringFlag(cmd *cobra.Command, payload map[string]any, flag, field string) {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		payload[field] = v
	}
}
