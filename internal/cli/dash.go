package cli

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pulseboard/pulseboard/internal/client"
	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/dashtui"
)

var dashCmd = &cobra.Command{
	Use:   "dash",
	Short: "Open the terminal dashboard",
	Long:  `Connect to a pulseboard server and watch sessions live.`,
	Args:  cobra.NoArgs,
	RunE:  runDash,
}

func init() {
	dashCmd.Flags().StringP("server", "s", "", "Server URL (default from ~/.pulseboard/config.json)")
	dashCmd.Flags().String("password", "", "Dashboard password")
	dashCmd.Flags().String("auth-token", "", "Bearer token for API access")
	rootCmd.AddCommand(dashCmd)
}

func runDash(cmd *cobra.Command, args []string) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("dash requires an interactive terminal")
	}

	opts, err := dashClientOptions(cmd)
	if err != nil {
		return err
	}
	return dashtui.Run(opts)
}

// dashClientOptions resolves connection settings: flags first, then
// ~/.pulseboard/config.json, then local defaults.
func dashClientOptions(cmd *cobra.Command) (client.Options, error) {
	cfg, err := config.Load()
	if err != nil {
		return client.Options{}, fmt.Errorf("loading config: %w", err)
	}

	serverURL, _ := cmd.Flags().GetString("server")
	password, _ := cmd.Flags().GetString("password")
	authToken, _ := cmd.Flags().GetString("auth-token")

	if serverURL == "" {
		serverURL = cfg.ServerURL
	}
	if serverURL == "" {
		serverURL = fmt.Sprintf("http://127.0.0.1:%d", config.DefaultPort)
	}
	if password == "" {
		password = cfg.Password
	}
	if authToken == "" {
		authToken = cfg.AuthToken
	}

	return client.Options{
		ServerURL: serverURL,
		Password:  password,
		AuthToken: authToken,
	}, nil
}
