package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pulseboard/pulseboard/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or change settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print current settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		fmt.Printf("server-url:    %s\n", valueOrUnset(cfg.ServerURL))
		fmt.Printf("password:      %s\n", maskValue(cfg.Password))
		fmt.Printf("auth-token:    %s\n", maskValue(cfg.AuthToken))
		fmt.Printf("db-path:       %s\n", valueOrUnset(cfg.DBPath))
		fmt.Printf("pushover-user: %s\n", maskValue(cfg.Pushover.UserKey))
		fmt.Printf("pushover-app:  %s\n", maskValue(cfg.Pushover.AppToken))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one setting",
	Long: `Set one setting in ~/.pulseboard/config.json.

Keys: server-url, password, auth-token, db-path, pushover-user, pushover-app

Set a key to an empty string to clear it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		switch key {
		case "server-url":
			cfg.ServerURL = value
		case "password":
			cfg.Password = value
		case "auth-token":
			cfg.AuthToken = value
		case "db-path":
			cfg.DBPath = value
		case "pushover-user":
			cfg.Pushover.UserKey = value
		case "pushover-app":
			cfg.Pushover.AppToken = value
		default:
			return fmt.Errorf("unknown key %q", key)
		}
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Printf("Set %s.\n", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func valueOrUnset(v string) string {
	if v == "" {
		return "(unset)"
	}
	return v
}

func maskValue(v string) string {
	if v == "" {
		return "(unset)"
	}
	return "********"
}
