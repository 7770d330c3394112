package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"camerabridge/internal/bridge"
)

var tokenCmd = &cobra.Command{
	Use:   "token <camera-id>",
	Short: "Issue a signaling access token for a camera",
	Long: `Issue a short-lived access token bound to one registered camera. The token
is signed with auth.secret, so a running server with the same secret
accepts it on /ws.`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	reg, store, err := openRegistry(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	issuer, err := bridge.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL.Duration(), reg)
	if err != nil {
		return err
	}
	tok, err := issuer.Issue(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"token":     tok.Token,
		"cameraId":  tok.CameraID,
		"expiresIn": tok.ExpiresIn(),
		"expiresAt": tok.ExpiresAt,
	})
}
