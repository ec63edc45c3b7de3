// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/eventparse/internal/pipeline"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the language-model backend",
	Long: `Health reports whether the configured language-model backend is reachable.
It exits non-zero when the service is degraded; parsing still works in that
state, without enhancement.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		svc, log, err := newService(cfg, serviceOptions{noCache: true})
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.HealthTimeout)
		defer cancel()
		h := svc.Health(ctx)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(h); err != nil {
			return err
		}
		if h.Status != pipeline.StatusAvailable {
			return fmt.Errorf("service %s: %s", h.Status, h.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
