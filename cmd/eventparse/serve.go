// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/eventparse/internal/pipeline"
	"github.com/pdiddy/eventparse/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the parse API over HTTP",
	Long: `Serve exposes POST /v1/parse, GET /healthz and GET /metrics. Expired cache
entries are purged on the cache.purge_schedule cron spec. The server shuts
down gracefully on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		svc, log, err := newService(cfg, serviceOptions{registry: reg})
		if err != nil {
			return err
		}
		defer log.Sync()
		defer svc.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		purger, err := schedulePurge(ctx, svc, cfg.Cache.PurgeSchedule, log)
		if err != nil {
			return err
		}
		purger.Start()
		defer purger.Stop()

		return server.New(cfg.Server, svc, reg, log).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "bind address (default 127.0.0.1:8080)")
	_ = viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))

	rootCmd.AddCommand(serveCmd)
}

// schedulePurge returns a cron scheduler that purges expired cache entries
// on spec. The caller starts and stops it.
func schedulePurge(ctx context.Context, svc *pipeline.Service, spec string, log *zap.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		n, err := svc.Purge(ctx)
		if err != nil {
			log.Warn("cache purge failed", zap.Error(err))
			return
		}
		log.Info("cache purged", zap.Int("removed", n))
	})
	if err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", spec, err)
	}
	return c, nil
}
