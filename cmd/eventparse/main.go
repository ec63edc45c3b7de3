// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the eventparse CLI.
package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/eventparse/internal/cache"
	"github.com/pdiddy/eventparse/internal/enhance"
	"github.com/pdiddy/eventparse/internal/logging"
	"github.com/pdiddy/eventparse/internal/pipeline"
	"github.com/pdiddy/eventparse/internal/secrets"
	"github.com/pdiddy/eventparse/internal/telemetry"
	"github.com/pdiddy/eventparse/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets secrets.Secrets

// rootCmd is the base command for the eventparse CLI.
var rootCmd = &cobra.Command{
	Use:   "eventparse",
	Short: "Extract calendar events from natural-language text",
	Long: `eventparse turns free text such as "Meeting at Starbucks next Friday 2pm"
into a structured calendar event with a confidence score per field.

Text is read by a deterministic pattern tier first. Low-confidence dates go to
a deterministic backup parser, and whatever is still unresolved can be sent to
a language model. Results are cached by request fingerprint.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(secrets.DefaultDir, nil)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./eventparse.yaml or ~/.config/eventparse/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: json or console")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("eventparse")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "eventparse"))
		}
	}

	setDefaults(viper.GetViper())
	viper.SetEnvPrefix("EVENTPARSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every configuration key so that environment
// variables such as EVENTPARSE_CACHE_BACKEND reach Unmarshal.
func setDefaults(v *viper.Viper) {
	d := types.Config{}.WithDefaults()

	v.SetDefault("pipeline.essential_threshold", d.Pipeline.EssentialThreshold)
	v.SetDefault("pipeline.optional_threshold", d.Pipeline.OptionalThreshold)
	v.SetDefault("pipeline.backup_accept", d.Pipeline.BackupAccept)
	v.SetDefault("pipeline.confirm_threshold", d.Pipeline.ConfirmThreshold)
	v.SetDefault("pipeline.default_duration", d.Pipeline.DefaultDuration)

	v.SetDefault("enhancement.provider", string(d.Enhancement.Provider))
	v.SetDefault("enhancement.model", d.Enhancement.Model)
	v.SetDefault("enhancement.api_key", "")
	v.SetDefault("enhancement.base_url", "")
	v.SetDefault("enhancement.max_tokens", d.Enhancement.MaxTokens)
	v.SetDefault("enhancement.timeout", d.Enhancement.Timeout)
	v.SetDefault("enhancement.requests_per_minute", d.Enhancement.RequestsPerMinute)
	v.SetDefault("enhancement.max_confidence", d.Enhancement.MaxConfidence)

	v.SetDefault("cache.backend", string(d.Cache.Backend))
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.purge_schedule", d.Cache.PurgeSchedule)

	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.health_timeout", d.Server.HealthTimeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// loadConfig decodes the merged configuration and fills the enhancement
// key from .secrets/ when the configuration carries none.
func loadConfig(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg = cfg.WithDefaults()
	loadedSecrets.Apply(&cfg.Enhancement)
	return cfg, nil
}

// serviceOptions selects the optional parts of a pipeline built by
// newService.
type serviceOptions struct {
	noLLM    bool
	noCache  bool
	registry prometheus.Registerer
}

// newService builds the logger and the pipeline from cfg.
func newService(cfg types.Config, so serviceOptions) (*pipeline.Service, *zap.Logger, error) {
	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, err
	}

	opts := pipeline.Options{Config: cfg.Pipeline, Logger: log}
	if !so.noLLM {
		backend, err := enhance.NewBackend(cfg.Enhancement, &http.Client{})
		if err != nil {
			return nil, nil, err
		}
		if backend != nil {
			opts.Enhancer = enhance.New(backend, cfg.Enhancement, log)
		}
	}
	if !so.noCache {
		store, err := cache.Open(cfg.Cache)
		if err != nil {
			return nil, nil, err
		}
		opts.Cache = store
	}
	if so.registry != nil {
		m, err := telemetry.New(so.registry)
		if err != nil {
			return nil, nil, err
		}
		opts.Metrics = m
	}
	return pipeline.New(opts), log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
