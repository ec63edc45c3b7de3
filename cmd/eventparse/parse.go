// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/eventparse/internal/export"
	"github.com/pdiddy/eventparse/pkg/types"
)

var parseCmd = &cobra.Command{
	Use:   "parse [text]",
	Short: "Extract one event from text",
	Long: `Parse reads text from the arguments, or from stdin when none are given, and
prints the extracted event. Relative expressions such as "tomorrow" are
resolved against --now in --tz.`,
	Example: `  eventparse parse "Meeting at Starbucks next Friday 2pm" --tz America/New_York
  echo "standup every weekday at 9:15" | eventparse parse --mode audit --format yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readText(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		req, err := requestFromFlags(cmd, text)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		noLLM, _ := cmd.Flags().GetBool("no-llm")

		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		svc, log, err := newService(cfg, serviceOptions{noLLM: noLLM, noCache: req.NoCache})
		if err != nil {
			return err
		}
		defer log.Sync()
		defer svc.Close()

		res, err := svc.Parse(cmd.Context(), req)
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), res, format, time.Now())
	},
}

func init() {
	parseCmd.Flags().String("now", "", "reference time, RFC 3339 (default: current time)")
	parseCmd.Flags().String("tz", defaultTimezone(), "IANA timezone for relative expressions")
	parseCmd.Flags().String("mode", "", "output mode: default or audit")
	parseCmd.Flags().String("fields", "", "comma-separated fields to extract (default: all)")
	parseCmd.Flags().String("format", "json", "output format: json, yaml or ics")
	parseCmd.Flags().Bool("no-cache", false, "bypass the result cache")
	parseCmd.Flags().Bool("no-llm", false, "disable language-model enhancement")

	rootCmd.AddCommand(parseCmd)
}

// defaultTimezone returns $TZ when it names an IANA zone, otherwise UTC.
func defaultTimezone() string {
	if tz := os.Getenv("TZ"); tz != "" {
		if _, err := time.LoadLocation(tz); err == nil && !strings.EqualFold(tz, "local") {
			return tz
		}
	}
	return "UTC"
}

func readText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

func requestFromFlags(cmd *cobra.Command, text string) (types.Request, error) {
	nowFlag, _ := cmd.Flags().GetString("now")
	tz, _ := cmd.Flags().GetString("tz")
	mode, _ := cmd.Flags().GetString("mode")
	fields, _ := cmd.Flags().GetString("fields")
	noCache, _ := cmd.Flags().GetBool("no-cache")

	now := time.Now().Truncate(time.Second)
	if nowFlag != "" {
		t, err := time.Parse(time.RFC3339, nowFlag)
		if err != nil {
			return types.Request{}, fmt.Errorf("invalid --now %q: %w", nowFlag, err)
		}
		now = t
	}
	set, err := types.ParseFieldSet(fields)
	if err != nil {
		return types.Request{}, err
	}
	return types.Request{
		Text:          text,
		ReferenceTime: now,
		Timezone:      tz,
		Mode:          types.Mode(mode),
		Fields:        set,
		NoCache:       noCache,
	}, nil
}

// output is the printed form of a result.
type output struct {
	types.NormalizedEvent `yaml:",inline"`
	Metadata              types.Metadata `json:"metadata" yaml:"metadata"`
}

func writeResult(w io.Writer, res *types.Result, format string, stamp time.Time) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(output{*res.Event, res.Metadata})
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(output{*res.Event, res.Metadata}); err != nil {
			return err
		}
		return enc.Close()
	case "ics":
		doc, err := export.ICS(res.Event, res.Metadata.RequestID, stamp)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, doc)
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
