// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/eventparse/internal/calibrate"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Measure confidence calibration on a labelled reference set",
	Long: `Calibrate parses every case of a YAML reference set with enhancement and
caching disabled, compares emitted fields with their labels, and prints the
reliability curve and expected calibration error as YAML.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		setPath, _ := cmd.Flags().GetString("set")
		bins, _ := cmd.Flags().GetInt("bins")
		maxECE, _ := cmd.Flags().GetFloat64("max-ece")

		set, err := calibrate.Load(setPath)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		svc, log, err := newService(cfg, serviceOptions{noLLM: true, noCache: true})
		if err != nil {
			return err
		}
		defer log.Sync()

		rep, err := calibrate.Run(cmd.Context(), svc, set, bins)
		if err != nil {
			return err
		}
		if err := rep.Write(cmd.OutOrStdout()); err != nil {
			return err
		}
		if maxECE > 0 && rep.ECE > maxECE {
			fmt.Fprintf(os.Stderr, "ECE %.4f exceeds %.4f\n", rep.ECE, maxECE)
			return fmt.Errorf("calibration error above threshold")
		}
		return nil
	},
}

func init() {
	calibrateCmd.Flags().String("set", "internal/calibrate/testdata/reference.yaml", "reference set (YAML)")
	calibrateCmd.Flags().Int("bins", 10, "number of reliability bins")
	calibrateCmd.Flags().Float64("max-ece", 0, "fail when the ECE exceeds this value (0 disables)")

	rootCmd.AddCommand(calibrateCmd)
}
