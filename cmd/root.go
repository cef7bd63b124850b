package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/synthbank/bankgen/internal/config"
	"github.com/synthbank/bankgen/internal/generate"
	"github.com/synthbank/bankgen/internal/metrics"
	"github.com/synthbank/bankgen/internal/pipeline"
)

var (
	cfg     *config.Config
	loadErr error

	configPath  string
	metricsFile string
	genMetrics  = metrics.NewGeneration()
)

var rootCmd = &cobra.Command{
	Use:   "bankgen",
	Short: "Synthetic UK bank-statement generator",
	Long: "Generates synthetic financial personas in batches, then a messy multi-month " +
		"Open-Banking-style transaction history per persona, behind a cost confirmation gate.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			// --validate-config and --set-config work on files that do not
			// decode; commands that need cfg return loadErr.
			loadErr = eris.Wrap(err, "load config")
			return config.InitLogger(config.LogConfig{Level: "info", Format: "console"})
		}
		cfg = c

		if err := config.InitLogger(cfg.Log()); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics in textfile format to this path")
}

// exitCode maps a command error to the process exit status. A declined cost
// gate and unusable generation parameters are reported but not failures.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, pipeline.ErrDeclined):
		return 0
	case errors.Is(err, generate.ErrInvalidParams):
		return 0
	default:
		return 1
	}
}

// writeMetrics runs after every command, failed ones included.
func writeMetrics() {
	if metricsFile == "" {
		return
	}
	if err := genMetrics.WriteTextfile(metricsFile); err != nil {
		zap.L().Warn("write metrics textfile", zap.String("path", metricsFile), zap.Error(err))
	}
}

func main() {
	err := rootCmd.Execute()
	writeMetrics()
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrDeclined):
		fmt.Fprintln(os.Stderr, "Aborted by user.")
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}
