package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/synthbank/bankgen/internal/metrics"
	"github.com/synthbank/bankgen/internal/model"
	"github.com/synthbank/bankgen/internal/pipeline"
)

var (
	runStage       string
	validateConfig bool
	dryRun         bool
	setConfigKey   string
	assumeYes      bool
	metricsAddr    string
)

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&runStage, "run", "r", "", "run one stage (personas or transactions); both when omitted")
	f.BoolVar(&validateConfig, "validate-config", false, "check settings file keys and types")
	f.BoolVar(&dryRun, "dry-run", false, "show what would run and its estimated cost")
	f.StringVar(&setConfigKey, "set-config", "", "set a settings key: --set-config KEY VALUE")
	f.BoolVarP(&assumeYes, "yes", "y", false, "approve every cost confirmation gate")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve live metrics on this address during generation, e.g. :9464")

	rootCmd.Args = cobra.MaximumNArgs(1)
	rootCmd.RunE = runRoot
}

// stagesFor turns the --run value into the stages to execute.
func stagesFor(run string) ([]model.Stage, error) {
	if run == "" {
		return model.AllStages(), nil
	}
	s, err := model.ParseStage(run)
	if err != nil {
		return nil, err
	}
	return []model.Stage{s}, nil
}

func newController() *pipeline.Controller {
	opts := pipeline.Options{
		ConfigPath: configPath,
		Logger:     zap.L(),
		Metrics:    genMetrics,
	}
	if assumeYes {
		opts.Confirmer = pipeline.AutoConfirm{}
	}
	return pipeline.New(opts)
}

// runRoot dispatches in order of precedence: validate, dry run, set config,
// generate.
func runRoot(cmd *cobra.Command, args []string) error {
	switch {
	case validateConfig:
		_, err := newController().Validate()
		return err

	case dryRun:
		if loadErr != nil {
			return loadErr
		}
		stages, err := stagesFor(runStage)
		if err != nil {
			return err
		}
		return newController().DryRun(stages)

	case cmd.Flags().Changed("set-config"):
		if len(args) != 1 {
			return eris.New("--set-config needs KEY VALUE")
		}
		return newController().SetConfig(setConfigKey, args[0])
	}

	if len(args) > 0 {
		return eris.Errorf("unexpected argument %q", args[0])
	}
	if loadErr != nil {
		return loadErr
	}
	stages, err := stagesFor(runStage)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		srv, err := metrics.Serve(metricsAddr, genMetrics, zap.L())
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("metrics server shutdown", zap.Error(err))
			}
		}()
	}

	sum, err := newController().Generate(ctx, stages)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Run %s complete on %s: %d input / %d output tokens, $%.4f\n",
		sum.RunID, sum.Backend, sum.Usage.InputTokens, sum.Usage.OutputTokens, sum.CostUSD)
	return nil
}
