package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/rbdc/internal/config"
	"github.com/nvandessel/rbdc/internal/logging"
	"github.com/nvandessel/rbdc/internal/models"
	"github.com/nvandessel/rbdc/internal/telemetry"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rbdc",
		Short: "Capsule chemoattractant diffusion and activation radius engine",
		Long: `rbdc simulates a degrading capsule releasing a chemoattractant into tissue,
solves its diffusion-reaction field, and reports the activation radius: how
far from the capsule the concentration stays at or above a threshold.

Run a single parameter set, sweep many into a CSV dataset, query radii
interactively over HTTP or MCP, and plot profiles.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &models.ValidationError{Field: "flags", Reason: err.Error()}
	})

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("log-level", "", "Log verbosity: info, debug or trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newSweepCmd(),
		newQueryCmd(),
		newTuneCmd(),
		newPlotCmd(),
		newServeCmd(),
		newMCPServerCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// formatError renders a command failure as "error [kind]: message".
func formatError(err error) string {
	return fmt.Sprintf("error [%s]: %v", models.Kind(err), err)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rbdc version %s\n", version)
			return nil
		},
	}
}

// app carries what every command that runs simulations needs.
type app struct {
	cfg       *config.RBDCConfig
	logger    *slog.Logger
	runLogger *logging.RunLogger
	shutdown  func(context.Context) error
}

// newApp loads configuration and starts logging and tracing.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()),
	}
	if dir, err := config.Dir(); err == nil {
		a.runLogger = logging.NewRunLogger(dir, cfg.Logging.Level)
	}
	a.shutdown, err = telemetry.Setup(cmd.Context(), "rbdc", cfg.Telemetry.OTelEndpoint)
	if err != nil {
		a.logger.Warn("tracing disabled", "error", err)
	}
	return a, nil
}

// Close flushes traces and closes the run log.
func (a *app) Close() {
	a.runLogger.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("flushing traces", "error", err)
	}
}

// base returns the configured base parameter set with defaults filled in.
func (a *app) base() models.ParameterSet {
	return a.cfg.Parameters.WithDefaults()
}

// addParamFlags registers --params and --set.
func addParamFlags(cmd *cobra.Command) {
	cmd.Flags().String("params", "", "Parameter file (YAML, TOML or JSON) applied over the configured base")
	cmd.Flags().StringArray("set", nil, "Override one option as key=value (repeatable)")
}

// hasParamOverlays reports whether --params or --set was given.
func hasParamOverlays(cmd *cobra.Command) bool {
	return cmd.Flags().Changed("params") || cmd.Flags().Changed("set")
}

// resolveParams applies --params then each --set to base.
func resolveParams(cmd *cobra.Command, base models.ParameterSet) (models.ParameterSet, error) {
	p := base
	if path, _ := cmd.Flags().GetString("params"); path != "" {
		var err error
		p, err = config.LoadParameterSet(path, p)
		if err != nil {
			return p, err
		}
	}
	sets, _ := cmd.Flags().GetStringArray("set")
	for _, kv := range sets {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return p, &models.ValidationError{Field: "set", Value: kv, Reason: "want key=value"}
		}
		if err := p.Set(strings.TrimSpace(name), raw); err != nil {
			return p, err
		}
	}
	return p.WithDefaults(), nil
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
