package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/rbdc/internal/export"
	"github.com/nvandessel/rbdc/internal/models"
	"github.com/nvandessel/rbdc/internal/sweep"
)

// sweepResult is the --json output of rbdc sweep.
type sweepResult struct {
	Path      string         `json:"path"`
	Runs      int            `json:"runs"`
	Records   int            `json:"records"`
	ElapsedMs int64          `json:"elapsed_ms"`
	Failures  []sweepFailure `json:"failures,omitempty"`
}

type sweepFailure struct {
	Index  int    `json:"index"`
	Params string `json:"params"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a parameter sweep and export one combined dataset",
		Long: `Run every parameter set of a sweep file concurrently and write one CSV.

A sweep file (YAML, TOML or JSON) sets a base and either an explicit list of
runs or ranges combined by cartesian product:

  base:
    dose: 1
  ranges:
    - name: diffusion_coefficient
      values: [1e-6, 2e-6]
    - name: dose
      start: 0.5
      end: 2
      step: 0.5

A failed run does not stop the others. The command exits non-zero when any
run failed, after listing each failure with its error kind.

Examples:
  rbdc sweep --config sweep.yaml --out data.csv
  rbdc sweep --config sweep.toml --out data.csv.gz --workers 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			configPath, _ := cmd.Flags().GetString("config")
			out, _ := cmd.Flags().GetString("out")
			workers, _ := cmd.Flags().GetInt("workers")

			base, err := resolveParams(cmd, a.base())
			if err != nil {
				return err
			}
			cfg, err := sweep.LoadConfig(configPath, base)
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = cfg.Workers
			}
			if workers <= 0 {
				workers = a.cfg.Sweep.Workers
			}

			driver := &sweep.Driver{
				Workers:   workers,
				Logger:    a.logger,
				RunLogger: a.runLogger,
			}
			summary, err := driver.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			records := summary.Records()
			if err := export.WriteFile(out, records); err != nil {
				return err
			}

			failed := summary.Failed()
			result := sweepResult{
				Path:      out,
				Runs:      len(summary.Results),
				Records:   len(records),
				ElapsedMs: summary.Elapsed.Milliseconds(),
			}
			for _, r := range failed {
				result.Failures = append(result.Failures, sweepFailure{
					Index:  r.Index,
					Params: r.Params.String(),
					Kind:   models.Kind(r.Err),
					Error:  r.Err.Error(),
				})
			}

			if jsonOutput(cmd) {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Sweep complete: %d runs, %d records → %s (%s)\n",
					result.Runs, result.Records, out, summary.Elapsed.Round(1e6))
				for _, f := range result.Failures {
					fmt.Fprintf(cmd.ErrOrStderr(), "  run %d failed [%s]: %s\n", f.Index, f.Kind, f.Error)
				}
			}

			if len(failed) > 0 {
				return fmt.Errorf("%d of %d runs failed: %w", len(failed), len(summary.Results), failed[0].Err)
			}
			return nil
		},
	}

	addParamFlags(cmd)
	cmd.Flags().String("config", "", "Sweep file (YAML, TOML or JSON)")
	cmd.Flags().String("out", "", "Output CSV path (.csv or .csv.gz)")
	cmd.Flags().Int("workers", 0, "Concurrent runs (default: sweep file, then config, then GOMAXPROCS)")
	cmd.MarkFlagRequired("config")
	cmd.MarkFlagRequired("out")

	return cmd
}
