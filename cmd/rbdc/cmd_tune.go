package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/nvandessel/rbdc/internal/constants"
	"github.com/nvandessel/rbdc/internal/models"
	"github.com/nvandessel/rbdc/internal/simulation"
	"github.com/nvandessel/rbdc/internal/source"
)

// tuneStep is one iteration of rbdc tune.
type tuneStep struct {
	Dose      float64 `json:"dose"`
	MaxRadius float64 `json:"max_radius"`
}

type tuneResult struct {
	TargetRadius float64    `json:"target_radius"`
	Dose         float64    `json:"dose"`
	MaxRadius    float64    `json:"max_radius"`
	Converged    bool       `json:"converged"`
	Steps        []tuneStep `json:"steps"`

	// RecommendedDose is Dose after the patient factors.
	RecommendedDose float64            `json:"recommended_dose"`
	WBCMultiplier   float64            `json:"wbc_multiplier"`
	Severity        constants.Severity `json:"severity"`
	SafetyApproved  bool               `json:"safety_approved"`
}

func newTuneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Find the dose whose peak activation radius hits a target",
		Long: `Search for the capsule dose whose maximum activation radius over the run
matches --target-radius. Each iteration rescales the dose by the squared
ratio of target to reached radius; a dose that activates nothing is
quadrupled.

The tuned dose is then scaled for the patient by --wbc-multiplier and the
--severity factor (mild 0.7, moderate 1.0, severe 1.3). The recommendation
is safety approved when it stays below --max-safe-dose and the target stays
below --max-safe-radius; a zero limit is not checked.

Examples:
  rbdc tune --target-radius 0.002
  rbdc tune --target-radius 0.12 --wbc-multiplier 1.3 --severity severe --max-safe-dose 1e-7 --max-safe-radius 0.3
  rbdc tune --target-radius 0.5 --params capsule.yaml --tolerance 0.005 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			target, _ := cmd.Flags().GetFloat64("target-radius")
			iterations, _ := cmd.Flags().GetInt("iterations")
			tolerance, _ := cmd.Flags().GetFloat64("tolerance")
			wbc, _ := cmd.Flags().GetFloat64("wbc-multiplier")
			severity, _ := cmd.Flags().GetString("severity")
			maxDose, _ := cmd.Flags().GetFloat64("max-safe-dose")
			maxRadius, _ := cmd.Flags().GetFloat64("max-safe-radius")

			patient := source.Patient{WBCMultiplier: wbc, Severity: constants.Severity(severity)}
			if err := patient.Validate(); err != nil {
				return err
			}
			limits := source.SafetyLimits{MaxDose: maxDose, MaxRadius: maxRadius}
			if math.IsNaN(maxDose) || maxDose < 0 || math.IsNaN(maxRadius) || maxRadius < 0 {
				return &models.ValidationError{Field: "max-safe-dose/max-safe-radius", Reason: "limits must be non-negative"}
			}

			p, err := resolveParams(cmd, a.base())
			if err != nil {
				return err
			}
			if !(target > 0) || target >= p.GridExtent {
				return &models.ValidationError{Field: "target-radius", Value: target,
					Reason: fmt.Sprintf("must be in (0, grid_extent=%g)", p.GridExtent)}
			}
			if iterations < 1 {
				return &models.ValidationError{Field: "iterations", Value: iterations, Reason: "must be at least 1"}
			}
			if !(tolerance > 0) {
				return &models.ValidationError{Field: "tolerance", Value: tolerance, Reason: "must be positive"}
			}

			res := tuneResult{
				TargetRadius:  target,
				Dose:          p.Dose,
				WBCMultiplier: patient.WBCMultiplier,
				Severity:      patient.Severity,
			}
			for range iterations {
				run, err := simulation.Run(cmd.Context(), p,
					simulation.WithLogger(a.logger),
					simulation.WithRunLogger(a.runLogger))
				if err != nil {
					return err
				}
				reached := run.MaxRadius()
				res.Steps = append(res.Steps, tuneStep{Dose: p.Dose, MaxRadius: reached})
				res.Dose, res.MaxRadius = p.Dose, reached
				a.logger.Debug("tune step", "dose", p.Dose, "max_radius", reached)

				if math.Abs(reached-target) <= tolerance*target {
					res.Converged = true
					break
				}
				next := source.DoseForRadius(p.Dose, reached, target)
				if next <= 0 {
					next = p.Dose * 4
				}
				p.Dose = next
			}

			res.RecommendedDose = patient.AdjustDose(res.Dose)
			res.SafetyApproved = limits.Approve(res.RecommendedDose, target)

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			w := cmd.OutOrStdout()
			for i, s := range res.Steps {
				fmt.Fprintf(w, "  %2d  dose %-12.6g max radius %.6g\n", i+1, s.Dose, s.MaxRadius)
			}
			if res.Converged {
				fmt.Fprintf(w, "Dose %.6g reaches radius %.6g (target %.6g)\n", res.Dose, res.MaxRadius, target)
			} else {
				fmt.Fprintf(w, "Not converged after %d iterations: dose %.6g reaches %.6g (target %.6g)\n",
					len(res.Steps), res.Dose, res.MaxRadius, target)
			}
			fmt.Fprintf(w, "Recommended dose %.6g (wbc x%g, %s), safety approved: %v\n",
				res.RecommendedDose, res.WBCMultiplier, res.Severity, res.SafetyApproved)
			return nil
		},
	}

	addParamFlags(cmd)
	cmd.Flags().Float64("target-radius", 0, "Desired maximum activation radius")
	cmd.Flags().Int("iterations", 8, "Maximum number of runs")
	cmd.Flags().Float64("tolerance", 0.01, "Accepted relative error of the reached radius")
	cmd.Flags().Float64("wbc-multiplier", 1, "Patient white cell count relative to the reference count")
	cmd.Flags().String("severity", string(constants.SeverityModerate), "Disease severity: mild, moderate or severe")
	cmd.Flags().Float64("max-safe-dose", 0, "Recommended doses at or above this are not approved (0 disables)")
	cmd.Flags().Float64("max-safe-radius", 0, "Target radii at or above this are not approved (0 disables)")
	cmd.MarkFlagRequired("target-radius")

	return cmd
}
