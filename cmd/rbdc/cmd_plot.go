package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/rbdc/internal/models"
	"github.com/nvandessel/rbdc/internal/render"
	"github.com/nvandessel/rbdc/internal/simulation"
)

func newPlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Run one parameter set and plot its profile and radius series",
		Long: `Run one parameter set and write PNG plots:

  <prefix>_profile.png  concentration profile at the peak radius
  <prefix>_radius.png   activation radius over time

With --animate, every recorded profile is also written as an MJPEG AVI.

Examples:
  rbdc plot --out-dir plots
  rbdc plot --set dose=2 --animate --fps 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			dir, _ := cmd.Flags().GetString("out-dir")
			prefix, _ := cmd.Flags().GetString("prefix")
			animate, _ := cmd.Flags().GetBool("animate")
			fps, _ := cmd.Flags().GetInt("fps")

			p, err := resolveParams(cmd, a.base())
			if err != nil {
				return err
			}
			if prefix == "" || filepath.Base(prefix) != prefix {
				return &models.ValidationError{Field: "prefix", Value: prefix, Reason: "must be a plain file name prefix"}
			}

			rec := render.NewRecorder(p)
			run, err := simulation.Run(cmd.Context(), p,
				simulation.WithObserver(rec.Observe),
				simulation.WithLogger(a.logger),
				simulation.WithRunLogger(a.runLogger))
			if err != nil {
				return err
			}

			var written []string
			peak, ok := rec.PeakFrame()
			if ok {
				pl, err := render.ProfilePlot(peak, 0)
				if err != nil {
					return err
				}
				path := filepath.Join(dir, prefix+"_profile.png")
				if err := render.SavePNG(path, pl); err != nil {
					return err
				}
				written = append(written, path)
			}

			pl, err := render.SeriesPlot(run.Series)
			if err != nil {
				return err
			}
			path := filepath.Join(dir, prefix+"_radius.png")
			if err := render.SavePNG(path, pl); err != nil {
				return err
			}
			written = append(written, path)

			if animate {
				path := filepath.Join(dir, prefix+"_profile.avi")
				if err := render.SaveAnimation(path, rec.Frames, fps); err != nil {
					return err
				}
				written = append(written, path)
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"files":      written,
					"frames":     len(rec.Frames),
					"max_radius": run.MaxRadius(),
				})
			}
			for _, f := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", f)
			}
			return nil
		},
	}

	addParamFlags(cmd)
	cmd.Flags().String("out-dir", ".", "Directory for the plot files")
	cmd.Flags().String("prefix", "rbdc", "File name prefix")
	cmd.Flags().Bool("animate", false, "Also write an AVI of every recorded profile")
	cmd.Flags().Int("fps", render.DefaultFPS, "Animation frame rate")

	return cmd
}
