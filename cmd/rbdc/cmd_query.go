package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/rbdc/internal/export"
	"github.com/nvandessel/rbdc/internal/query"
	"github.com/nvandessel/rbdc/internal/store"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Look up or compute the activation series for a parameter set",
		Long: `Answer a query from an exported dataset, the run cache, or a fresh run,
in that order, and print the activation series.

Examples:
  rbdc query --set dose=2
  rbdc query --dataset data.csv --set dose=1.5 --set diffusion_coefficient=2e-6
  rbdc query --cache ~/.rbdc/cache.db --params capsule.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			svc, closeSvc, err := newQueryService(cmd, a, a.cfg.Serve.Dataset)
			if err != nil {
				return err
			}
			defer closeSvc()

			p, err := resolveParams(cmd, svc.Base())
			if err != nil {
				return err
			}
			resp, err := svc.Query(cmd.Context(), p)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "source: %s\n", resp.Source)
			fmt.Fprintf(w, "%-14s %s\n", "time", "activation_radius")
			for _, s := range resp.Series {
				fmt.Fprintf(w, "%-14s %s\n", export.FormatFloat(s.Time), export.FormatFloat(s.Radius))
			}
			if len(resp.Warnings) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", strings.Join(resp.Warnings, "; "))
			}
			return nil
		},
	}

	addParamFlags(cmd)
	addServiceFlags(cmd)

	return cmd
}

// addServiceFlags registers the flags selecting a query service's dataset
// and cache.
func addServiceFlags(cmd *cobra.Command) {
	cmd.Flags().String("dataset", "", "Exported CSV consulted before computing (default: serve.dataset)")
	cmd.Flags().String("cache", "", "Run cache database (default: cache.path; in memory when both are empty)")
	cmd.Flags().Bool("persist-cache", false, "Use ~/.rbdc/cache.db when no cache path is configured")
}

// newQueryService builds a query service over the configured base set,
// dataset and cache. The returned func closes the cache.
func newQueryService(cmd *cobra.Command, a *app, defaultDataset string) (*query.Service, func(), error) {
	opts := []query.Option{
		query.WithLogger(a.logger),
		query.WithRunLogger(a.runLogger),
	}

	datasetPath, _ := cmd.Flags().GetString("dataset")
	if datasetPath == "" {
		datasetPath = defaultDataset
	}
	if datasetPath != "" {
		ds, err := export.LoadDataset(datasetPath)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Debug("dataset loaded", "path", datasetPath, "parameter_sets", ds.Len())
		opts = append(opts, query.WithDataset(ds))
	}

	cachePath, _ := cmd.Flags().GetString("cache")
	if cachePath == "" {
		cachePath = a.cfg.Cache.Path
	}
	if persist, _ := cmd.Flags().GetBool("persist-cache"); persist && cachePath == "" {
		var err error
		if cachePath, err = store.DefaultCachePath(); err != nil {
			return nil, nil, err
		}
	}
	cache, err := store.Open(cachePath)
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, query.WithCache(cache))

	closeFn := func() {
		if err := cache.Close(); err != nil {
			a.logger.Warn("closing run cache", "error", err)
		}
	}
	return query.NewService(a.base(), opts...), closeFn, nil
}
