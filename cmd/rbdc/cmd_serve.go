package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/rbdc/internal/query"
	"github.com/nvandessel/rbdc/internal/visualization"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the interactive exploration page and query API",
		Long: `Serve a page for adjusting parameters and watching the activation radius
respond, backed by a JSON query API:

  GET  /api/defaults    base parameter set and option names
  GET  /api/query       ?dose=2&decay_rate=1e-4 ...
  POST /api/query       {"dose": 2, ...}
  GET  /api/plot.png    radius series chart for the same options

A newer query from the same session (X-RBDC-Session header) cancels the
older one. Stop with Ctrl-C.

Examples:
  rbdc serve
  rbdc serve --addr :9000 --dataset data.csv --open`,
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

			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = a.cfg.Serve.Addr
			}
			srv := visualization.NewServer(query.NewExplorer(svc), visualization.Options{
				Addr:      addr,
				RateLimit: a.cfg.Serve.RateLimit,
				Burst:     a.cfg.Serve.Burst,
				Logger:    a.logger,
			})

			open, _ := cmd.Flags().GetBool("open")
			go announce(cmd, srv, open)

			return srv.ListenAndServe(cmd.Context())
		},
	}

	addServiceFlags(cmd)
	cmd.Flags().String("addr", "", "Listen address (default: serve.addr)")
	cmd.Flags().Bool("open", false, "Open the page in the default browser")

	return cmd
}

// announce prints the server URL once it is listening and optionally opens
// it in a browser.
func announce(cmd *cobra.Command, srv *visualization.Server, open bool) {
	ctx := cmd.Context()
	for srv.Addr() == "" {
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
	url := "http://" + srv.Addr() + "/"
	fmt.Fprintf(cmd.ErrOrStderr(), "Serving on %s\n", url)
	if open {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\n", err)
		}
	}
}
