package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/rbdc/internal/config"
	"github.com/nvandessel/rbdc/internal/mcp"
	"github.com/nvandessel/rbdc/internal/models"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Run rbdc as an MCP server over stdio",
		Long: `Run rbdc as a Model Context Protocol server on stdin/stdout.

Tools:
  rbdc_query     activation series for a parameter set
  rbdc_defaults  base parameter set and option names
  rbdc_sweep     run a sweep and export a CSV dataset

Sweep exports are confined to --output-dir. Tool calls are audited to
~/.rbdc/audit.jsonl.

Example MCP client configuration:
  {
    "mcpServers": {
      "rbdc": {"command": "rbdc", "args": ["mcp-server", "--output-dir", "/data/rbdc"]}
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			outputDir, _ := cmd.Flags().GetString("output-dir")
			if outputDir == "" {
				outputDir = a.cfg.MCP.OutputDir
			}
			outputDir, err = filepath.Abs(outputDir)
			if err != nil {
				return &models.ValidationError{Field: "output-dir", Value: outputDir, Reason: err.Error()}
			}

			svc, closeSvc, err := newQueryService(cmd, a, a.cfg.Serve.Dataset)
			if err != nil {
				return err
			}
			defer closeSvc()

			auditDir, err := config.Dir()
			if err != nil {
				a.logger.Warn("audit log disabled", "error", err)
				auditDir = ""
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:      "rbdc",
				Version:   version,
				Query:     svc,
				OutputDir: outputDir,
				Workers:   a.cfg.Sweep.Workers,
				AuditDir:  auditDir,
				Logger:    a.logger,
				RunLogger: a.runLogger,
			})
			if err != nil {
				return fmt.Errorf("creating MCP server: %w", err)
			}

			a.logger.Info("MCP server starting", "output_dir", outputDir)
			return server.Run(cmd.Context())
		},
	}

	addServiceFlags(cmd)
	cmd.Flags().String("output-dir", "", "Directory sweep exports are confined to (default: mcp.output_dir)")

	return cmd
}
