package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/rbdc/internal/export"
	"github.com/nvandessel/rbdc/internal/models"
	"github.com/nvandessel/rbdc/internal/pathutil"
	"github.com/nvandessel/rbdc/internal/ratelimit"
	"github.com/nvandessel/rbdc/internal/sweep"
)

// DefaultsURI is the resource describing the server's base parameter set.
const DefaultsURI = "rbdc://defaults"

// registerTools registers all rbdc MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "rbdc_query",
		Description: "Activation radius over time for a capsule parameter set. Unset options keep the server's base values.",
	}, s.handleQuery)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "rbdc_defaults",
		Description: "Show the base parameter set and every recognized option name",
	}, s.handleDefaults)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "rbdc_sweep",
		Description: "Run a parameter sweep and write the results as a CSV dataset",
	}, s.handleSweep)
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         DefaultsURI,
		Name:        "rbdc-defaults",
		Description: "Base capsule, diffusion and grid options used when a query leaves them unset.",
		MIMEType:    "text/markdown",
	}, s.handleDefaultsResource)
}

func (s *Server) handleDefaultsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      DefaultsURI,
				MIMEType: "text/markdown",
				Text:     defaultsMarkdown(s.query.Base()),
			},
		},
	}, nil
}

func defaultsMarkdown(base models.ParameterSet) string {
	var sb strings.Builder
	sb.WriteString("# rbdc base parameters\n\n")
	sb.WriteString("| option | value |\n|---|---|\n")
	for _, name := range models.ParameterNames() {
		v, err := base.Get(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "| %s | %s |\n", name, v)
	}
	sb.WriteString("\nSweep ranges may vary: ")
	sb.WriteString(strings.Join(models.NumericParameterNames(), ", "))
	sb.WriteString(".\n")
	return sb.String()
}

// handleQuery implements the rbdc_query tool.
func (s *Server) handleQuery(ctx context.Context, req *sdk.CallToolRequest, args RBDCQueryInput) (_ *sdk.CallToolResult, _ RBDCQueryOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("rbdc_query", start, retErr, sanitizeToolParams(args.auditParams()))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "rbdc_query"); err != nil {
		return nil, RBDCQueryOutput{}, err
	}

	resp, err := s.query.Query(ctx, args.Apply(s.query.Base()))
	if err != nil {
		return nil, RBDCQueryOutput{}, fmt.Errorf("query failed [%s]: %w", models.Kind(err), err)
	}

	run := models.SimulationRun{Series: resp.Series}
	return nil, RBDCQueryOutput{
		Params:           resp.Params,
		Series:           resp.Series,
		Source:           resp.Source,
		MaxRadius:        run.MaxRadius(),
		DomainUndersized: resp.DomainUndersized,
		Warnings:         resp.Warnings,
	}, nil
}

// handleDefaults implements the rbdc_defaults tool.
func (s *Server) handleDefaults(ctx context.Context, req *sdk.CallToolRequest, args RBDCDefaultsInput) (_ *sdk.CallToolResult, _ RBDCDefaultsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("rbdc_defaults", start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "rbdc_defaults"); err != nil {
		return nil, RBDCDefaultsOutput{}, err
	}

	return nil, RBDCDefaultsOutput{
		Params:     s.query.Base(),
		Parameters: models.ParameterNames(),
		Numeric:    models.NumericParameterNames(),
	}, nil
}

// handleSweep implements the rbdc_sweep tool.
func (s *Server) handleSweep(ctx context.Context, req *sdk.CallToolRequest, args RBDCSweepInput) (_ *sdk.CallToolResult, _ RBDCSweepOutput, retErr error) {
	start := time.Now()
	defer func() {
		params := args.Base.auditParams()
		params["output_path"] = args.OutputPath
		params["runs"] = len(args.Runs)
		params["ranges"] = len(args.Ranges)
		if args.Workers > 0 {
			params["workers"] = args.Workers
		}
		s.auditTool("rbdc_sweep", start, retErr, sanitizeToolParams(params))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "rbdc_sweep"); err != nil {
		return nil, RBDCSweepOutput{}, err
	}

	path, err := pathutil.ResolveOutputPath(args.OutputPath, s.outputDir)
	if err != nil {
		return nil, RBDCSweepOutput{}, fmt.Errorf("output path rejected: %w", err)
	}

	cfg := sweep.Config{
		Base:   args.Base.Apply(s.query.Base()),
		Runs:   args.Runs,
		Ranges: args.Ranges,
	}
	workers := args.Workers
	if workers <= 0 {
		workers = s.workers
	}
	driver := &sweep.Driver{
		Workers:   workers,
		Logger:    s.logger,
		RunLogger: s.runLogger,
	}

	summary, err := driver.Run(ctx, cfg)
	if err != nil {
		return nil, RBDCSweepOutput{}, fmt.Errorf("sweep failed [%s]: %w", models.Kind(err), err)
	}

	records := summary.Records()
	if err := export.WriteFile(path, records); err != nil {
		return nil, RBDCSweepOutput{}, fmt.Errorf("writing dataset: %w", err)
	}

	failed := summary.Failed()
	failures := make([]FailureItem, 0, len(failed))
	for _, r := range failed {
		failures = append(failures, FailureItem{
			Index:  r.Index,
			Params: r.Params.String(),
			Kind:   models.Kind(r.Err),
			Error:  r.Err.Error(),
		})
	}

	msg := fmt.Sprintf("Sweep complete: %d runs, %d records → %s", len(summary.Results), len(records), path)
	if len(failed) > 0 {
		msg = fmt.Sprintf("Sweep finished with %d of %d runs failed: %d records → %s",
			len(failed), len(summary.Results), len(records), path)
	}

	return nil, RBDCSweepOutput{
		Path:     path,
		Runs:     len(summary.Results),
		Records:  len(records),
		Failed:   len(failed),
		Failures: failures,
		Message:  msg,
	}, nil
}

// auditTool records a tool invocation. The error kind is logged alongside
// the message so callers can be grouped without parsing text.
func (s *Server) auditTool(tool string, start time.Time, err error, params map[string]string) {
	entry := AuditEntry{
		Timestamp:  start.UTC(),
		Tool:       tool,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     "success",
		Params:     params,
	}
	if err != nil {
		entry.Status = "error"
		entry.Kind = models.Kind(err)
		entry.Error = err.Error()
	}
	s.auditLogger.Log(entry)

	s.logger.Debug("mcp tool call", "tool", tool, "status", entry.Status, "duration_ms", entry.DurationMs)
}
