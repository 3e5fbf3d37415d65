package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/rbdc/internal/config"
	"github.com/nvandessel/rbdc/internal/models"
)

const paramKeyPrefix = "parameters."

// settingKeys are the non-parameter configuration keys, in display order.
var settingKeys = []string{
	"sweep.workers",
	"serve.addr",
	"serve.rate_limit",
	"serve.burst",
	"serve.dataset",
	"cache.path",
	"mcp.output_dir",
	"telemetry.otel_endpoint",
	"logging.level",
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage rbdc configuration",
		Long: `View and modify rbdc configuration settings.

Configuration is stored in ~/.rbdc/config.yaml. RBDC_* environment
variables override the file.

Examples:
  rbdc config list                             # Show all settings
  rbdc config get parameters.dose              # Get a specific setting
  rbdc config set parameters.dose 2            # Change the base dose
  rbdc config set cache.path ~/.rbdc/cache.db  # Persist computed runs`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

// configKeys returns every settable key.
func configKeys() []string {
	keys := make([]string, 0, len(settingKeys)+len(models.ParameterNames()))
	for _, name := range models.ParameterNames() {
		keys = append(keys, paramKeyPrefix+name)
	}
	return append(keys, settingKeys...)
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Configuration (~/.rbdc/config.yaml):")
			section := ""
			for _, key := range configKeys() {
				head, _, _ := strings.Cut(key, ".")
				if head != section {
					fmt.Fprintf(w, "\n%s:\n", head)
					section = head
				}
				value, _ := getConfigValue(cfg, key)
				fmt.Fprintf(w, "  %-34s %s\n", key+":", valueOrDefault(value, "(not set)"))
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			value, err := getConfigValue(cfg, key)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"key": key, "value": value})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set [flags] <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value.

Flags go before the key. Everything after the key is positional, so a
value such as -1 is read as the value rather than a flag.

Examples:
  rbdc config set sweep.workers 4
  rbdc config set --json parameters.dose 2.5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			path, err := config.Path()
			if err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.RBDCConfig, key string) (string, error) {
	if name, ok := strings.CutPrefix(key, paramKeyPrefix); ok {
		return cfg.Parameters.Get(name)
	}
	switch key {
	case "sweep.workers":
		return strconv.Itoa(cfg.Sweep.Workers), nil
	case "serve.addr":
		return cfg.Serve.Addr, nil
	case "serve.rate_limit":
		return strconv.FormatFloat(cfg.Serve.RateLimit, 'g', -1, 64), nil
	case "serve.burst":
		return strconv.Itoa(cfg.Serve.Burst), nil
	case "serve.dataset":
		return cfg.Serve.Dataset, nil
	case "cache.path":
		return cfg.Cache.Path, nil
	case "mcp.output_dir":
		return cfg.MCP.OutputDir, nil
	case "telemetry.otel_endpoint":
		return cfg.Telemetry.OTelEndpoint, nil
	case "logging.level":
		return cfg.Logging.Level, nil
	default:
		return "", unknownKey(key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.RBDCConfig, key, value string) error {
	if name, ok := strings.CutPrefix(key, paramKeyPrefix); ok {
		if _, err := cfg.Parameters.Get(name); err != nil {
			return unknownKey(key)
		}
		return cfg.Parameters.Set(name, value)
	}
	switch key {
	case "sweep.workers", "serve.burst":
		n, err := strconv.Atoi(value)
		if err != nil {
			return &models.ValidationError{Field: key, Value: value, Reason: "not an integer"}
		}
		if key == "sweep.workers" {
			cfg.Sweep.Workers = n
		} else {
			cfg.Serve.Burst = n
		}
	case "serve.rate_limit":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return &models.ValidationError{Field: key, Value: value, Reason: "not a number"}
		}
		cfg.Serve.RateLimit = v
	case "serve.addr":
		cfg.Serve.Addr = value
	case "serve.dataset":
		cfg.Serve.Dataset = value
	case "cache.path":
		cfg.Cache.Path = value
	case "mcp.output_dir":
		cfg.MCP.OutputDir = value
	case "telemetry.otel_endpoint":
		cfg.Telemetry.OTelEndpoint = value
	case "logging.level":
		cfg.Logging.Level = value
	default:
		return unknownKey(key)
	}
	return nil
}

func unknownKey(key string) error {
	return &models.ValidationError{Field: "key", Value: key, Reason: "unknown configuration key"}
}

func valueOrDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
