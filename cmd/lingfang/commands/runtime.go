// Package commands implements CLI command handlers for lingfang.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Torimasen-tech/lingfang/pkg/config"
	"github.com/Torimasen-tech/lingfang/pkg/observability"
	"github.com/Torimasen-tech/lingfang/pkg/version"
)

// commandRuntime bundles the loaded configuration and telemetry providers
// for one command invocation.
type commandRuntime struct {
	cfg       *config.Config
	providers observability.Providers
	logger    *slog.Logger
}

// runtimeFactory builds the runtime for a command. Injected so tests can
// substitute a fixed configuration and a discarding logger.
type runtimeFactory func(cmd *cobra.Command) (*commandRuntime, error)

// newCommandRuntime loads the configuration honoring the persistent
// --config flag, initializes telemetry, and installs the run logger as the
// slog default.
func newCommandRuntime(cmd *cobra.Command) (*commandRuntime, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		configPath = ""
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Telemetry.Environment
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.LogLevel = observability.ParseLogLevel(cfg.Logging.Level)
	obsCfg.LogJSON = cfg.Logging.Format == "json"

	// The persistent verbosity flags win over the configured level.
	if flagBool(cmd, "verbose") {
		obsCfg.LogLevel = slog.LevelDebug
	}

	if flagBool(cmd, "quiet") {
		obsCfg.LogLevel = slog.LevelWarn
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	slog.SetDefault(providers.Logger)

	return &commandRuntime{
		cfg:       cfg,
		providers: providers,
		logger:    providers.Logger,
	}, nil
}

// close flushes pending telemetry. The shutdown func applies its own grace
// period.
func (rt *commandRuntime) close() {
	if rt.providers.Shutdown == nil {
		return
	}

	err := rt.providers.Shutdown(context.Background())
	if err != nil {
		rt.logger.Warn("telemetry shutdown failed", "error", err)
	}
}

// flagBool reads a bool flag, tolerating commands executed without the
// persistent root flags registered.
func flagBool(cmd *cobra.Command, name string) bool {
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		return false
	}

	return value
}

// isQuiet reports whether progress output is suppressed for this invocation.
func isQuiet(cmd *cobra.Command) bool {
	return flagBool(cmd, "quiet")
}

// progressf writes one progress line to the command's error stream unless
// the invocation is quiet.
func progressf(cmd *cobra.Command, format string, args ...any) {
	if isQuiet(cmd) {
		return
	}

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "progress: "+format+"\n", args...)
}
