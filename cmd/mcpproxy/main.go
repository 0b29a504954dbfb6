package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/smart-mcp-proxy/mcpproxy-go/internal/authstore"
	"github.com/smart-mcp-proxy/mcpproxy-go/internal/config"
	"github.com/smart-mcp-proxy/mcpproxy-go/internal/configimport"
	"github.com/smart-mcp-proxy/mcpproxy-go/internal/logs"
	"github.com/smart-mcp-proxy/mcpproxy-go/internal/mcpserver"
	"github.com/smart-mcp-proxy/mcpproxy-go/internal/proxyclient"
	"github.com/smart-mcp-proxy/mcpproxy-go/internal/watcher"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logLevel  string
	logToFile bool
	logDir    string

	version = "v0.1.0" // injected by -ldflags during build
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "mcpproxy",
		Short:   "Smart MCP Proxy - intelligent tool discovery and proxying for Model Context Protocol servers",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", false, "Enable logging to file in the standard OS location")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Custom log directory path (overrides standard OS location)")

	runCmd := &cobra.Command{
		Use:   "run [config-path]",
		Short: "Run the proxy, speaking MCP over stdio to a single downstream client",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if len(args) == 1 {
				configPath = args[0]
			}
			return runProxy(cmd.Context(), configPath)
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <tool-id>",
		Short: "Import server entries from another tool's MCP config (not implemented)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runImport(args[0])
		},
	}

	rootCmd.AddCommand(runCmd, importCmd)

	// `mcpproxy <config-path>` is accepted as a bare positional synonym
	// for `mcpproxy run <config-path>` (spec.md §6's literal
	// `<program> <config-path>` invocation).
	rootCmd.Args = cobra.MaximumNArgs(1)
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		var configPath string
		if len(args) == 1 {
			configPath = args[0]
		}
		return runProxy(cmd.Context(), configPath)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	rootCmd.SetContext(ctx)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runImport always reports "not implemented": this binary ships no
// concrete configimport.Importer, only the interface format-specific
// collaborators would implement (SPEC_FULL.md §6).
func runImport(toolID string) error {
	return &configimport.ImportError{
		Type:    "not_implemented",
		Message: fmt.Sprintf("import %q: no importer registered for this tool", toolID),
	}
}

func runProxy(ctx context.Context, configPath string) error {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving default data directory: %w", err)
		}
		configPath = config.DefaultConfigPath(filepath.Join(home, ".mcpproxy"))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", configPath, err)
	}

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = logs.Default()
	}
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	if logToFile {
		logCfg.EnableFile = true
	}
	if logDir != "" {
		logCfg.LogDir = logDir
	}

	logger, err := logs.New(logCfg)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	logger.Info("starting mcpproxy",
		zap.String("version", version),
		zap.String("config", configPath),
		zap.Int("servers", len(cfg.Servers)))

	dataDir := cfg.DataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving data directory: %w", err)
		}
		dataDir = filepath.Join(home, ".mcpproxy")
	}
	tokenDir := filepath.Join(dataDir, "tokens")

	tokens := authstore.New(tokenDir, logger)
	client := proxyclient.New(logger, tokens, cfg.CallToolTimeout.Duration())
	client.ReconnectAll(ctx, cfg)
	client.StartRetryLoop(ctx)
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("closing proxy client", zap.Error(closeErr))
		}
	}()

	w, err := watcher.New(configPath, logger)
	if err != nil {
		logger.Warn("config file watching disabled", zap.Error(err))
	} else {
		defer func() { _ = w.Close() }()
		go watchConfig(ctx, w, configPath, client, logger)
	}

	srv := mcpserver.New(client, logger)
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("serving stdio: %w", err)
	}
	return nil
}

// watchConfig reloads and reconnects every group whenever the watcher
// signals the config file changed (spec.md §4.6). A failed reload is
// logged and the previous, still-running generation is left untouched.
func watchConfig(ctx context.Context, w *watcher.Watcher, configPath string, client *proxyclient.Client, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-w.Reload():
			if !ok {
				return
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				logger.Error("reload failed, keeping previous configuration", zap.Error(err))
				continue
			}
			logger.Info("reloading configuration", zap.Int("servers", len(cfg.Servers)))
			client.ReconnectAll(ctx, cfg)
		}
	}
}
