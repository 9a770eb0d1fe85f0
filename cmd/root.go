package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/simonyos/roundtable/internal/config"
	"github.com/simonyos/roundtable/internal/llm"
	"github.com/simonyos/roundtable/internal/logging"
	"github.com/simonyos/roundtable/internal/store"
	"github.com/simonyos/roundtable/internal/tui"
	"github.com/simonyos/roundtable/internal/tui/theme"
)

var (
	dbFlag        string
	logLevelFlag  string
	logFormatFlag string
	themeFlag     string
)

var rootCmd = &cobra.Command{
	Use:   "roundtable",
	Short: "Multi-persona AI conversations from the terminal",
	Long: `Roundtable seats several AI personas at one table and lets them talk.

Each persona has its own system prompt, backend and model. A conversation
picks the next speaker by mode and streams every turn as it is generated.

Supported backends:
  openrouter  - OpenRouter (requires API key)
  openai      - OpenAI (requires API key)
  xai         - xAI Grok (requires API key)
  anthropic   - Anthropic (requires API key)
  lmstudio    - LM Studio (local, no key)
  ollama      - Ollama (local, no key)
  openclaw    - OpenClaw gateway (token)

Modes:
  round-robin  - personas speak in turn
  debate       - personas with differing positions alternate
  interview    - the first persona questions the others
  free         - anyone who has not spoken recently`,
	Version:      tui.Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		t, ok := theme.ByName(themeFlag)
		if !ok {
			return fmt.Errorf("unknown theme %q", themeFlag)
		}
		theme.Current = t
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "SQLite database path (default ~/.config/roundtable/roundtable.db)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Log format: console or json")
	rootCmd.PersistentFlags().StringVar(&themeFlag, "theme", "default", "Color theme: default or tokyonight")
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// withTimeout leaves ctx unbounded when d is not positive
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func logSettings() (string, string) {
	level, format := config.LogSettings()
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	if logFormatFlag != "" {
		format = logFormatFlag
	}
	return level, format
}

// newLogger logs to stderr
func newLogger() (*zap.Logger, error) {
	level, format := logSettings()
	return logging.New(level, format)
}

// newFileLogger logs next to the config file; the watch view owns the terminal
func newFileLogger() (*zap.Logger, error) {
	level, format := logSettings()
	path := filepath.Join(filepath.Dir(config.ConfigPath()), "roundtable.log")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return logging.NewFile(level, format, path)
}

func databasePath() string {
	if dbFlag != "" {
		return dbFlag
	}
	return config.DatabasePath()
}

func openStore(logger *zap.Logger) (*store.Store, error) {
	return store.Open(databasePath(), logger)
}

func newRegistry(logger *zap.Logger) *llm.Registry {
	return llm.NewDefaultRegistry(config.Endpoints(), logger)
}

// app bundles what most commands need
type app struct {
	logger   *zap.Logger
	store    *store.Store
	registry *llm.Registry
}

func openApp(fileLog bool) (*app, error) {
	var logger *zap.Logger
	var err error
	if fileLog {
		logger, err = newFileLogger()
	} else {
		logger, err = newLogger()
	}
	if err != nil {
		return nil, err
	}

	st, err := openStore(logger)
	if err != nil {
		return nil, err
	}

	return &app{
		logger:   logger,
		store:    st,
		registry: newRegistry(logger),
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
	_ = a.logger.Sync()
}
