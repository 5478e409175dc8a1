// Package cmd implements the tokenwise CLI commands.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/theirongolddev/tokenwise/internal/cli"
	"github.com/theirongolddev/tokenwise/internal/config"
	"github.com/theirongolddev/tokenwise/internal/engine"
	"github.com/theirongolddev/tokenwise/internal/logging"
	"github.com/theirongolddev/tokenwise/internal/model"
	"github.com/theirongolddev/tokenwise/internal/selector"
)

var (
	flagConfig   string
	flagRepo     string
	flagQuiet    bool
	flagLogLevel string
	flagNoCache  bool
)

var rootCmd = &cobra.Command{
	Use:           "tokenwise",
	Short:         "Context caching and budget-aware model selection",
	Long:          "Send only changed context to model APIs, track spend against a budget, and pick the model a task needs.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBudget,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "  Error:", err)
		if errors.Is(err, selector.ErrBudgetExceeded) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Config file (default "+config.Path()+")")
	rootCmd.PersistentFlags().StringVarP(&flagRepo, "repo", "r", "", "Repository root (default: detected from the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress and warning output")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagNoCache, "no-cache", false, "Bypass the context cache for this invocation")
}

func loadConfig() (config.Config, error) {
	return config.Load(flagConfig)
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level := cfg.General.LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	return logging.New(logging.Options{Level: level, Format: cfg.General.LogFormat})
}

// openEngine is the shared setup path used by every command that touches
// state. The caller closes the engine and syncs the logger.
func openEngine() (*engine.Engine, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	eng, warns, err := engine.Open(engine.Options{
		Config:   cfg,
		RepoRoot: config.ResolveRepoPath(cfg, flagRepo),
		NoCache:  flagNoCache,
		Logger:   log,
	})
	if err != nil {
		return nil, nil, err
	}
	printWarnings(warns)
	return eng, log, nil
}

func closeEngine(eng *engine.Engine, log *zap.Logger) {
	if err := eng.Close(); err != nil {
		log.Warn("closing engine", zap.Error(err))
	}
	_ = log.Sync()
}

func printWarnings(ws []model.Warning) {
	if flagQuiet || len(ws) == 0 {
		return
	}
	fmt.Fprint(os.Stderr, cli.RenderWarnings(ws))
}

func progress(format string, args ...any) {
	if flagQuiet {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}

func currency(eng *engine.Engine) string {
	return eng.Config().Budget.Currency
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}

func shortModel(name string) string {
	// "claude-opus-4-6" -> "opus-4-6"
	if len(name) > 7 && name[:7] == "claude-" {
		return name[7:]
	}
	return name
}
