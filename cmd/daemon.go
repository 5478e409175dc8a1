package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/theirongolddev/tokenwise/internal/cli"
	"github.com/theirongolddev/tokenwise/internal/config"
	"github.com/theirongolddev/tokenwise/internal/daemon"
	"github.com/theirongolddev/tokenwise/internal/engine"
)

var (
	flagDaemonAddr         string
	flagDaemonInterval     time.Duration
	flagDaemonDetach       bool
	flagDaemonLogFile      string
	flagDaemonEventsBuffer int
	flagDaemonChild        bool
	flagDaemonNoWatch      bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run a background budget and cache monitor with HTTP/SSE and metrics endpoints",
	Long: "Serve budget and cache state for one state directory. Only one daemon runs per state " +
		"directory; it holds <state-dir>/tokenwised.lock while running.",
	RunE: runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon process and API status",
	RunE:  runDaemonStatus,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

func init() {
	daemonCmd.Flags().StringVar(&flagDaemonAddr, "addr", "127.0.0.1:8787", "HTTP listen address")
	daemonCmd.Flags().DurationVar(&flagDaemonInterval, "interval", 15*time.Second, "Polling interval")
	daemonCmd.Flags().StringVar(&flagDaemonLogFile, "log-file", "", "Log file for detached mode (default <state-dir>/tokenwised.log)")
	daemonCmd.Flags().IntVar(&flagDaemonEventsBuffer, "events-buffer", 200, "Max in-memory events retained")
	daemonCmd.Flags().BoolVar(&flagDaemonDetach, "detach", false, "Run daemon as a background process")
	daemonCmd.Flags().BoolVar(&flagDaemonChild, "child", false, "Internal: mark detached child process")
	_ = daemonCmd.Flags().MarkHidden("child")
	daemonCmd.Flags().BoolVar(&flagDaemonNoWatch, "no-watch", false, "Poll on the interval only, without watching the state dir")

	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}

func daemonStateDir() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return engine.StateDirFor(cfg, config.ResolveRepoPath(cfg, flagRepo))
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	if flagDaemonDetach && flagDaemonChild {
		return errors.New("invalid daemon launch mode")
	}
	dir, err := daemonStateDir()
	if err != nil {
		return err
	}
	if flagDaemonLogFile == "" {
		flagDaemonLogFile = filepath.Join(dir, "tokenwised.log")
	}
	if flagDaemonDetach {
		return startDaemonDetached(dir)
	}
	return runDaemonForeground(cmd.Context())
}

func startDaemonDetached(dir string) error {
	if inst, ok, _ := daemon.Running(dir); ok {
		return fmt.Errorf("%w (pid %d)", daemon.ErrRunning, inst.PID)
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(flagDaemonLogFile), 0o750); err != nil {
		return fmt.Errorf("create daemon log directory: %w", err)
	}
	//nolint:gosec // daemon log path is configured by the local user
	logf, err := os.OpenFile(flagDaemonLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open daemon log file: %w", err)
	}
	defer func() { _ = logf.Close() }()

	child := exec.Command(exe, append(withoutDetach(os.Args[1:]), "--child")...) //nolint:gosec // re-executes the current invocation
	child.Stdout = logf
	child.Stderr = logf
	child.Env = os.Environ()
	if err := child.Start(); err != nil {
		return fmt.Errorf("start detached daemon: %w", err)
	}

	fmt.Printf("  Started daemon (pid %d)\n", child.Process.Pid)
	fmt.Printf("  API: http://%s/v1/status\n", flagDaemonAddr)
	fmt.Printf("  Log: %s\n", flagDaemonLogFile)
	return nil
}

func runDaemonForeground(parent context.Context) error {
	eng, log, err := openEngine()
	if err != nil {
		return err
	}
	defer closeEngine(eng, log)

	claim, err := daemon.Claim(parent, eng.StateDir(), daemon.Instance{
		PID:       os.Getpid(),
		Addr:      flagDaemonAddr,
		StartedAt: time.Now().UTC(),
		StateDir:  eng.StateDir(),
		LogFile:   flagDaemonLogFile,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := claim.Release(); err != nil {
			log.Warn("releasing daemon instance", zap.Error(err))
		}
	}()

	svc := daemon.New(daemon.Config{
		StateDir:     eng.StateDir(),
		Interval:     flagDaemonInterval,
		Addr:         flagDaemonAddr,
		EventsBuffer: flagDaemonEventsBuffer,
		Watch:        !flagDaemonNoWatch,
	}, daemon.EngineSnapshot(eng), log)

	fmt.Printf("  tokenwise daemon listening on http://%s\n", flagDaemonAddr)
	fmt.Printf("  Polling every %s from %s\n", flagDaemonInterval, eng.StateDir())
	fmt.Printf("  Metrics: http://%s/metrics\n", flagDaemonAddr)
	log.Info("daemon started", zap.Int("pid", os.Getpid()), zap.String("addr", flagDaemonAddr))

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runDaemonStatus(cmd *cobra.Command, _ []string) error {
	dir, err := daemonStateDir()
	if err != nil {
		return err
	}
	inst, ok, err := daemon.Running(dir)
	switch {
	case !ok:
		fmt.Println("  Daemon: not running")
		return nil
	case err != nil:
		return err
	}
	fmt.Printf("  Daemon: pid %d since %s\n", inst.PID, inst.StartedAt.Local().Format(time.RFC3339))
	fmt.Printf("  Address: http://%s\n", inst.Addr)

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
	defer cancel()
	st, err := daemon.FetchStatus(ctx, inst.Addr)
	if err != nil {
		fmt.Printf("  API: unreachable (%v)\n", err)
		return nil
	}
	if st.LastPollAt.IsZero() {
		fmt.Println("  Last poll: pending")
	} else {
		fmt.Printf("  Last poll: %s (%d polls, watching %v)\n", st.LastPollAt.Local().Format(time.RFC3339), st.PollCount, st.Watching)
	}
	fmt.Printf("  Budget: %s  %s of monthly target\n", cli.RenderStatus(st.Summary.Status), cli.FormatPercent(st.Summary.MonthlyPercent))
	fmt.Printf("  Month spend: %.2f of %.2f\n", st.Summary.MonthSpend, st.Summary.MonthlyTarget)
	fmt.Printf("  Cache: %d sessions, %d files\n", st.Summary.Sessions, st.Summary.CachedFiles)
	if st.LastError != "" {
		fmt.Printf("  Last error: %s\n", st.LastError)
	}
	return nil
}

func runDaemonStop(cmd *cobra.Command, _ []string) error {
	dir, err := daemonStateDir()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 8*time.Second)
	defer cancel()
	inst, err := daemon.Stop(ctx, dir)
	if err != nil {
		return err
	}
	fmt.Printf("  Stopped daemon (pid %d)\n", inst.PID)
	return nil
}

func withoutDetach(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--detach" || strings.HasPrefix(a, "--detach=") {
			continue
		}
		out = append(out, a)
	}
	return out
}
