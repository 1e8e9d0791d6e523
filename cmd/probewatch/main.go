// Command probewatch keeps probe expressions in Go source files in sync with
// their runtime values: on every save the changed file is re-executed and
// each probe.P(...) call is annotated in place with the value it observed.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"probewatch/internal/config"
	"probewatch/internal/rewrite"
	"probewatch/internal/runner"
	"probewatch/internal/session"
	"probewatch/internal/watch"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "probewatch [dir]",
	Short: "Live probe annotations for Go source files",
	Long: `probewatch watches a directory and keeps probe expressions in sync
with their runtime values.

On every save the changed file is re-executed; each probe.P(...) call site is
annotated in place with what it observed:

    greeting := probe.P(strings.Join(words, ", ")) //=> "Hello, world"

When the session ends (Ctrl-C) every annotation is removed again, restoring
each file to its pristine form.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg = zap.NewDevelopmentConfig()
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runWatch,
}

// stripCmd removes annotations without a watch session, for files a crashed
// editor or interrupted run left annotated.
var stripCmd = &cobra.Command{
	Use:   "strip [files...]",
	Short: "Remove every probe annotation from the given files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			clean := rewrite.Strip(string(data))
			if clean == string(data) {
				continue
			}
			if err := os.WriteFile(path, []byte(clean), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			logger.Info("stripped", zap.String("path", path))
		}
		return nil
	},
}

// restoreCmd replays the session store, recovering files a crashed session
// left annotated.
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore files annotated by a crashed session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		store, err := session.Open(cfg.SessionDB)
		if err != nil {
			return err
		}
		defer store.Close()

		touched, err := store.Touched()
		if err != nil {
			return err
		}
		for path, original := range touched {
			if err := os.WriteFile(path, original, 0o644); err != nil {
				logger.Warn("restore failed", zap.String("path", path), zap.Error(err))
				continue
			}
			logger.Info("restored", zap.String("path", path))
		}
		return store.Clear()
	},
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Root = args[0]
	}
	if cfg.Root, err = filepath.Abs(cfg.Root); err != nil {
		return err
	}
	if !filepath.IsAbs(cfg.LogPath) {
		cfg.LogPath = filepath.Join(cfg.Root, cfg.LogPath)
	}

	store, err := session.Open(cfg.SessionDB)
	if err != nil {
		return err
	}
	defer store.Close()

	var r runner.Runner
	switch cfg.Runner {
	case "exec":
		r = &runner.ExecRunner{LogPath: cfg.LogPath, Dir: cfg.Root, Logger: logger}
	default:
		r = &runner.YaegiRunner{LogPath: cfg.LogPath, Entry: cfg.Entry, Logger: logger}
	}

	s, err := watch.New(cfg, logger, r, store)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug tracing of cycle transitions")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultFileName,
		"path to the session config file")
	rootCmd.AddCommand(stripCmd, restoreCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
