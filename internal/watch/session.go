// Package watch runs the synchronization session: it consumes file change
// events one at a time, re-executes changed artifacts, and writes captured
// probe values back into the authored source as annotations. On termination
// every annotated file is restored.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"probewatch/internal/config"
	"probewatch/internal/rewrite"
	"probewatch/internal/runner"
	"probewatch/internal/session"
	"probewatch/internal/sourcemap"
)

// Toolchain is the derived-artifact toolchain consulted when a higher-level
// source changes. *sourcemap.Toolchain is the concrete implementation; the
// interface keeps the orchestrator testable without build configs on disk.
type Toolchain interface {
	ArtifactPath(src string) (string, error)
	TablePath(artifact string) string
	Mapper(tablePath string) sourcemap.Mapper
}

// mappingLink is the single-use association registered when a higher-level
// source changes: the next event on the derived artifact path belongs to it.
type mappingLink struct {
	source string
	table  string
	tc     Toolchain
}

// Session is a single watch session. All event handling is sequential — one
// cycle at a time, in arrival order — which is what keeps the debounce and
// mapping-link bookkeeping correct without locks.
type Session struct {
	cfg    config.Config
	log    *zap.Logger
	runner runner.Runner
	store  *session.Store // optional

	newToolchain func(dir string) (Toolchain, error)

	// Per source directory: the walk-up for a build config is memoized, and a
	// construction fault is sticky for that directory until restart. Distinct
	// projects under one root keep distinct toolchains.
	toolchains    map[string]Toolchain
	toolchainErrs map[string]error

	links    map[string]mappingLink
	debounce map[string]time.Time
	touched  map[string]bool
}

// New creates a session. The store may be nil; rollback then relies on the
// in-memory touched set alone.
func New(cfg config.Config, log *zap.Logger, r runner.Runner, store *session.Store) (*Session, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	cfg.Root = root
	if !filepath.IsAbs(cfg.LogPath) {
		cfg.LogPath = filepath.Join(root, cfg.LogPath)
	}
	return &Session{
		cfg:    cfg,
		log:    log,
		runner: r,
		store:  store,
		newToolchain: func(dir string) (Toolchain, error) {
			return sourcemap.NewToolchain(dir)
		},
		toolchains:    make(map[string]Toolchain),
		toolchainErrs: make(map[string]error),
		links:         make(map[string]mappingLink),
		debounce:      make(map[string]time.Time),
		touched:       make(map[string]bool),
	}, nil
}

// Run watches the configured root until ctx is cancelled, then rolls back
// every annotation it wrote. Cancellation is cooperative: a cycle in flight
// finishes; only the next event is refused.
func (s *Session) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := addRecursive(w, s.cfg.Root); err != nil {
		return fmt.Errorf("watch %s: %w", s.cfg.Root, err)
	}
	s.log.Info("watching", zap.String("root", s.cfg.Root))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("session ending, removing annotations",
				zap.Int("touched", len(s.touched)))
			s.Rollback()
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
				if ev.Op&fsnotify.Create != 0 {
					_ = w.Add(ev.Name)
				}
				continue
			}
			s.cycle(ctx, ev.Name)

		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			s.log.Warn("watch error", zap.Error(err))
		}
	}
}

// Rollback strips annotations from every touched file, best effort: a file
// that fails to read or write is skipped, never fatal, and files are
// processed concurrently since no path appears twice.
func (s *Session) Rollback() {
	var g errgroup.Group
	for path := range s.touched {
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				s.log.Warn("rollback skipped", zap.String("path", path), zap.Error(err))
				return nil
			}
			clean := rewrite.Strip(string(data))
			if clean == string(data) {
				return nil
			}
			if err := os.WriteFile(path, []byte(clean), 0o644); err != nil {
				s.log.Warn("rollback write failed", zap.String("path", path), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if s.store != nil {
		if err := s.store.Clear(); err != nil {
			s.log.Warn("session store", zap.Error(err))
		}
	}
}

func (s *Session) window() time.Duration {
	return time.Duration(s.cfg.DebounceMS) * time.Millisecond
}

// addRecursive watches root and every non-hidden directory under it.
func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		return w.Add(path)
	})
}
