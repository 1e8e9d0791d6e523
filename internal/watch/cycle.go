package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"probewatch/internal/protocol"
	"probewatch/internal/rewrite"
	"probewatch/internal/sourcemap"
)

// cycle runs one full synchronization pass for a change event. Every stage
// short-circuits back to idle on a non-match or benign failure; only the
// happy path reaches a write.
func (s *Session) cycle(ctx context.Context, changed string) {
	changed = filepath.Clean(changed)
	s.log.Debug("resolving", zap.String("changed", changed))

	src, artifact, mapper, ok := s.resolve(changed)
	if !ok {
		return
	}

	// A change event caused by our own write is not a new cycle. The record
	// is consumed either way: the next event on this path is someone else's.
	if stamp, hit := s.debounce[artifact]; hit {
		delete(s.debounce, artifact)
		if time.Since(stamp) < s.window() {
			s.log.Debug("debounced self-write", zap.String("artifact", artifact))
			return
		}
	}

	s.log.Debug("executing", zap.String("artifact", artifact))
	if err := os.Remove(s.cfg.LogPath); err != nil && !os.IsNotExist(err) {
		s.log.Warn("stale log not cleared", zap.Error(err))
	}
	if err := s.runner.Run(ctx, artifact); err != nil {
		// A broken save mid-edit is expected; discard the cycle.
		s.log.Debug("execution failed", zap.String("artifact", artifact), zap.Error(err))
		return
	}

	entries := s.readLog(artifact)
	if len(entries) == 0 {
		s.log.Debug("no probe entries", zap.String("artifact", artifact))
		return
	}

	if mapper != nil {
		entries = mapEntries(entries, mapper)
		if len(entries) == 0 {
			s.log.Debug("no mappable entries", zap.String("artifact", artifact))
			return
		}
	}

	content, err := os.ReadFile(src)
	if err != nil {
		s.log.Debug("source unreadable", zap.String("source", src), zap.Error(err))
		return
	}
	text := string(content)

	s.log.Debug("rewriting", zap.String("source", src), zap.Int("entries", len(entries)))
	out := rewrite.Apply(rewrite.StripTrailing(text), toRewrite(entries))
	if out == text {
		s.log.Debug("rewrite is a no-op", zap.String("source", src))
		return
	}

	s.persist(src, artifact, text, out)
}

// resolve maps a raw change-event path to (source, artifact, mapper). A
// higher-level source registers a mapping link for its derived artifact and
// ends the cycle: the artifact's own forthcoming change event carries it.
func (s *Session) resolve(changed string) (src, artifact string, mapper sourcemap.Mapper, ok bool) {
	if s.matchesExt(changed, s.cfg.SourceExts) {
		tc, err := s.toolchainFor(changed)
		if err != nil {
			s.log.Warn("toolchain unavailable", zap.String("source", changed), zap.Error(err))
			return "", "", nil, false
		}
		derived, err := tc.ArtifactPath(changed)
		if err != nil {
			s.log.Warn("artifact path", zap.String("source", changed), zap.Error(err))
			return "", "", nil, false
		}
		s.links[filepath.Clean(derived)] = mappingLink{
			source: changed,
			table:  tc.TablePath(derived),
			tc:     tc,
		}
		s.log.Debug("registered mapping link",
			zap.String("source", changed), zap.String("derived", derived))
		return "", "", nil, false
	}

	if link, hit := s.links[changed]; hit {
		delete(s.links, changed)
		src, artifact, mapper = link.source, changed, link.tc.Mapper(link.table)
	} else {
		src, artifact = changed, changed
	}

	if !s.matchesExt(artifact, s.cfg.ExecutableExts) {
		return "", "", nil, false
	}
	return src, artifact, mapper, true
}

// toolchainFor returns the toolchain for a source, constructing it on first
// use. The walk-up is memoized per source directory, and a construction
// failure is a configuration fault that sticks for that directory until the
// engine restarts; other directories keep their own toolchains.
func (s *Session) toolchainFor(src string) (Toolchain, error) {
	dir := filepath.Dir(src)
	if tc, hit := s.toolchains[dir]; hit {
		return tc, nil
	}
	if err, hit := s.toolchainErrs[dir]; hit {
		return nil, err
	}
	tc, err := s.newToolchain(dir)
	if err != nil {
		s.toolchainErrs[dir] = err
		return nil, err
	}
	s.toolchains[dir] = tc
	return tc, nil
}

// readLog decodes the probe log, dropping malformed lines and entries left
// over from a previous artifact.
func (s *Session) readLog(artifact string) []protocol.Entry {
	data, err := os.ReadFile(s.cfg.LogPath)
	if err != nil {
		return nil
	}
	base := filepath.Dir(s.cfg.LogPath)
	var entries []protocol.Entry
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		e, ok := protocol.Decode(base, line)
		if !ok {
			continue // parse fault: dropped per entry, never aborts the batch
		}
		if filepath.Clean(e.File) != artifact {
			s.log.Debug("stale log entry", zap.String("path", e.File))
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

// mapEntries crosses entries from artifact coordinates into source
// coordinates. Entries with an unknown column or no resolvable position are
// dropped.
func mapEntries(entries []protocol.Entry, m sourcemap.Mapper) []protocol.Entry {
	out := entries[:0]
	for _, e := range entries {
		if e.Column == 0 {
			continue
		}
		loc, ok := m.Resolve(sourcemap.Location{Line: e.Line, Column: e.Column})
		if !ok {
			continue
		}
		e.Line, e.Column = loc.Line, loc.Column
		out = append(out, e)
	}
	return out
}

// persist writes the annotated source and clears the log. Both operations
// are independent; the cycle closes once both complete.
func (s *Session) persist(src, artifact, old, updated string) {
	if !s.touched[src] {
		s.touched[src] = true
		if s.store != nil {
			// First touch: snapshot the pristine form for rollback.
			if err := s.store.RecordOriginal(src, []byte(rewrite.Strip(old))); err != nil {
				s.log.Warn("session store", zap.String("source", src), zap.Error(err))
			}
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		return os.WriteFile(src, []byte(updated), 0o644)
	})
	g.Go(func() error {
		if err := os.Remove(s.cfg.LogPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.log.Warn("persist failed", zap.String("source", src), zap.Error(err))
		return
	}
	// Stamped only once the write landed: a failed persist raises no
	// self-event, and a stale record would swallow the next genuine save.
	s.debounce[artifact] = time.Now()
	s.log.Info("annotated", zap.String("source", src))
}

func (s *Session) matchesExt(path string, exts []string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func toRewrite(entries []protocol.Entry) []rewrite.Entry {
	out := make([]rewrite.Entry, len(entries))
	for i, e := range entries {
		out[i] = rewrite.Entry{Line: e.Line, Column: e.Column, Result: e.Result}
	}
	return out
}
