package sourcemap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// BuildConfigName is the build configuration file a derived toolchain leaves
// at its project root.
const BuildConfigName = "probemap.yaml"

// Toolchain construction faults. These are configuration preconditions: the
// orchestrator surfaces them once and treats the toolchain as unmappable
// until restart.
var (
	ErrNoBuildConfig     = errors.New("sourcemap: no " + BuildConfigName + " found")
	ErrArtifactsDisabled = errors.New("sourcemap: build config disables artifact emission")
	ErrTablesDisabled    = errors.New("sourcemap: build config disables mapping tables")
	ErrMultipleRoots     = errors.New("sourcemap: more than one source root is unsupported")
)

// BuildConfig mirrors probemap.yaml: the configuration of a preprocessor that
// emits .go artifacts plus mapping tables from higher-level sources.
type BuildConfig struct {
	EmitArtifacts *bool    `yaml:"emit_artifacts"`
	EmitTables    *bool    `yaml:"emit_tables"`
	SourceRoots   []string `yaml:"source_roots"`
	OutDir        string   `yaml:"out_dir"`
}

func (c BuildConfig) artifactsEnabled() bool { return c.EmitArtifacts == nil || *c.EmitArtifacts }
func (c BuildConfig) tablesEnabled() bool    { return c.EmitTables == nil || *c.EmitTables }

// Toolchain is a table-backed position mapper for one derived-artifact
// toolchain. Construction discovers and parses the build configuration and is
// the expensive step; resolving is a table lookup. Parsed tables are cached,
// so the caller constructs one Toolchain per watch session and queries it per
// event.
type Toolchain struct {
	root string // directory holding the build config
	cfg  BuildConfig

	mu     sync.Mutex
	tables map[string]*table
}

// NewToolchain walks up from startDir looking for the build configuration and
// validates it. Returns ErrNoBuildConfig, ErrArtifactsDisabled,
// ErrTablesDisabled, or ErrMultipleRoots on the corresponding precondition.
func NewToolchain(startDir string) (*Toolchain, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("sourcemap: resolve %s: %w", startDir, err)
	}
	var data []byte
	root := dir
	for {
		data, err = os.ReadFile(filepath.Join(root, BuildConfigName))
		if err == nil {
			break
		}
		parent := filepath.Dir(root)
		if parent == root {
			return nil, ErrNoBuildConfig
		}
		root = parent
	}

	var cfg BuildConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("sourcemap: parse %s: %w", BuildConfigName, err)
	}
	if !cfg.artifactsEnabled() {
		return nil, ErrArtifactsDisabled
	}
	if !cfg.tablesEnabled() {
		return nil, ErrTablesDisabled
	}
	if len(cfg.SourceRoots) > 1 {
		return nil, ErrMultipleRoots
	}
	if len(cfg.SourceRoots) == 0 {
		cfg.SourceRoots = []string{"."}
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "build"
	}

	return &Toolchain{root: root, cfg: cfg, tables: make(map[string]*table)}, nil
}

// Root reports the directory holding the build configuration.
func (t *Toolchain) Root() string { return t.root }

// ArtifactPath computes where the toolchain emits the derived .go artifact
// for a higher-level source file.
func (t *Toolchain) ArtifactPath(src string) (string, error) {
	abs, err := filepath.Abs(src)
	if err != nil {
		return "", fmt.Errorf("sourcemap: resolve %s: %w", src, err)
	}
	srcRoot := filepath.Join(t.root, t.cfg.SourceRoots[0])
	rel, err := filepath.Rel(srcRoot, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("sourcemap: %s is outside source root %s", src, srcRoot)
	}
	ext := filepath.Ext(rel)
	return filepath.Join(t.root, t.cfg.OutDir, strings.TrimSuffix(rel, ext)+".go"), nil
}

// TablePath computes the mapping-table path for a derived artifact.
func (t *Toolchain) TablePath(artifact string) string {
	return artifact + ".map"
}

// Mapper returns the mapper backed by the table at tablePath. The table is
// loaded lazily on first resolve and cached; an unreadable table resolves
// nothing, which the orchestrator treats as a transient cycle fault.
func (t *Toolchain) Mapper(tablePath string) Mapper {
	return &tableMapper{tc: t, path: tablePath}
}

type tableMapper struct {
	tc   *Toolchain
	path string
}

func (m *tableMapper) Resolve(loc Location) (Location, bool) {
	tbl := m.tc.load(m.path)
	if tbl == nil {
		return Location{}, false
	}
	return tbl.resolve(loc)
}

// load returns the parsed table at path, re-parsing when the file changed on
// disk: tables are regenerated by the preprocessor on every save.
func (t *Toolchain) load(path string) *table {
	fi, err := os.Stat(path)
	if err != nil {
		return nil
	}
	key := fmt.Sprintf("%s@%d:%d", path, fi.ModTime().UnixNano(), fi.Size())

	t.mu.Lock()
	defer t.mu.Unlock()
	if tbl, ok := t.tables[key]; ok {
		return tbl
	}
	tbl := parseTable(path)
	t.tables[key] = tbl
	return tbl
}
