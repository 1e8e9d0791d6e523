package sourcemap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeBuildConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, BuildConfigName), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNewToolchain_FindsConfigInParent(t *testing.T) {
	root := t.TempDir()
	writeBuildConfig(t, root, "out_dir: gen\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	tc, err := NewToolchain(nested)
	if err != nil {
		t.Fatalf("NewToolchain: %v", err)
	}
	if tc.Root() != root {
		t.Errorf("got root %q, want %q", tc.Root(), root)
	}
}

func TestNewToolchain_ConstructionFaults(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{"artifacts disabled", "emit_artifacts: false\n", ErrArtifactsDisabled},
		{"tables disabled", "emit_tables: false\n", ErrTablesDisabled},
		{"multiple roots", "source_roots: [src, lib]\n", ErrMultipleRoots},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeBuildConfig(t, dir, tc.body)
			if _, err := NewToolchain(dir); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNewToolchain_NoConfig(t *testing.T) {
	// t.TempDir() sits under the system temp root, which has no config on
	// the way up on any sane machine.
	if _, err := NewToolchain(t.TempDir()); !errors.Is(err, ErrNoBuildConfig) {
		t.Errorf("got %v, want %v", err, ErrNoBuildConfig)
	}
}

func TestArtifactPath(t *testing.T) {
	root := t.TempDir()
	writeBuildConfig(t, root, "source_roots: [src]\nout_dir: gen\n")
	tc, err := NewToolchain(root)
	if err != nil {
		t.Fatal(err)
	}

	got, err := tc.ArtifactPath(filepath.Join(root, "src", "pkg", "main.gox"))
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, "gen", "pkg", "main.go")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, err := tc.ArtifactPath(filepath.Join(root, "elsewhere", "x.gox")); err == nil {
		t.Error("expected error for a source outside the source root")
	}
}

func TestArtifactPath_Defaults(t *testing.T) {
	root := t.TempDir()
	writeBuildConfig(t, root, "")
	tc, err := NewToolchain(root)
	if err != nil {
		t.Fatal(err)
	}

	got, err := tc.ArtifactPath(filepath.Join(root, "main.gox"))
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, "build", "main.go")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if tp := tc.TablePath(got); tp != got+".map" {
		t.Errorf("got table path %q", tp)
	}
}

func TestMapper_Resolve(t *testing.T) {
	root := t.TempDir()
	writeBuildConfig(t, root, "")
	tc, err := NewToolchain(root)
	if err != nil {
		t.Fatal(err)
	}

	tablePath := filepath.Join(root, "main.go.map")
	table := "# generated\n" +
		"1 1 10 1\n" +
		"1 20 10 30\n" +
		"3 1 12 1\n" +
		"garbage line\n" +
		"4 0 1 1\n" // columns are 1-based; skipped
	if err := os.WriteFile(tablePath, []byte(table), 0o644); err != nil {
		t.Fatal(err)
	}
	m := tc.Mapper(tablePath)

	cases := []struct {
		name     string
		in, want Location
		ok       bool
	}{
		{"exact", Location{Line: 1, Column: 1}, Location{Line: 10, Column: 1}, true},
		{"nearest preceding", Location{Line: 1, Column: 15}, Location{Line: 10, Column: 1}, true},
		{"second segment", Location{Line: 1, Column: 25}, Location{Line: 10, Column: 30}, true},
		{"other line", Location{Line: 3, Column: 40}, Location{Line: 12, Column: 1}, true},
		{"before first segment", Location{Line: 1, Column: 0}, Location{}, false},
		{"unmapped line", Location{Line: 2, Column: 1}, Location{}, false},
		{"malformed line skipped", Location{Line: 4, Column: 1}, Location{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := m.Resolve(c.in)
			if ok != c.ok || got != c.want {
				t.Errorf("Resolve(%+v) = %+v, %v; want %+v, %v", c.in, got, ok, c.want, c.ok)
			}
		})
	}
}

func TestMapper_ReloadsChangedTable(t *testing.T) {
	root := t.TempDir()
	writeBuildConfig(t, root, "")
	tc, err := NewToolchain(root)
	if err != nil {
		t.Fatal(err)
	}

	tablePath := filepath.Join(root, "main.go.map")
	if err := os.WriteFile(tablePath, []byte("1 1 10 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := tc.Mapper(tablePath)
	if got, ok := m.Resolve(Location{Line: 1, Column: 1}); !ok || got.Line != 10 {
		t.Fatalf("initial resolve: %+v, %v", got, ok)
	}

	// Regenerated tables must be picked up; the cache keys on stat identity.
	if err := os.WriteFile(tablePath, []byte("1 1 20 1\n# v2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, ok := m.Resolve(Location{Line: 1, Column: 1}); !ok || got.Line != 20 {
		t.Errorf("stale table served after regeneration: %+v, %v", got, ok)
	}

	if err := os.Remove(tablePath); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Resolve(Location{Line: 1, Column: 1}); ok {
		t.Error("resolve succeeded with the table gone")
	}
}
