package cmd

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func TestSplitArgs(t *testing.T) {
	targets, options := splitArgs([]string{"pdf", "draft=yes", "doc/paper.ps", "empty="})

	if diff := cmp.Diff([]string{"pdf", "doc/paper.ps"}, targets); diff != "" {
		t.Errorf("targets (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"draft": "yes", "empty": ""}, options); diff != "" {
		t.Errorf("options (-want, +got):\n%s", diff)
	}
}

func TestTouchesDefinitions(t *testing.T) {
	if touchesDefinitions([]string{"paper.tex", "figs/speed.gp"}) {
		t.Error("sources aren't definitions")
	}
	if !touchesDefinitions([]string{"paper.tex", "chapters/tasks.star"}) {
		t.Error("missed a changed definition file")
	}
}

func TestConsoleWriter(t *testing.T) {
	var out bytes.Buffer
	logger := zerolog.New(NewConsoleWriter(&out))

	logger.Info().Str("task", "doc/paper.dvi").Bool("command", true).Str("dir", "doc").Msg("latex paper")
	logger.Warn().Msg("figure [1] is missing")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", out.String())
	}
	if !strings.Contains(lines[0], "doc/paper.dvi: ") || !strings.Contains(lines[0], "$ (cd doc) latex paper") {
		t.Errorf("unexpected command line %q", lines[0])
	}
	if !strings.Contains(lines[1], "figure [1] is missing") {
		t.Errorf("unexpected warning %q", lines[1])
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestFindProject(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	nested := filepath.Join(root, "chapters", "intro")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(root, "tasks.star"), []byte("def configure():\n    pass\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	chdir(t, nested)
	found, cfg, err := findProject("")
	if err != nil {
		t.Fatal(err)
	}
	if found != root {
		t.Errorf("found %s, expected %s", found, root)
	}
	if cfg.TaskFile != "tasks.star" {
		t.Errorf("TaskFile = %s", cfg.TaskFile)
	}

	// a texbuild.toml next to a differently named definition file
	other, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(other, "texbuild.toml"), []byte(`task_file = "doc.star"`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(other, "doc.star"), []byte("def configure():\n    pass\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	chdir(t, other)
	found, cfg, err = findProject("")
	if err != nil {
		t.Fatal(err)
	}
	if found != other || cfg.TaskFile != "doc.star" {
		t.Errorf("found %s with %s", found, cfg.TaskFile)
	}
}

func TestPosixRm(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "paper.aux")
	if err := ioutil.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	rootCmd.SetArgs([]string{"posix", "rm", "-f", file, filepath.Join(dir, "missing.log")})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Errorf("%s still exists", file)
	}

	// flag values stick between executions
	rootCmd.SetArgs([]string{"posix", "rm", "--force=false", filepath.Join(dir, "missing.log")})
	if err := rootCmd.Execute(); err == nil {
		t.Error("expected an error for a missing file without -f")
	}
}
