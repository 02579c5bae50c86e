package buildsys

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"
)

func writeScripts(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := ioutil.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func runScript(t *testing.T, dir string, options map[string]string) (TaskList, error) {
	t.Helper()

	tasks, _, err := RunScript(testCtx(), filepath.Join(dir, "tasks.star"), dir, options, true, nil)
	return tasks, err
}

func TestRunScriptTasks(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"tasks.star": `
draft = option("draft", "no", help = "build a draft")

def configure():
    include("chapters/tasks.star")
    task("hello", desc = "draft: " + draft, cmds = [("echo", "it's *.tex; $HOME")])
`,
		"chapters/tasks.star": `
def configure():
    task("chapters", desc = str(resolve_path("intro.tex")))
`,
	})

	tasks, err := runScript(t, dir, map[string]string{"draft": "yes"})
	if err != nil {
		t.Fatal(err)
	}

	hello, ok := tasks["hello"]
	if !ok {
		t.Fatalf("task hello is missing: %v", tasks)
	}
	if hello.Desc != "draft: yes" {
		t.Errorf("Desc = %q", hello.Desc)
	}

	// resolve_path is relative to the included file
	chapters := tasks["chapters"]
	if chapters == nil || !strings.HasSuffix(chapters.Desc, filepath.Join("chapters", "intro.tex")+`"`) {
		t.Errorf("unexpected chapters task %v", chapters)
	}

	var out bytes.Buffer
	err = RunTask(testCtx(), dir, "hello", tasks, RunOptions{Stdout: &out})
	if err != nil {
		t.Fatal(err)
	}
	if out.String() != "it's *.tex; $HOME\n" {
		t.Errorf("arguments weren't passed verbatim: %q", out.String())
	}
}

func TestRunScriptErrors(t *testing.T) {
	cases := []struct {
		note   string
		files  map[string]string
		extra  starlark.StringDict
		errMsg string
	}{
		{
			note:   "missing configure",
			files:  map[string]string{"tasks.star": `x = 1`},
			errMsg: "did not declare a configure function",
		},
		{
			note: "include cycle",
			files: map[string]string{
				"tasks.star":     "def configure():\n    include(\"sub/tasks.star\")\n",
				"sub/tasks.star": "def configure():\n    include(\"../tasks.star\")\n",
			},
			errMsg: "includes itself",
		},
		{
			note:   "reserved name",
			files:  map[string]string{"tasks.star": "def configure():\n    task(\"configure\")\n"},
			errMsg: "reserved",
		},
		{
			note:   "duplicate task",
			files:  map[string]string{"tasks.star": "def configure():\n    task(\"a\")\n    task(\"a\")\n"},
			errMsg: "declared twice",
		},
		{
			note:   "option outside of the init phase",
			files:  map[string]string{"tasks.star": "def configure():\n    option(\"late\")\n"},
			errMsg: "init phase",
		},
		{
			note:   "builtin clash",
			files:  map[string]string{"tasks.star": "def configure():\n    pass\n"},
			extra:  starlark.StringDict{"task": starlark.None},
			errMsg: "already defined",
		},
		{
			note:   "error builtin",
			files:  map[string]string{"tasks.star": "def configure():\n    error(\"missing TeX installation\")\n"},
			errMsg: "missing TeX installation",
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			dir := writeScripts(t, tc.files)
			_, _, err := RunScript(testCtx(), filepath.Join(dir, "tasks.star"), dir, nil, true, tc.extra)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected %q in %v", tc.errMsg, err)
			}
		})
	}
}

func TestRunScriptRootBalance(t *testing.T) {
	// a failing include must not leave its root on the stack for the rest of the file
	dir := writeScripts(t, map[string]string{
		"tasks.star": `
def configure():
    include("sub/tasks.star")
`,
		"sub/tasks.star": `
def configure():
    error("broken")
`,
	})

	_, err := runScript(t, dir, nil)
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestReadYaml(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"doc.yml": `
engine:
  name: pdflatex
  passes: 2
fonts: [cmr10, cmmi10]
`,
		"tasks.star": `
def configure():
    task("engine", desc = read_yaml("doc.yml", "engine.name"))
    task("passes", desc = str(read_yaml("doc.yml", "engine.passes")))
    task("fonts", desc = " ".join(read_yaml("doc.yml", "fonts")))
    task("second", desc = read_yaml("doc.yml", "fonts.1"))
    task("missing", desc = read_yaml("doc.yml", "bibtex.style", "plain"))
`,
	})

	tasks, err := runScript(t, dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	exp := map[string]string{
		"engine":  "pdflatex",
		"passes":  "2",
		"fonts":   "cmr10 cmmi10",
		"second":  "cmmi10",
		"missing": "plain",
	}
	got := map[string]string{}
	for name := range exp {
		got[name] = tasks[name].Desc
	}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Errorf("(-want, +got):\n%s", diff)
	}
}

func TestLookupYaml(t *testing.T) {
	var doc interface{}
	err := yaml.Unmarshal([]byte("a:\n  b: [1, {c: x}]\n  n: null\n"), &doc)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		key   string
		exp   interface{}
		found bool
	}{
		{key: "a.b.0", exp: 1, found: true},
		{key: "a.b.1.c", exp: "x", found: true},
		{key: "a.b.5", found: false},
		{key: "a.b.x", found: false},
		{key: "a.missing.c", found: false},
		{key: "a.n", found: false},
	}

	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			value, found, err := lookupYaml(doc, tc.key)
			if err != nil {
				t.Fatal(err)
			}
			if found != tc.found {
				t.Fatalf("found = %v", found)
			}
			if diff := cmp.Diff(tc.exp, value); diff != "" {
				t.Errorf("(-want, +got):\n%s", diff)
			}
		})
	}

	_, _, err = lookupYaml(doc, "a.b.0.deeper")
	if err == nil {
		t.Error("expected an error when indexing a scalar")
	}
}

func TestSimplifyPath(t *testing.T) {
	ctx := &parserCtx{projectRoot: filepath.FromSlash("/work/thesis")}

	cases := map[string]string{
		"/work/thesis":                "//",
		"/work/thesis/chapters/a.tex": "//chapters/a.tex",
		"/work/thesis2/a.tex":         filepath.FromSlash("/work/thesis2/a.tex"),
		"/elsewhere":                  filepath.FromSlash("/elsewhere"),
	}
	for in, exp := range cases {
		if got := simplifyPath(ctx, filepath.FromSlash(in)); got != exp {
			t.Errorf("simplifyPath(%s) = %s, expected %s", in, got, exp)
		}
	}
}
