package doctasks

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dlove24/rake-latex/pkg/buildsys"
)

const mainScript = `
def configure():
    include("chapters/tasks.star")
    flow = dia("flow")
    arch = graffle("arch", source = "drawings/architecture.graffle")
    latex("paper",
        figures = [flow, arch],
        references = "refs.bib",
        include_dirs = ["sty"],
        need_aux = False)
`

const chapterScript = `
def configure():
    gnuplot("speed", "cmr10", includes = ["speed.dat"])
    vega("grammar", "relaxng", "latex")
`

func writeTree(t *testing.T, files map[string]string) string {
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

func TestBuiltinsScript(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"tasks.star":          mainScript,
		"chapters/tasks.star": chapterScript,
	})

	tasks, _, err := buildsys.RunScript(testCtx(), filepath.Join(dir, "tasks.star"), dir, nil, true, Builtins(DefaultTools()))
	if err != nil {
		t.Fatal(err)
	}

	lookup := func(name string) *buildsys.Task {
		t.Helper()
		task, ok := tasks.Lookup(filepath.Join(dir, name))
		if !ok {
			task, ok = tasks.Lookup(name)
		}
		if !ok {
			t.Fatalf("task %s not found", name)
		}
		return task
	}

	// the include pushed chapters/ and popped it again
	speed := lookup("chapters/speed.eps")
	expInputs := []string{dir + "/chapters/speed.gp", dir + "/chapters/speed.dat"}
	if diff := cmp.Diff(expInputs, speed.Inputs); diff != "" {
		t.Errorf("speed.eps inputs (-want, +got):\n%s", diff)
	}

	lookup("flow.eps")
	lookup("chapters/grammar.tex")

	arch := lookup("arch.pdf")
	if diff := cmp.Diff([]string{dir + "/drawings/architecture.graffle"}, arch.Inputs); diff != "" {
		t.Errorf("arch.pdf inputs (-want, +got):\n%s", diff)
	}

	pdf := lookup("paper.pdf")
	expInputs = []string{dir + "/paper.tex", dir + "/refs.bib", dir + "/flow.pdf", dir + "/arch.pdf"}
	if diff := cmp.Diff(expInputs, pdf.Inputs); diff != "" {
		t.Errorf("paper.pdf inputs (-want, +got):\n%s", diff)
	}

	figures := lookup("figures")
	if figures.Kind != buildsys.TaskPhony || len(figures.Deps) != 6 {
		t.Errorf("unexpected figures group: %s %v", figures.Kind, figures.Deps)
	}
	listings := lookup("listings")
	if diff := cmp.Diff([]string{dir + "/chapters/grammar.tex"}, listings.Deps); diff != "" {
		t.Errorf("listings (-want, +got):\n%s", diff)
	}

	// dia, gnuplot, vega and latex register cleanup actions, graffle doesn't
	if clean := lookup("clean"); len(clean.Cmds) != 4 {
		t.Errorf("expected 4 cleanup actions, found %d", len(clean.Cmds))
	}
}

func TestBuiltinsArguments(t *testing.T) {
	cases := []struct {
		note   string
		script string
		errMsg string
	}{
		{note: "unknown vega language", script: `vega("g", "cobol", "latex")`, errMsg: "unknown vega language"},
		{note: "bad figure list", script: `latex("paper", figures = [1])`, errMsg: "expected all items in figures"},
		{note: "bad source", script: `dia("flow", source = 3)`, errMsg: "expected source to be a string"},
		{note: "missing argument", script: `gnuplot()`, errMsg: "missing argument for name"},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			dir := writeTree(t, map[string]string{
				"tasks.star": "def configure():\n    " + tc.script + "\n",
			})

			_, _, err := buildsys.RunScript(testCtx(), filepath.Join(dir, "tasks.star"), dir, nil, true, Builtins(DefaultTools()))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected %q in error, got %v", tc.errMsg, err)
			}
		})
	}
}

func TestBuildFigures(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"tasks.star":                    mainScript,
		"chapters/tasks.star":           chapterScript,
		"flow.dia":                      "dia",
		"chapters/speed.gp":             "plot",
		"chapters/speed.dat":            "1 2",
		"drawings/architecture.graffle": "graffle",
	})

	// the mvdan interpreter's true builtin stands in for every tool
	tools := Tools{Graffle: "true", Dia: "true", EpsToPdf: "true", Gnuplot: "true"}
	tasks, _, err := buildsys.RunScript(testCtx(), filepath.Join(dir, "tasks.star"), dir, nil, true, Builtins(tools))
	if err != nil {
		t.Fatal(err)
	}

	var done []string
	err = buildsys.RunTask(testCtx(), dir, "figures", tasks, buildsys.RunOptions{
		OnTaskDone: func(task *buildsys.Task) {
			if task.Kind == buildsys.TaskFile {
				done = append(done, filepath.Base(task.Short))
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	sort.Strings(done)
	exp := []string{"arch.eps", "arch.pdf", "flow.eps", "flow.pdf", "speed.eps", "speed.pdf"}
	if diff := cmp.Diff(exp, done); diff != "" {
		t.Errorf("built files (-want, +got):\n%s", diff)
	}
}
