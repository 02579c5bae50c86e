package doctasks

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dlove24/rake-latex/pkg/buildsys"
)

func TestExt(t *testing.T) {
	cases := []struct {
		path string
		ext  string
		exp  string
	}{
		{"paper.tex", "pdf", "paper.pdf"},
		{"paper.tex", ".dvi", "paper.dvi"},
		{"paper", "pdf", "paper.pdf"},
		{"paper.tex", "", "paper"},
		{"figs/plot.gp", "eps", "figs/plot.eps"},
		{"figs.d/plot", "eps", "figs.d/plot.eps"},
		{"dist/doc.tar.gz", "xz", "dist/doc.tar.xz"},
		{".latexmkrc", "bak", ".latexmkrc.bak"},
		{"doc/.hidden", "x", "doc/.hidden.x"},
		{"paper.", "pdf", "paper.pdf"},
		{".", "pdf", "."},
		{"..", "pdf", ".."},
	}

	for _, tc := range cases {
		t.Run(tc.path+"->"+tc.ext, func(t *testing.T) {
			if got := Ext(tc.path, tc.ext); got != tc.exp {
				t.Errorf("Ext(%q, %q) = %q, expected %q", tc.path, tc.ext, got, tc.exp)
			}
		})
	}
}

func TestJobName(t *testing.T) {
	if got := jobName("doc/chapters/paper.tex"); got != "paper" {
		t.Errorf("got %q", got)
	}
}

func TestCollectDirs(t *testing.T) {
	cases := []struct {
		note    string
		prereqs []string
		exts    []string
		exp     []string
	}{
		{
			note:    "keeps matching extensions",
			prereqs: []string{"figs/a.eps", "doc/b.tex", "figs/c.eps"},
			exts:    []string{".eps"},
			exp:     []string{absDir(t, "figs")},
		},
		{
			note:    "first seen order",
			prereqs: []string{"b/x.pdf", "a/y.pdf", "b/z.pdf"},
			exts:    []string{"pdf"},
			exp:     []string{absDir(t, "b"), absDir(t, "a")},
		},
		{
			note:    "several extensions",
			prereqs: []string{"refs/a.bib", "figs/b.eps", "c.tex"},
			exts:    []string{".bib", ".eps"},
			exp:     []string{absDir(t, "refs"), absDir(t, "figs")},
		},
		{
			note:    "no match",
			prereqs: []string{"paper.tex"},
			exts:    []string{".eps"},
			exp:     []string{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			got := CollectDirs(tc.prereqs, tc.exts...)
			if diff := cmp.Diff(tc.exp, got); diff != "" {
				t.Errorf("(-want, +got):\n%s", diff)
			}
		})
	}
}

func TestUnion(t *testing.T) {
	got := Union([]string{"/a", "/b"}, []string{"/b", "/c", "/a"})
	if diff := cmp.Diff([]string{"/a", "/b", "/c"}, got); diff != "" {
		t.Errorf("(-want, +got):\n%s", diff)
	}
}

func TestSearchPath(t *testing.T) {
	empty := SearchPath{Var: "TEXINPUTS"}
	if env := empty.Env(); env != nil {
		t.Errorf("expected no variable, got %v", env)
	}
	if s := empty.String(); s != "" {
		t.Errorf("expected empty string, got %q", s)
	}

	p := SearchPath{Var: "TEXINPUTS", Dirs: []string{"/doc/figs", "/doc/sty"}}
	exp := []buildsys.EnvVar{{Name: "TEXINPUTS", Value: "/doc/figs:/doc/sty", Inherit: true}}
	if diff := cmp.Diff(exp, p.Env()); diff != "" {
		t.Errorf("(-want, +got):\n%s", diff)
	}
	if s := p.String(); s != "TEXINPUTS=/doc/figs:/doc/sty:${TEXINPUTS}" {
		t.Errorf("got %q", s)
	}

	cmd := buildsys.Command{Env: p.Env(), Args: []string{"latex", "paper"}}
	script, err := cmd.Script()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(script, "TEXINPUTS=") || !strings.HasSuffix(script, ":${TEXINPUTS} latex paper") {
		t.Errorf("got %q", script)
	}
}
