// Package doctasks declares the build rules for document artifacts: figures drawn in OmniGraffle or Dia,
// gnuplot plots, vega grammar listings and LaTeX documents.
//
// Each declaration resolves its source and derived files relative to the current root directory, registers one
// file rule per derived file with the Host, adds the derived files to the kind's phony groups and registers a
// cleanup action. All real work is done by external tools.
package doctasks

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/dlove24/rake-latex/pkg/buildsys"
	"github.com/dlove24/rake-latex/pkg/rootdir"
)

// Kind identifies one of the supported declaration kinds.
type Kind int

const (
	KindGraffle Kind = iota
	KindDia
	KindGnuplot
	KindVega
	KindLatex
)

func (k Kind) String() string {
	if d, ok := Descriptors[k]; ok {
		return d.Name
	}
	return "unknown"
}

// Descriptor is the static description of a kind.
type Descriptor struct {
	// Name is also the name of the Starlark builtin.
	Name string
	// SourceExt is the default extension of the source file.
	SourceExt string
	// Outputs lists the extensions of the derived files. Vega derives both extensions from Languages instead.
	Outputs []string
	// Groups are the phony groups the derived files are added to.
	Groups []string
	// Cleans is false for kinds whose outputs can't be regenerated everywhere.
	Cleans bool
}

// Descriptors maps every kind to its descriptor.
var Descriptors = map[Kind]Descriptor{
	KindGraffle: {Name: "graffle", SourceExt: "graffle", Outputs: []string{"eps", "pdf"}, Groups: []string{"figures", "graffle"}},
	KindDia:     {Name: "dia", SourceExt: "dia", Outputs: []string{"eps", "pdf"}, Groups: []string{"figures", "dia"}, Cleans: true},
	KindGnuplot: {Name: "gnuplot", SourceExt: "gp", Outputs: []string{"eps", "pdf"}, Groups: []string{"figures", "gnuplot"}, Cleans: true},
	KindVega:    {Name: "vega", Groups: []string{"listings"}, Cleans: true},
	KindLatex:   {Name: "latex", SourceExt: "tex", Outputs: []string{"dvi", "ps", "pdf"}, Groups: []string{"dvi", "ps", "pdf"}, Cleans: true},
}

// Tools names the external programs. Each field may be a bare name looked up in PATH or a path.
type Tools struct {
	Graffle  string
	Dia      string
	EpsToPdf string
	Gnuplot  string
	Latex    string
	Pdflatex string
	Bibtex   string
	Dvips    string
	Vega     string
}

// DefaultTools returns the program names used when nothing else is configured.
func DefaultTools() Tools {
	return Tools{
		Graffle:  "graffle.sh",
		Dia:      "dia",
		EpsToPdf: "epstopdf",
		Gnuplot:  "gnuplot-latex-fonts",
		Latex:    "latex",
		Pdflatex: "pdflatex",
		Bibtex:   "bibtex",
		Dvips:    "dvips",
		Vega:     "vega",
	}
}

// Host receives the rules. *buildsys.Registry implements it.
type Host interface {
	File(target string, prereqs []string, action buildsys.Action) error
	Group(name string, members ...string) error
	Clean(action buildsys.Action) error
}

// Declaration is one of Graffle, Dia, Gnuplot, Vega or Latex.
type Declaration interface {
	Kind() Kind
	plan(roots *rootdir.Stack, tools Tools) (*plan, error)
}

type rule struct {
	target  string
	prereqs []string
	action  buildsys.Action
}

type group struct {
	name    string
	members []string
}

// plan is everything a declaration wants registered.
type plan struct {
	name   string
	rules  []rule
	groups []group
	clean  []string
}

func (p *plan) addRule(target string, prereqs []string, action buildsys.Action) {
	p.rules = append(p.rules, rule{target: target, prereqs: prereqs, action: action})
}

func (p *plan) addGroups(members []string, names ...string) {
	for _, name := range names {
		p.groups = append(p.groups, group{name: name, members: members})
	}
}

// Definer registers declarations with a Host. Relative paths are resolved against the current root of roots.
type Definer struct {
	host  Host
	roots *rootdir.Stack
	tools Tools
}

// NewDefiner returns a Definer. A nil roots uses an empty stack, i.e. paths relative to the working directory.
func NewDefiner(host Host, roots *rootdir.Stack, tools Tools) *Definer {
	if roots == nil {
		roots = rootdir.New()
	}

	return &Definer{
		host:  host,
		roots: roots,
		tools: tools,
	}
}

// Define registers the rules for decl and returns its logical name, which can be passed on to other
// declarations (i.e. the figures of a Latex document).
func (d *Definer) Define(decl Declaration) (string, error) {
	p, err := decl.plan(d.roots, d.tools)
	if err != nil {
		return "", eris.Wrapf(err, "invalid %s declaration", decl.Kind())
	}

	for _, r := range p.rules {
		err = d.host.File(r.target, r.prereqs, r.action)
		if err != nil {
			return "", eris.Wrapf(err, "failed to register %s", r.target)
		}
	}

	for _, g := range p.groups {
		err = d.host.Group(g.name, g.members...)
		if err != nil {
			return "", eris.Wrapf(err, "failed to add %s to group %s", p.name, g.name)
		}
	}

	if len(p.clean) > 0 {
		err = d.host.Clean(removeAll(p.clean))
		if err != nil {
			return "", eris.Wrapf(err, "failed to register cleanup for %s", p.name)
		}
	}

	return p.name, nil
}

func removeAll(paths []string) buildsys.Action {
	return func(ctx context.Context, sh buildsys.Shell, _ []string) error {
		for _, path := range paths {
			if err := sh.Remove(ctx, path); err != nil {
				return err
			}
		}
		return nil
	}
}

func run(cmd buildsys.Command) buildsys.Action {
	return func(ctx context.Context, sh buildsys.Shell, _ []string) error {
		return sh.Run(ctx, cmd)
	}
}

// sourcePath returns the root-relative source of a declaration: the explicit override if there is one,
// otherwise name with ext.
func sourcePath(roots *rootdir.Stack, name, override, ext string) string {
	if override != "" {
		return roots.Resolve(override)
	}
	return roots.Resolve(Ext(name, ext))
}

func resolveAll(roots *rootdir.Stack, paths []string) []string {
	result := make([]string, len(paths))
	for idx, path := range paths {
		result[idx] = roots.Resolve(path)
	}
	return result
}
