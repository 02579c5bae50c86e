package doctasks

import (
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/dlove24/rake-latex/pkg/buildsys"
	"github.com/dlove24/rake-latex/pkg/rootdir"
)

// figure holds the paths shared by all figure kinds.
type figure struct {
	name   string
	source string
	eps    string
	pdf    string
}

func newFigure(roots *rootdir.Stack, kind Kind, name, source string) (figure, error) {
	if name == "" {
		return figure{}, eris.New("missing name")
	}

	ext := Descriptors[kind].SourceExt
	logical := roots.Resolve(Ext(name, ext))
	return figure{
		name:   logical,
		source: sourcePath(roots, name, source, ext),
		eps:    Ext(logical, "eps"),
		pdf:    Ext(logical, "pdf"),
	}, nil
}

func (f figure) outputs() []string {
	return []string{f.eps, f.pdf}
}

func (f figure) plan(kind Kind) *plan {
	p := &plan{name: f.name}
	p.addGroups(f.outputs(), Descriptors[kind].Groups...)
	if Descriptors[kind].Cleans {
		p.clean = f.outputs()
	}
	return p
}

// epsToPdf converts the figure's EPS output into its PDF output.
func (f figure) epsToPdf(tools Tools) buildsys.Action {
	return run(buildsys.Command{Args: []string{tools.EpsToPdf, f.eps, "-o=" + f.pdf}})
}

// Graffle exports both EPS and PDF directly from an OmniGraffle drawing. The outputs are never removed by
// clean since the exporter only works where OmniGraffle is installed.
type Graffle struct {
	Name   string
	Source string
}

func (Graffle) Kind() Kind { return KindGraffle }

func (g Graffle) plan(roots *rootdir.Stack, tools Tools) (*plan, error) {
	f, err := newFigure(roots, KindGraffle, g.Name, g.Source)
	if err != nil {
		return nil, err
	}

	p := f.plan(KindGraffle)
	p.addRule(f.eps, []string{f.source}, run(buildsys.Command{Args: []string{tools.Graffle, "eps", f.source, f.eps}}))
	p.addRule(f.pdf, []string{f.source}, run(buildsys.Command{Args: []string{tools.Graffle, "pdf", f.source, f.pdf}}))
	return p, nil
}

// Dia renders a Dia diagram to EPS and converts that to PDF.
type Dia struct {
	Name   string
	Source string
}

func (Dia) Kind() Kind { return KindDia }

func (d Dia) plan(roots *rootdir.Stack, tools Tools) (*plan, error) {
	f, err := newFigure(roots, KindDia, d.Name, d.Source)
	if err != nil {
		return nil, err
	}

	p := f.plan(KindDia)
	p.addRule(f.eps, []string{f.source}, run(buildsys.Command{
		Args: []string{tools.Dia, "-l", "-t", "eps-builtin", "-e", f.eps, f.source},
	}))
	p.addRule(f.pdf, []string{f.eps}, f.epsToPdf(tools))
	return p, nil
}

// Gnuplot runs a plot script from its own directory so that relative data files resolve. Includes are extra
// prerequisites of the EPS output, typically the data files the script reads.
type Gnuplot struct {
	Name     string
	Source   string
	Fonts    []string
	Includes []string
}

func (Gnuplot) Kind() Kind { return KindGnuplot }

func (g Gnuplot) plan(roots *rootdir.Stack, tools Tools) (*plan, error) {
	f, err := newFigure(roots, KindGnuplot, g.Name, g.Source)
	if err != nil {
		return nil, err
	}

	args := append([]string{tools.Gnuplot, filepath.Base(f.source)}, g.Fonts...)

	p := f.plan(KindGnuplot)
	p.addRule(f.eps, concat([]string{f.source}, resolveAll(roots, g.Includes)), run(buildsys.Command{
		Dir:  filepath.Dir(f.source),
		Args: args,
	}))
	p.addRule(f.pdf, []string{f.eps}, f.epsToPdf(tools))
	return p, nil
}
