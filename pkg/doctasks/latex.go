package doctasks

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/dlove24/rake-latex/pkg/buildsys"
	"github.com/dlove24/rake-latex/pkg/rootdir"
)

// Latex typesets a document into DVI, PostScript and PDF.
//
// Figures are logical names as returned for figure declarations; the DVI build depends on their EPS form and
// the PDF build on their PDF form. References are BibTeX databases; when there are any, BibTeX runs between two
// TeX passes. Includes are extra prerequisites (chapters, style files), IncludeDirs are added to TEXINPUTS.
type Latex struct {
	Name        string
	Source      string
	Figures     []string
	References  []string
	Includes    []string
	IncludeDirs []string
	// SinglePass skips the second TeX run that resolves references through the .aux file.
	SinglePass bool
}

func (Latex) Kind() Kind { return KindLatex }

// latexTarget is one declared document. The search paths are computed on first use and shared by all passes.
type latexTarget struct {
	tools       Tools
	tex         string
	dir         string
	job         string
	dvi         string
	ps          string
	pdf         string
	references  []string
	includeDirs []string
	dviPrereqs  []string
	pdfPrereqs  []string
	needAux     bool

	latexInputs    *SearchPath
	pdflatexInputs *SearchPath
	bibInputs      *SearchPath
}

func (l Latex) plan(roots *rootdir.Stack, tools Tools) (*plan, error) {
	if l.Name == "" {
		return nil, eris.New("missing name")
	}

	tex := sourcePath(roots, l.Name, l.Source, "tex")
	includes := resolveAll(roots, l.Includes)
	references := resolveAll(roots, l.References)

	includeDirs := make([]string, len(l.IncludeDirs))
	for idx, dir := range l.IncludeDirs {
		abs, err := filepath.Abs(roots.Resolve(dir))
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve include dir %s", dir)
		}
		includeDirs[idx] = abs
	}

	t := &latexTarget{
		tools:       tools,
		tex:         tex,
		dir:         filepath.Dir(tex),
		job:         jobName(tex),
		dvi:         Ext(tex, "dvi"),
		ps:          Ext(tex, "ps"),
		pdf:         Ext(tex, "pdf"),
		references:  references,
		includeDirs: includeDirs,
		dviPrereqs:  concat([]string{tex}, references, withExt(l.Figures, "eps"), includes),
		pdfPrereqs:  concat([]string{tex}, references, withExt(l.Figures, "pdf"), includes),
		needAux:     !l.SinglePass,
	}

	p := &plan{name: tex}
	p.addRule(t.dvi, t.dviPrereqs, t.compile(tools.Latex, t.texInputs))
	p.addRule(t.ps, []string{t.dvi}, t.dvips)
	p.addRule(t.pdf, t.pdfPrereqs, t.compile(tools.Pdflatex, t.pdfTexInputs))
	p.addGroups([]string{t.dvi}, "dvi")
	p.addGroups([]string{t.ps}, "ps")
	p.addGroups([]string{t.pdf}, "pdf")

	p.clean = []string{t.dvi, t.ps, t.pdf, Ext(tex, "aux"), Ext(tex, "log"), Ext(tex, "toc")}
	if len(references) > 0 {
		p.clean = append(p.clean, Ext(tex, "bbl"), Ext(tex, "blg"))
	}
	return p, nil
}

func (t *latexTarget) texInputs() SearchPath {
	if t.latexInputs == nil {
		t.latexInputs = &SearchPath{
			Var:  "TEXINPUTS",
			Dirs: Union(CollectDirs(t.dviPrereqs, ".eps"), t.includeDirs),
		}
	}
	return *t.latexInputs
}

func (t *latexTarget) pdfTexInputs() SearchPath {
	if t.pdflatexInputs == nil {
		t.pdflatexInputs = &SearchPath{
			Var:  "TEXINPUTS",
			Dirs: Union(CollectDirs(t.pdfPrereqs, ".pdf"), t.includeDirs),
		}
	}
	return *t.pdflatexInputs
}

func (t *latexTarget) bibtexInputs() SearchPath {
	if t.bibInputs == nil {
		t.bibInputs = &SearchPath{
			Var:  "BIBINPUTS",
			Dirs: CollectDirs(t.references, ".bib"),
		}
	}
	return *t.bibInputs
}

// compile returns the action for the DVI or PDF output: one TeX pass followed by BibTeX if there are
// references, then the final pass (twice if the .aux file is needed).
func (t *latexTarget) compile(engine string, inputs func() SearchPath) buildsys.Action {
	return func(ctx context.Context, sh buildsys.Shell, _ []string) error {
		cmd := buildsys.Command{
			Dir:  t.dir,
			Env:  inputs().Env(),
			Args: []string{engine, t.job},
		}

		if len(t.references) > 0 {
			if err := sh.Run(ctx, cmd); err != nil {
				return err
			}

			if err := t.bibtex(ctx, sh); err != nil {
				return err
			}
		}

		if err := sh.Run(ctx, cmd); err != nil {
			return err
		}

		if t.needAux {
			return sh.Run(ctx, cmd)
		}
		return nil
	}
}

func (t *latexTarget) bibtex(ctx context.Context, sh buildsys.Shell) error {
	return sh.Run(ctx, buildsys.Command{
		Dir:  t.dir,
		Env:  t.bibtexInputs().Env(),
		Args: []string{t.tools.Bibtex, t.job},
	})
}

func (t *latexTarget) dvips(ctx context.Context, sh buildsys.Shell, _ []string) error {
	return sh.Run(ctx, buildsys.Command{
		Env:  t.texInputs().Env(),
		Args: []string{t.tools.Dvips, t.dvi, "-o", t.ps},
	})
}
