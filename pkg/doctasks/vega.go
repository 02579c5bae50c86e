package doctasks

import (
	"github.com/rotisserie/eris"

	"github.com/dlove24/rake-latex/pkg/buildsys"
	"github.com/dlove24/rake-latex/pkg/rootdir"
)

// Languages maps the languages understood by vega to their file extensions.
var Languages = map[string]string{
	"relaxng": "rnc",
	"carp":    "carp",
	"latex":   "tex",
}

// ErrUnknownLanguage is returned for vega languages that aren't part of Languages.
var ErrUnknownLanguage = eris.New("unknown vega language")

// Vega converts a grammar from Language into Output, i.e. a RELAX NG schema into a LaTeX listing.
type Vega struct {
	Name     string
	Language string
	Output   string
}

func (Vega) Kind() Kind { return KindVega }

func languageExt(language string) (string, error) {
	ext, ok := Languages[language]
	if !ok {
		return "", eris.Wrapf(ErrUnknownLanguage, "%q", language)
	}
	return ext, nil
}

func (v Vega) plan(roots *rootdir.Stack, tools Tools) (*plan, error) {
	if v.Name == "" {
		return nil, eris.New("missing name")
	}

	sourceExt, err := languageExt(v.Language)
	if err != nil {
		return nil, err
	}

	destExt, err := languageExt(v.Output)
	if err != nil {
		return nil, err
	}

	destFile := Ext(v.Name, destExt)
	source := roots.Resolve(Ext(v.Name, sourceExt))
	dest := roots.Resolve(destFile)

	p := &plan{
		// the logical name stays relative to the root
		name:  destFile,
		clean: []string{dest},
	}
	p.addRule(dest, []string{source}, run(buildsys.Command{
		Args: []string{tools.Vega, "-l", v.Language, "-o", v.Output, source, dest},
	}))
	p.addGroups([]string{dest}, Descriptors[KindVega].Groups...)
	return p, nil
}
