package doctasks

import (
	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"

	"github.com/dlove24/rake-latex/pkg/buildsys"
)

type declareFunc func(args starlark.Tuple, kwargs []starlark.Tuple, fn *starlark.Builtin) (Declaration, error)

// Builtins returns the Starlark functions that declare document tasks. They're meant to be passed as extra
// builtins to buildsys.RunScript.
func Builtins(tools Tools) starlark.StringDict {
	funcs := map[Kind]declareFunc{
		KindGraffle: declareGraffle,
		KindDia:     declareDia,
		KindGnuplot: declareGnuplot,
		KindVega:    declareVega,
		KindLatex:   declareLatex,
	}

	result := make(starlark.StringDict, len(funcs))
	for kind, declare := range funcs {
		name := Descriptors[kind].Name
		result[name] = starlark.NewBuiltin(name, builtin(tools, declare))
	}
	return result
}

func builtin(tools Tools, declare declareFunc) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		decl, err := declare(args, kwargs, fn)
		if err != nil {
			return nil, err
		}

		definer := NewDefiner(buildsys.ThreadRegistry(thread), buildsys.ThreadRoots(thread), tools)
		name, err := definer.Define(decl)
		if err != nil {
			return nil, err
		}

		buildsys.Log(buildsys.ThreadContext(thread)).Debug().
			Str("kind", decl.Kind().String()).
			Msgf("declared %s", name)

		return starlark.String(name), nil
	}
}

// stringList accepts a string, a path, a list or tuple of those, or None.
func stringList(value starlark.Value, field string) ([]string, error) {
	switch v := value.(type) {
	case nil, starlark.NoneType:
		return nil, nil
	case starlark.String:
		return []string{v.GoString()}, nil
	case buildsys.StarlarkPath:
		return []string{string(v)}, nil
	case starlark.Iterable:
		result := []string{}
		iter := v.Iterate()
		defer iter.Done()

		var item starlark.Value
		for iter.Next(&item) {
			switch s := item.(type) {
			case starlark.String:
				result = append(result, s.GoString())
			case buildsys.StarlarkPath:
				result = append(result, string(s))
			default:
				return nil, eris.Errorf("expected all items in %s to be strings but found %s", field, item.Type())
			}
		}
		return result, nil
	}
	return nil, eris.Errorf("expected %s to be a string or a list of strings but found %s", field, value.Type())
}

// optString accepts a string, a path or None.
func optString(value starlark.Value, field string) (string, error) {
	switch v := value.(type) {
	case nil, starlark.NoneType:
		return "", nil
	case starlark.String:
		return v.GoString(), nil
	case buildsys.StarlarkPath:
		return string(v), nil
	}
	return "", eris.Errorf("expected %s to be a string but found %s", field, value.Type())
}

func declareGraffle(args starlark.Tuple, kwargs []starlark.Tuple, fn *starlark.Builtin) (Declaration, error) {
	var name string
	var source starlark.Value

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "source?", &source)
	if err != nil {
		return nil, err
	}

	decl := Graffle{Name: name}
	decl.Source, err = optString(source, "source")
	return decl, err
}

func declareDia(args starlark.Tuple, kwargs []starlark.Tuple, fn *starlark.Builtin) (Declaration, error) {
	var name string
	var source starlark.Value

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "source?", &source)
	if err != nil {
		return nil, err
	}

	decl := Dia{Name: name}
	decl.Source, err = optString(source, "source")
	return decl, err
}

func declareGnuplot(args starlark.Tuple, kwargs []starlark.Tuple, fn *starlark.Builtin) (Declaration, error) {
	var name string
	var fonts, includes, source starlark.Value

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "fonts?", &fonts, "includes?", &includes,
		"source?", &source)
	if err != nil {
		return nil, err
	}

	decl := Gnuplot{Name: name}
	if decl.Fonts, err = stringList(fonts, "fonts"); err != nil {
		return nil, err
	}
	if decl.Includes, err = stringList(includes, "includes"); err != nil {
		return nil, err
	}
	if decl.Source, err = optString(source, "source"); err != nil {
		return nil, err
	}
	return decl, nil
}

func declareVega(args starlark.Tuple, kwargs []starlark.Tuple, fn *starlark.Builtin) (Declaration, error) {
	var decl Vega

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &decl.Name, "language", &decl.Language,
		"output", &decl.Output)
	if err != nil {
		return nil, err
	}
	return decl, nil
}

func declareLatex(args starlark.Tuple, kwargs []starlark.Tuple, fn *starlark.Builtin) (Declaration, error) {
	var name string
	var figures, references, includes, includeDirs, source starlark.Value
	needAux := true

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "figures?", &figures,
		"references?", &references, "includes?", &includes, "include_dirs?", &includeDirs, "need_aux?", &needAux,
		"source?", &source)
	if err != nil {
		return nil, err
	}

	decl := Latex{Name: name, SinglePass: !needAux}
	lists := []struct {
		value starlark.Value
		field string
		dest  *[]string
	}{
		{figures, "figures", &decl.Figures},
		{references, "references", &decl.References},
		{includes, "includes", &decl.Includes},
		{includeDirs, "include_dirs", &decl.IncludeDirs},
	}
	for _, l := range lists {
		if *l.dest, err = stringList(l.value, l.field); err != nil {
			return nil, err
		}
	}

	if decl.Source, err = optString(source, "source"); err != nil {
		return nil, err
	}
	return decl, nil
}
