package buildsys

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"mvdan.cc/sh/v3/syntax"

	"github.com/dlove24/rake-latex/pkg/rootdir"
)

type parserCtx struct {
	ctx          context.Context
	options      map[string]ScriptOption
	optionValues map[string]string
	envOverrides map[string]string
	yamlCache    map[string]interface{}
	filepath     string
	projectRoot  string
	registry     *Registry
	roots        *rootdir.Stack
	builtins     starlark.StringDict
	including    map[string]bool
	doConfigure  bool
	initPhase    bool
}

// * Helpers

func getCtx(thread *starlark.Thread) *parserCtx {
	return thread.Local("parserCtx").(*parserCtx)
}

// ThreadRegistry returns the registry that collects the tasks declared by the script running on thread.
func ThreadRegistry(thread *starlark.Thread) *Registry {
	return getCtx(thread).registry
}

// ThreadRoots returns the root directory stack of the script running on thread.
func ThreadRoots(thread *starlark.Thread) *rootdir.Stack {
	return getCtx(thread).roots
}

// ThreadContext returns the context.Context the script was started with.
func ThreadContext(thread *starlark.Thread) context.Context {
	return getCtx(thread).ctx
}

type starlarkIterable interface {
	Len() int
	Iterate() starlark.Iterator
}

func starlarkIterable2stringSlice(input starlarkIterable, field string) ([]string, error) {
	if value, ok := input.(*starlark.List); ok && value == nil {
		return []string{}, nil
	}

	result := make([]string, 0, input.Len())
	iter := input.Iterate()

	var item starlark.Value
	for iter.Next(&item) {
		switch value := item.(type) {
		case starlark.String:
			result = append(result, value.GoString())
		default:
			return nil, eris.Errorf("expected all items in %s to be strings but found %s", field, item.Type())
		}
	}
	return result, nil
}

func shellReadDir(path string) ([]os.FileInfo, error) {
	if path == "" {
		path = "."
	}

	return ioutil.ReadDir(path)
}

// processCmdParts turns a command tuple into a call expression. Leading "NAME=value" strings are parsed as shell
// assignments, everything after them is quoted so that it reaches the program verbatim.
func processCmdParts(parts starlark.Tuple, parser *syntax.Parser, base string) (*syntax.CallExpr, error) {
	words := make([]string, 0, len(parts))
	inAssigns := true
	for idx, part := range parts {
		var encodedValue string

		switch value := part.(type) {
		case starlark.String:
			encodedValue = value.GoString()
			if inAssigns && strings.Contains(encodedValue, "=") {
				words = append(words, encodedValue)
				continue
			}
		case StarlarkPath:
			encodedValue = string(value)

			if filepath.IsAbs(encodedValue) {
				// absolute paths cause issues on Windows
				relValue, err := filepath.Rel(base, encodedValue)
				if err == nil {
					encodedValue = relValue
				}
			}

			encodedValue = filepath.ToSlash(encodedValue)
		default:
			return nil, eris.Errorf("found argument of type %s but only strings and paths are supported: %s", part.Type(), part.String())
		}

		inAssigns = false
		quoted, err := syntax.Quote(encodedValue, syntax.LangBash)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to quote argument #%d", idx)
		}
		words = append(words, quoted)
	}

	if inAssigns {
		return nil, eris.New("command contains no program to run")
	}

	line := strings.Join(words, " ")
	result, err := parser.Parse(strings.NewReader(line), "command")
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", line)
	}

	if len(result.Stmts) != 1 || result.Stmts[0].Cmd == nil {
		return nil, eris.Errorf("malformed command %s", line)
	}

	cmd, ok := result.Stmts[0].Cmd.(*syntax.CallExpr)
	if !ok {
		return nil, eris.Errorf("malformed command %s", line)
	}

	return cmd, nil
}

// logAt logs a message prefixed with the script position of the calling builtin.
func logAt(thread *starlark.Thread, level zerolog.Level, msg string, args ...interface{}) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	log(ctx.ctx).WithLevel(level).
		Msgf("%s:%d:%d: %s", simplifyPath(ctx, ctx.filepath), pos.Line, pos.Col, fmt.Sprintf(msg, args...))
}

// * Builtin functions

func option(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue starlark.String
	var help string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if !ctx.initPhase {
		return nil, eris.New("can only be called during the init phase (in the global scope)")
	}

	ctx.options[name] = ScriptOption{
		DefaultValue: defaultValue,
		Help:         help,
	}

	value, ok := ctx.optionValues[name]
	if ok {
		return starlark.String(value), nil
	}

	return defaultValue, nil
}

func task(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var deps *starlark.List
	var skipIfExists *starlark.List
	var inputs *starlark.List
	var outputs *starlark.List
	var env *starlark.Dict
	var cmds *starlark.List

	task := &Task{Kind: TaskScript}

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "short??", &task.Short, "hidden?", &task.Hidden,
		"desc?", &task.Desc, "deps?", &deps, "base?", &task.Base, "skip_if_exists?", &skipIfExists, "inputs?",
		&inputs, "outputs?", &outputs, "env?", &env, "cmds?", &cmds)
	if err != nil {
		return nil, err
	}

	if task.Short == "" {
		task.Hidden = true
		task.Short = "auto#" + nanoid.New()
	}

	if task.Short == "configure" {
		return nil, eris.New(`the task name "configure" is reserved, please use a different name`)
	}

	task.Env = map[string]string{}

	if task.Base == "" {
		task.Base = "."
	}
	task.Base = normalizePath(getCtx(thread), task.Base)

	task.Deps, err = starlarkIterable2stringSlice(deps, "deps")
	if err != nil {
		return nil, err
	}

	task.SkipIfExists, err = starlarkIterable2stringSlice(skipIfExists, "skip_if_exists")
	if err != nil {
		return nil, err
	}

	task.Inputs, err = starlarkIterable2stringSlice(inputs, "inputs")
	if err != nil {
		return nil, err
	}

	task.Outputs, err = starlarkIterable2stringSlice(outputs, "outputs")
	if err != nil {
		return nil, err
	}

	if env != nil {
		for _, rawKey := range env.Keys() {
			var key string

			switch value := rawKey.(type) {
			case starlark.String:
				key = value.GoString()
			default:
				return nil, eris.Errorf("found key type %s in env map but only strings are supported", rawKey.Type())
			}

			rawValue, _, err := env.Get(rawKey)
			if err != nil {
				return nil, err
			}
			switch value := rawValue.(type) {
			case starlark.String:
				task.Env[key] = value.GoString()
			default:
				return nil, eris.Errorf("found value of type %s for key %s but only strings are supported", rawValue.Type(), key)
			}
		}
	}

	strBuffer := strings.Builder{}
	printer := syntax.NewPrinter(syntax.Minify(true))
	parser := syntax.NewParser()
	task.Cmds = make([]TaskCmd, 0)
	if cmds == nil {
		cmds = starlark.NewList(nil)
	}
	iter := cmds.Iterate()
	defer iter.Done()

	var item starlark.Value
	idx := 0
	for iter.Next(&item) {
		switch value := item.(type) {
		case starlark.String:
			task.Cmds = append(task.Cmds, TaskCmdScript{Content: value.GoString()})
		case starlark.Tuple:
			cmd, err := processCmdParts(value, parser, task.Base)
			if err != nil {
				return nil, eris.Wrapf(err, "failed to process command #%d", idx)
			}

			strBuffer.Reset()
			err = printer.Print(&strBuffer, cmd)
			if err != nil {
				return nil, eris.Wrapf(err, "failed to process command #%d", idx)
			}

			task.Cmds = append(task.Cmds, TaskCmdScript{Content: strBuffer.String()})
		case *starlark.List:
			parts := make(starlark.Tuple, value.Len())
			subIter := value.Iterate()
			var subItem starlark.Value
			subIdx := 0
			for subIter.Next(&subItem) {
				parts[subIdx] = subItem
				subIdx++
			}
			subIter.Done()

			cmd, err := processCmdParts(parts, parser, task.Base)
			if err != nil {
				return nil, eris.Wrapf(err, "failed to process command #%d", idx)
			}

			strBuffer.Reset()
			err = printer.Print(&strBuffer, cmd)
			if err != nil {
				return nil, eris.Wrapf(err, "failed to process command #%d", idx)
			}

			task.Cmds = append(task.Cmds, TaskCmdScript{Content: strBuffer.String()})
		case *Task:
			task.Cmds = append(task.Cmds, TaskCmdTaskRef{Task: value})
		default:
			return nil, eris.Errorf("%s: unexpected type %s. Only strings, tuples and lists are valid", fn.Name(), item.Type())
		}

		idx++
	}

	if inputs != nil && inputs.Len() > 0 && (outputs == nil || outputs.Len() == 0) {
		logAt(thread, zerolog.WarnLevel, "%s: found inputs but no outputs", fn.Name())
	}

	if !task.Hidden {
		err = getCtx(thread).registry.Add(task)
		if err != nil {
			return nil, err
		}
	}
	return task, nil
}

func include(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &path)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	_, err = execFile(thread, ctx, ctx.roots.Resolve(path), false)
	if err != nil {
		return nil, err
	}

	return starlark.None, nil
}

// execFile evaluates a build definition file with its directory pushed onto the root stack. If the parser
// is configuring, the file's configure function is called before the root is popped again. Only the top-level
// file is required to declare one.
func execFile(parent *starlark.Thread, ctx *parserCtx, file string, topLevel bool) (starlark.StringDict, error) {
	absPath, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}

	if ctx.including[absPath] {
		return nil, eris.Errorf("%s includes itself", simplifyPath(ctx, absPath))
	}
	ctx.including[absPath] = true
	defer delete(ctx.including, absPath)

	prevPath := ctx.filepath
	ctx.filepath = absPath
	defer func() {
		ctx.filepath = prevPath
	}()

	thread := &starlark.Thread{
		Name:  simplifyPath(ctx, absPath),
		Print: parent.Print,
	}
	thread.SetLocal("parserCtx", ctx)

	var globals starlark.StringDict
	err = ctx.roots.Within(file, func() error {
		script, err := ioutil.ReadFile(absPath)
		if err != nil {
			return eris.Wrapf(err, "failed to read file %s", file)
		}

		globals, err = starlark.ExecFile(thread, simplifyPath(ctx, absPath), script, ctx.builtins)
		if err != nil {
			if evalError, ok := err.(*starlark.EvalError); ok {
				return eris.Errorf("failed to execute %s:\n%s", simplifyPath(ctx, absPath), evalError.Backtrace())
			}
			return eris.Wrapf(err, "failed to execute %s", simplifyPath(ctx, absPath))
		}

		if !ctx.doConfigure {
			return nil
		}

		configure, ok := globals["configure"]
		if !ok {
			if topLevel {
				return eris.Errorf("%s did not declare a configure function", simplifyPath(ctx, absPath))
			}
			return nil
		}

		configureFunc, ok := configure.(starlark.Callable)
		if !ok {
			return eris.Errorf("%s did declare a configure value but it's not a function", simplifyPath(ctx, absPath))
		}

		if topLevel {
			ctx.initPhase = false
		}
		_, err = starlark.Call(thread, configureFunc, make(starlark.Tuple, 0), make([]starlark.Tuple, 0))
		if err != nil {
			if evalError, ok := err.(*starlark.EvalError); ok {
				return eris.New(evalError.Backtrace())
			}
			return eris.Wrapf(err, "failed configure call in %s", simplifyPath(ctx, absPath))
		}
		return nil
	})

	return globals, err
}

// RunScript executes a starlark script and returns the declared options. If doConfigure is true, the script's
// configure function is called and the declared tasks are collected and returned. extra contains additional
// builtins, i.e. the document task declarations.
func RunScript(ctx context.Context, filename, projectRoot string, options map[string]string, doConfigure bool, extra starlark.StringDict) (TaskList, map[string]ScriptOption, error) {
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, nil, err
	}

	builtins := engineBuiltins()
	for name, value := range extra {
		if _, taken := builtins[name]; taken {
			return nil, nil, eris.Errorf("builtin %s is already defined", name)
		}
		builtins[name] = value
	}

	thread := &starlark.Thread{
		Name: "main",
		Print: func(thread *starlark.Thread, msg string) {
			log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	threadCtx := parserCtx{
		ctx:          ctx,
		filepath:     filename,
		projectRoot:  projectRoot,
		options:      make(map[string]ScriptOption),
		optionValues: options,
		envOverrides: make(map[string]string, 0),
		yamlCache:    make(map[string]interface{}),
		registry:     NewRegistry(),
		roots:        rootdir.New(),
		builtins:     builtins,
		including:    make(map[string]bool),
		doConfigure:  doConfigure,
		initPhase:    true,
	}

	_, err = execFile(thread, &threadCtx, filename, true)
	if err != nil {
		return nil, nil, err
	}

	err = threadCtx.roots.Check()
	if err != nil {
		return nil, nil, err
	}

	tasks := TaskList{}
	if doConfigure {
		tasks = threadCtx.registry.Tasks()
		for _, task := range tasks {
			for name, value := range threadCtx.envOverrides {
				_, present := task.Env[name]
				if !present {
					task.Env[name] = value
				}
			}
		}
	}

	return tasks, threadCtx.options, nil
}
