package buildsys

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

type (
	runtimeCtxKey struct{}
	runtimeCtx    struct {
		runTasks    map[string]bool
		projectRoot string
		opts        RunOptions
	}
)

// RunOptions controls how RunTask executes tasks.
type RunOptions struct {
	// DryRun only logs the commands that would be executed.
	DryRun bool
	// Force runs the requested task even if it's up to date. Dependencies are still checked.
	Force bool
	// Stdout and Stderr receive the output of executed commands. They default to os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
	// OnTaskDone is called whenever a task finished, whether it had to run or not.
	OnTaskDone func(task *Task)
}

// HelperCommand is prepended to mv, rm and mkdir calls in task scripts to use a portable implementation.
// If it's empty, the commands are executed as they are.
var HelperCommand []string

func getRuntimeCtx(ctx context.Context) *runtimeCtx {
	return ctx.Value(runtimeCtxKey{}).(*runtimeCtx)
}

func getTaskEnv(task *Task) expand.Environ {
	envVars := os.Environ()

	for name, value := range task.Env {
		envVars = append(envVars, fmt.Sprintf("%s=%s", name, value))
	}

	return expand.ListEnviron(envVars...)
}

var defaultExecHandler = interp.DefaultExecHandler(2 * time.Second)

func execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 && len(HelperCommand) > 0 {
		switch args[0] {
		case "mv", "rm", "mkdir":
			// always use our cross-platform implementation for these operations to make sure
			// they behave consistently
			args = append(append([]string{}, HelperCommand...), args...)
		}
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func resolvePatternLists(ctx context.Context, base string, patterns []string) ([]string, error) {
	result := []string{}
	cfg := expand.Config{
		ReadDir:  shellReadDir,
		GlobStar: true,
	}

	parser := syntax.NewParser()
	parserCtx := &parserCtx{
		filepath:    "invalid",
		projectRoot: getRuntimeCtx(ctx).projectRoot,
	}

	for _, item := range patterns {
		item = normalizePath(parserCtx, base, item)
		item = filepath.ToSlash(item)

		words := make([]*syntax.Word, 0)
		err := parser.Words(strings.NewReader(item), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to parse pattern %s", item)
		}

		matches, err := expand.Fields(&cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to resolve pattern %s", item)
		}

		for _, match := range matches {
			// If a pattern didn't match anything, it's returned as a result. Skip those results.
			if !strings.Contains(match, "*") {
				result = append(result, match)
			}
		}
	}
	return result, nil
}

// RunTask executes the given task (a task name or a file target) after bringing its dependencies up to date
func RunTask(ctx context.Context, projectRoot, task string, tasks TaskList, opts RunOptions) error {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	rctx := runtimeCtx{
		projectRoot: projectRoot,
		runTasks:    make(map[string]bool),
		opts:        opts,
	}

	ctx = context.WithValue(ctx, runtimeCtxKey{}, &rctx)
	taskMeta, found := tasks.Lookup(task)
	if !found {
		if _, err := os.Stat(task); err == nil {
			// an existing file without a rule is trivially up to date
			return nil
		}
		return eris.Errorf("Don't know how to build %s", task)
	}

	return runTaskInternal(ctx, taskMeta, tasks, opts.Force, true)
}

func runDep(ctx context.Context, task *Task, dep string, tasks TaskList) error {
	rctx := getRuntimeCtx(ctx)
	depTask, ok := tasks.Lookup(dep)
	if !ok {
		return eris.Errorf("Task %s not found", dep)
	}

	if rctx.runTasks[depTask.Short] {
		return nil
	}

	err := runTaskInternal(ctx, depTask, tasks, false, true)
	if err != nil {
		return eris.Wrapf(err, "Task %s failed due to its dependency %s", task.Short, dep)
	}
	return nil
}

func runTaskInternal(ctx context.Context, task *Task, tasks TaskList, force, canSkip bool) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	rctx := getRuntimeCtx(ctx)
	status, ok := rctx.runTasks[task.Short]
	if ok {
		if status {
			// this task has already been run
			log(ctx).Debug().Msgf("Task %s already run", task.Short)
			return nil
		}

		return eris.Errorf("Task %s was called recursively", task.Short)
	}

	rctx.runTasks[task.Short] = false

	for _, dep := range task.Deps {
		if err := runDep(ctx, task, dep, tasks); err != nil {
			return err
		}
	}

	if task.Kind == TaskFile {
		// prerequisites with a rule of their own have to be brought up to date first
		for _, input := range task.Inputs {
			if _, ok := tasks.Lookup(input); ok {
				if err := runDep(ctx, task, input, tasks); err != nil {
					return err
				}
				continue
			}

			_, err := os.Stat(input)
			if err != nil {
				if eris.Is(err, os.ErrNotExist) {
					return eris.Errorf("Don't know how to build %s (needed by %s)", input, task.Short)
				}
				return eris.Wrapf(err, "Failed to check input %s", input)
			}
		}
	}

	var skip bool
	var err error
	if canSkip && !force {
		switch task.Kind {
		case TaskFile:
			skip, err = fileUpToDate(ctx, task)
		case TaskScript:
			skip, err = scriptUpToDate(ctx, task)
		}
		if err != nil {
			return err
		}
	}

	if !skip {
		if err = execTask(ctx, task, tasks, force); err != nil {
			return err
		}
	}

	rctx.runTasks[task.Short] = true
	if rctx.opts.OnTaskDone != nil {
		rctx.opts.OnTaskDone(task)
	}
	return nil
}

// fileUpToDate reports whether the task's output exists and is at least as new as all of its inputs.
func fileUpToDate(ctx context.Context, task *Task) (bool, error) {
	if len(task.Outputs) == 0 {
		return false, nil
	}

	target := task.Outputs[0]
	info, err := os.Stat(target)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, eris.Wrapf(err, "Failed to check output %s", target)
	}

	targetTime := info.ModTime()
	for _, input := range task.Inputs {
		inputInfo, err := os.Stat(input)
		if err != nil {
			if eris.Is(err, os.ErrNotExist) && getRuntimeCtx(ctx).opts.DryRun {
				// a dry run didn't produce this input but it would have been rebuilt
				return false, nil
			}
			return false, eris.Wrapf(err, "Failed to check input %s", input)
		}

		if inputInfo.ModTime().After(targetTime) {
			log(ctx).Debug().
				Str("task", task.Short).
				Msgf("%s is newer", input)
			return false, nil
		}
	}

	log(ctx).Debug().
		Str("task", task.Short).
		Msg("up to date")
	return true, nil
}

func scriptUpToDate(ctx context.Context, task *Task) (bool, error) {
	skipList, err := resolvePatternLists(ctx, task.Base, task.SkipIfExists)
	if err != nil {
		return false, eris.Wrapf(err, "failed to resolve skipIfExists list")
	}

	found := 0
	for _, item := range skipList {
		_, err := os.Stat(item)
		if err == nil {
			found++
		} else if !eris.Is(err, os.ErrNotExist) {
			return false, eris.Wrapf(err, "Failed to check %s", item)
		}
	}

	if found > 0 && found == len(skipList) {
		log(ctx).Info().
			Str("task", task.Short).
			Msg("skipped because all skip files exist")
		return true, nil
	}

	var newestInput time.Time
	inputList, err := resolvePatternLists(ctx, task.Base, task.Inputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve inputs")
	}

	outputList, err := resolvePatternLists(ctx, task.Base, task.Outputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve output list")
	}

	for _, item := range inputList {
		info, err := os.Stat(item)
		if err != nil {
			return false, eris.Wrapf(err, "Failed to check input %s", item)
		}

		if info.ModTime().Sub(newestInput) > 0 {
			newestInput = info.ModTime()
		}
	}

	if newestInput.IsZero() {
		return false, nil
	}

	var newestOutput time.Time
	oldestOutput := time.Now()

	for _, item := range outputList {
		info, err := os.Stat(item)
		if err != nil && !eris.Is(err, os.ErrNotExist) {
			return false, eris.Wrapf(err, "Failed to check output %s", item)
		}

		if err == nil {
			mt := info.ModTime()
			if mt.Sub(newestOutput) > 0 {
				newestOutput = mt
			}

			if oldestOutput.Sub(mt) > 0 {
				oldestOutput = mt
			}
		}
	}

	if newestOutput.Sub(oldestOutput) > 10*time.Minute {
		log(ctx).Warn().
			Str("task", task.Short).
			Msgf("oldest output is %f minutes older than the newest output", newestOutput.Sub(oldestOutput).Minutes())
	}

	if newestOutput.Sub(newestInput) > 0 {
		log(ctx).Info().
			Str("task", task.Short).
			Msgf("nothing to do (output is %f seconds newer)", newestOutput.Sub(newestInput).Seconds())
		return true, nil
	}

	return false, nil
}

func execTask(ctx context.Context, task *Task, tasks TaskList, force bool) error {
	rctx := getRuntimeCtx(ctx)
	opts := rctx.opts

	runner, err := interp.New(
		interp.Dir(task.Base),
		interp.Env(getTaskEnv(task)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, opts.Stdout, opts.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "Failed to initialize runner")
	}

	parser := syntax.NewParser()
	printer := syntax.NewPrinter(
		syntax.Minify(true),
	)
	strBuffer := strings.Builder{}
	sh := newShell(task, opts)

	for _, item := range task.Cmds {
		if action, ok := item.(TaskCmdAction); ok {
			err = action.Action(ctx, sh, task.Inputs)
			if err != nil {
				return eris.Wrapf(err, "Failed to build %s", task.Short)
			}
		} else if stmts, err := item.ToShellStmts(parser); err != nil {
			return eris.Wrap(err, "failed to parse shell script")
		} else if stmts != nil {
			for _, stm := range stmts {
				strBuffer.Reset()
				err = printer.Print(&strBuffer, stm)
				if err != nil {
					return eris.Wrap(err, "failed to print shell statement")
				}
				log(ctx).Info().
					Str("task", task.Short).
					Bool("command", true).
					Msg(strBuffer.String())

				if !opts.DryRun {
					err = runner.Run(ctx, stm)
					if err != nil {
						return eris.Wrapf(err, "command %s failed", strBuffer.String())
					}

					if runner.Exited() {
						return nil
					}
				}
			}
		} else {
			subTask, err := item.ToTask()
			if err != nil {
				return eris.Wrap(err, "failed to retrieve task ref")
			}

			if subTask == nil {
				return eris.Errorf("unexpected task command %+v", item)
			}

			err = runTaskInternal(ctx, subTask, tasks, force, true)
			if err != nil {
				return err
			}
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}
