package buildsys

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Script renders the command as a single shell statement. Every argument and assignment value is quoted so
// file names can't inject shell syntax.
func (c Command) Script() (string, error) {
	if len(c.Args) == 0 {
		return "", eris.New("empty command")
	}

	parts := make([]string, 0, len(c.Env)+len(c.Args))
	for _, env := range c.Env {
		if !syntax.ValidName(env.Name) {
			return "", eris.Errorf("invalid environment variable name %q", env.Name)
		}

		value, err := syntax.Quote(env.Value, syntax.LangBash)
		if err != nil {
			return "", eris.Wrapf(err, "can't quote value of %s", env.Name)
		}

		word := env.Name + "=" + value
		if env.Inherit {
			word += ":${" + env.Name + "}"
		}
		parts = append(parts, word)
	}

	for _, arg := range c.Args {
		quoted, err := syntax.Quote(arg, syntax.LangBash)
		if err != nil {
			return "", eris.Wrapf(err, "can't quote argument %q", arg)
		}
		parts = append(parts, quoted)
	}

	return strings.Join(parts, " "), nil
}

type taskShell struct {
	task *Task
	opts RunOptions
}

func newShell(task *Task, opts RunOptions) *taskShell {
	return &taskShell{
		task: task,
		opts: opts,
	}
}

func (s *taskShell) Run(ctx context.Context, cmd Command) error {
	script, err := cmd.Script()
	if err != nil {
		return err
	}

	file, err := syntax.NewParser().Parse(strings.NewReader(script), s.task.Short)
	if err != nil {
		return eris.Wrapf(err, "failed to parse command %s", script)
	}

	dir := cmd.Dir
	if dir == "" {
		dir = "."
	}

	evt := log(ctx).Info().
		Str("task", s.task.Short).
		Bool("command", true)
	if dir != "." {
		evt = evt.Str("dir", dir)
	}
	evt.Msg(script)

	if s.opts.DryRun {
		return nil
	}

	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(getTaskEnv(s.task)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, s.opts.Stdout, s.opts.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrapf(err, "failed to initialize runner in %s", dir)
	}

	err = runner.Run(ctx, file)
	if err != nil {
		return eris.Wrapf(err, "command %s failed", script)
	}
	return nil
}

func (s *taskShell) Remove(ctx context.Context, path string) error {
	log(ctx).Info().
		Str("task", s.task.Short).
		Bool("command", true).
		Msgf("rm -f %s", path)

	if s.opts.DryRun {
		return nil
	}

	err := os.Remove(path)
	if err != nil && !eris.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "failed to remove %s", path)
	}
	return nil
}
