package buildsys

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
	"mvdan.cc/sh/v3/syntax"
)

// TaskKind determines how the runner decides whether a task has to run.
type TaskKind int

const (
	// TaskScript tasks are declared with task() and use the inputs/outputs/skip_if_exists patterns.
	TaskScript TaskKind = iota
	// TaskFile tasks produce exactly one file and run when it's missing or older than a prerequisite.
	TaskFile
	// TaskPhony tasks have no file of their own and always run after their dependencies.
	TaskPhony
)

func (k TaskKind) String() string {
	switch k {
	case TaskScript:
		return "script"
	case TaskFile:
		return "file"
	case TaskPhony:
		return "phony"
	}
	return fmt.Sprintf("TaskKind(%d)", int(k))
}

type TaskCmdScript struct {
	TaskName string
	Content  string
	Index    int
}

func (s TaskCmdScript) ToTask() (*Task, error) {
	return nil, nil
}

func (s TaskCmdScript) ToShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error) {
	reader := strings.NewReader(s.Content)
	result, err := parser.Parse(reader, fmt.Sprintf("%s:%d", s.TaskName, s.Index))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", s.Content)
	}

	return result.Stmts, nil
}

type TaskCmdTaskRef struct {
	Task *Task
}

func (t TaskCmdTaskRef) ToTask() (*Task, error) {
	return t.Task, nil
}

func (t TaskCmdTaskRef) ToShellStmts(*syntax.Parser) ([]*syntax.Stmt, error) {
	return nil, nil
}

// TaskCmdAction runs a Go function instead of a shell script. The function gets a Shell to run commands with.
type TaskCmdAction struct {
	Action Action
}

func (a TaskCmdAction) ToTask() (*Task, error) {
	return nil, nil
}

func (a TaskCmdAction) ToShellStmts(*syntax.Parser) ([]*syntax.Stmt, error) {
	return nil, nil
}

type TaskCmd interface {
	ToTask() (*Task, error)
	ToShellStmts(*syntax.Parser) ([]*syntax.Stmt, error)
}

// Task contains the processed values passed to task() by the task script or registered through a Registry
type Task struct {
	Kind         TaskKind
	Env          map[string]string
	Short        string
	Desc         string
	Base         string
	Inputs       []string
	Deps         []string
	SkipIfExists []string
	Outputs      []string
	Cmds         []TaskCmd
	Hidden       bool
}

// TaskList maps short names to each relevant task
type TaskList map[string]*Task

// EnvVar is an assignment placed in front of a command. With Inherit set, the variable's current value is
// appended after a colon, i.e. NAME=value:${NAME}.
type EnvVar struct {
	Name    string
	Value   string
	Inherit bool
}

// Command describes a single invocation of an external program. Args are passed as is; nothing in them is
// interpreted by the shell.
type Command struct {
	Dir  string
	Env  []EnvVar
	Args []string
}

func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// Shell executes commands on behalf of an Action.
type Shell interface {
	// Run executes cmd and returns an error if it couldn't be started or exited with a non-zero status.
	Run(ctx context.Context, cmd Command) error
	// Remove deletes path. Missing files are not an error.
	Remove(ctx context.Context, path string) error
}

// Action is the Go equivalent of a task's command list. prereqs are the task's inputs as declared.
type Action func(ctx context.Context, sh Shell, prereqs []string) error

type ScriptOption struct {
	DefaultValue starlark.String
	Help         string
}

func (o ScriptOption) Default() string {
	return o.DefaultValue.GoString()
}

// Implement starlark.Value for *Task

// String returns a string representation of the task
func (t *Task) String() string {
	return fmt.Sprintf("<Task %s: %s>", t.Short, t.Desc)
}

// Type always returns "task" to indicate this type
func (t *Task) Type() string {
	return "task"
}

// Freeze doesn't do anything since tasks are immutable anyway
func (t *Task) Freeze() {}

// Truth always returns true since a task can't be nil or None
func (t *Task) Truth() starlark.Bool {
	return starlark.True
}

// Hash always returns an error since task is not hashable
func (t *Task) Hash() (uint32, error) {
	return 0, eris.New("task is not a hashable type")
}

type StarlarkPath string

func (p StarlarkPath) String() string {
	return starlark.String(p).String()
}

func (p StarlarkPath) Type() string {
	return "path"
}

func (p StarlarkPath) Freeze() {}

func (p StarlarkPath) Truth() starlark.Bool {
	return p != ""
}

func (p StarlarkPath) Hash() (uint32, error) {
	return starlark.String(p).Hash()
}

func (p StarlarkPath) CompareSameType(op starsyntax.Token, y_ starlark.Value, depth int) (bool, error) {
	y := y_.(StarlarkPath)

	switch op {
	case starsyntax.EQL:
		return p == y, nil
	case starsyntax.NEQ:
		return p != y, nil
	case starsyntax.LT:
		return p < y, nil
	case starsyntax.LE:
		return p <= y, nil
	case starsyntax.GT:
		return p > y, nil
	case starsyntax.GE:
		return p >= y, nil
	}

	return false, eris.Errorf("unknown operator %v", op)
}

func (p StarlarkPath) Index(i int) starlark.Value {
	return starlark.String(p[i])
}

func (p StarlarkPath) Len() int {
	return len(p)
}

func (p StarlarkPath) Slice(start, end, step int) starlark.Value {
	return starlark.String(p).Slice(start, end, step)
}
