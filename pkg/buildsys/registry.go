package buildsys

import (
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
)

// CleanGroup is the phony task that collects all cleanup actions.
const CleanGroup = "clean"

// Registry collects the tasks declared while build definitions are processed. Redeclaring a file or phony task
// appends prerequisites and actions to the existing one instead of replacing it.
type Registry struct {
	tasks TaskList
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(TaskList),
	}
}

// TaskKey returns the name a file target is registered under.
func TaskKey(path string) string {
	return filepath.Clean(path)
}

func (r *Registry) upsert(name string, kind TaskKind) (*Task, error) {
	task, ok := r.tasks[name]
	if ok {
		if task.Kind != kind {
			return nil, eris.Errorf("%s is already declared as a %s task, can't redeclare it as a %s task", name, task.Kind, kind)
		}
		return task, nil
	}

	task = &Task{
		Kind:  kind,
		Short: name,
		Base:  ".",
		Env:   map[string]string{},
	}
	r.tasks[name] = task
	r.order = append(r.order, name)
	return task, nil
}

// File declares that target is built from prereqs by running action. A nil action only adds prerequisites.
func (r *Registry) File(target string, prereqs []string, action Action) error {
	if target == "" {
		return eris.New("file rule without a target")
	}

	task, err := r.upsert(TaskKey(target), TaskFile)
	if err != nil {
		return err
	}

	if len(task.Outputs) == 0 {
		task.Outputs = []string{target}
		task.Hidden = true
	}
	task.Inputs = append(task.Inputs, prereqs...)
	if action != nil {
		task.Cmds = append(task.Cmds, TaskCmdAction{Action: action})
	}
	return nil
}

// Group adds members (file targets or other tasks) to the phony task name.
func (r *Registry) Group(name string, members ...string) error {
	task, err := r.upsert(name, TaskPhony)
	if err != nil {
		return err
	}

	if task.Desc == "" {
		task.Desc = "build all " + name
	}
	for _, member := range members {
		task.Deps = append(task.Deps, TaskKey(member))
	}
	return nil
}

// Phony appends an action to the phony task name.
func (r *Registry) Phony(name, desc string, action Action) error {
	task, err := r.upsert(name, TaskPhony)
	if err != nil {
		return err
	}

	if desc != "" {
		task.Desc = desc
	}
	if action != nil {
		task.Cmds = append(task.Cmds, TaskCmdAction{Action: action})
	}
	return nil
}

// Clean appends a cleanup action to the clean task.
func (r *Registry) Clean(action Action) error {
	return r.Phony(CleanGroup, "remove generated files", action)
}

// Add registers a task declared with task().
func (r *Registry) Add(task *Task) error {
	if existing, ok := r.tasks[task.Short]; ok && existing != task {
		return eris.Errorf("task %s is declared twice", task.Short)
	}

	if _, ok := r.tasks[task.Short]; !ok {
		r.order = append(r.order, task.Short)
	}
	r.tasks[task.Short] = task
	return nil
}

// Tasks returns the declared tasks.
func (r *Registry) Tasks() TaskList {
	return r.tasks
}

// Names returns the declared task names in declaration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Lookup finds a task by name or, for file targets, by path.
func (l TaskList) Lookup(name string) (*Task, bool) {
	task, ok := l[name]
	if !ok {
		task, ok = l[TaskKey(name)]
	}
	return task, ok
}

// Reachable returns name and every task it depends on, directly or through file prerequisites, sorted by name.
func (l TaskList) Reachable(name string) ([]*Task, error) {
	seen := map[string]bool{}
	var visit func(string) error
	visit = func(n string) error {
		task, ok := l.Lookup(n)
		if !ok {
			return eris.Errorf("Task %s not found", n)
		}
		if seen[task.Short] {
			return nil
		}
		seen[task.Short] = true

		for _, dep := range task.Deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		if task.Kind == TaskFile {
			for _, input := range task.Inputs {
				if _, ok := l.Lookup(input); ok {
					if err := visit(input); err != nil {
						return err
					}
				}
			}
		}

		for _, cmd := range task.Cmds {
			if ref, ok := cmd.(TaskCmdTaskRef); ok && ref.Task != nil && ref.Task.Short != "" {
				if _, ok := l[ref.Task.Short]; ok {
					if err := visit(ref.Task.Short); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}

	if err := visit(name); err != nil {
		return nil, err
	}

	result := make([]*Task, 0, len(seen))
	for n := range seen {
		result = append(result, l[n])
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Short < result[j].Short
	})
	return result, nil
}
