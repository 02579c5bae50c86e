package doctasks

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/dlove24/rake-latex/pkg/buildsys"
	"github.com/dlove24/rake-latex/pkg/rootdir"
)

func testCtx() context.Context {
	logger := zerolog.Nop()
	return buildsys.WithLogger(context.Background(), &logger)
}

type recordedRule struct {
	prereqs []string
	actions []buildsys.Action
}

// recordingHost keeps everything a Definer registers.
type recordingHost struct {
	rules  map[string]*recordedRule
	order  []string
	groups map[string][]string
	cleans []buildsys.Action
}

func newRecordingHost() *recordingHost {
	return &recordingHost{
		rules:  map[string]*recordedRule{},
		groups: map[string][]string{},
	}
}

func (h *recordingHost) File(target string, prereqs []string, action buildsys.Action) error {
	r, ok := h.rules[target]
	if !ok {
		r = &recordedRule{}
		h.rules[target] = r
		h.order = append(h.order, target)
	}
	r.prereqs = append(r.prereqs, prereqs...)
	if action != nil {
		r.actions = append(r.actions, action)
	}
	return nil
}

func (h *recordingHost) Group(name string, members ...string) error {
	h.groups[name] = append(h.groups[name], members...)
	return nil
}

func (h *recordingHost) Clean(action buildsys.Action) error {
	h.cleans = append(h.cleans, action)
	return nil
}

func (h *recordingHost) empty() bool {
	return len(h.rules) == 0 && len(h.groups) == 0 && len(h.cleans) == 0
}

// recordingShell records commands instead of running them.
type recordingShell struct {
	cmds    []buildsys.Command
	removed []string
	failAt  int
}

func (s *recordingShell) Run(ctx context.Context, cmd buildsys.Command) error {
	s.cmds = append(s.cmds, cmd)
	if s.failAt > 0 && len(s.cmds) == s.failAt {
		return errCommandFailed
	}
	return nil
}

func (s *recordingShell) Remove(ctx context.Context, path string) error {
	s.removed = append(s.removed, path)
	return nil
}

var errCommandFailed = eris.New("exit status 1")

// runRule executes all actions of target against a fresh recordingShell.
func runRule(t *testing.T, h *recordingHost, target string) *recordingShell {
	t.Helper()

	r, ok := h.rules[target]
	if !ok {
		t.Fatalf("no rule for %s, have %v", target, h.order)
	}

	sh := &recordingShell{}
	for _, action := range r.actions {
		if err := action(testCtx(), sh, r.prereqs); err != nil {
			t.Fatal(err)
		}
	}
	return sh
}

// runCleans executes all registered cleanup actions.
func runCleans(t *testing.T, h *recordingHost) []string {
	t.Helper()

	sh := &recordingShell{}
	for _, action := range h.cleans {
		if err := action(testCtx(), sh, nil); err != nil {
			t.Fatal(err)
		}
	}
	return sh.removed
}

// docRoots returns a stack whose current root is doc/.
func docRoots() *rootdir.Stack {
	roots := rootdir.New()
	roots.Push("doc/tasks.star")
	return roots
}

func absDir(t *testing.T, dir string) string {
	t.Helper()

	abs, err := filepath.Abs(dir)
	if err != nil {
		t.Fatal(err)
	}
	return abs
}
