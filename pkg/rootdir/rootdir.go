// Package rootdir tracks the directory of the build definition file that is currently being processed.
//
// Build definitions refer to their sources relative to the file they are declared in. When one definition file
// includes another, the included file's directory has to be pushed before it is evaluated and popped once it
// is done so that control returns to the including file's root.
package rootdir

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Default is returned by Current when no file has been pushed.
const Default = "./"

// ErrUnbalanced is returned when pushes and pops don't match up.
var ErrUnbalanced = eris.New("unbalanced root directory stack")

// Stack is an ordered list of root directories. The zero value is an empty stack.
type Stack struct {
	dirs []string
}

// New returns an empty stack.
func New() *Stack {
	return &Stack{}
}

// Push records the directory containing file (with a trailing slash) as the new current root.
func (s *Stack) Push(file string) {
	dir := filepath.ToSlash(filepath.Dir(file))
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}

	s.dirs = append(s.dirs, dir)
}

// Pop removes the current root.
func (s *Stack) Pop() error {
	if len(s.dirs) == 0 {
		return ErrUnbalanced
	}

	s.dirs = s.dirs[:len(s.dirs)-1]
	return nil
}

// Current returns the current root or Default if the stack is empty.
func (s *Stack) Current() string {
	if len(s.dirs) == 0 {
		return Default
	}

	return s.dirs[len(s.dirs)-1]
}

// Depth returns the number of pushed roots.
func (s *Stack) Depth() int {
	return len(s.dirs)
}

// Check fails if any root is still pushed.
func (s *Stack) Check() error {
	if len(s.dirs) != 0 {
		return eris.Wrapf(ErrUnbalanced, "%d root(s) still pushed, top is %s", len(s.dirs), s.Current())
	}

	return nil
}

// Resolve prefixes a relative path with the current root. Absolute paths are returned as is.
func (s *Stack) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return s.Current() + path
}

// Within pushes file, calls fn and pops again. The pop happens on every exit path, including panics.
// If fn left the stack deeper than it found it, ErrUnbalanced is returned.
func (s *Stack) Within(file string, fn func() error) (err error) {
	depth := len(s.dirs)
	s.Push(file)

	defer func() {
		if len(s.dirs) != depth+1 {
			// fn pushed or popped without cleaning up; restore our view of the stack
			if len(s.dirs) > depth {
				s.dirs = s.dirs[:depth]
			}
			if err == nil {
				err = eris.Wrapf(ErrUnbalanced, "while processing %s", file)
			}
			return
		}

		s.dirs = s.dirs[:depth]
	}()

	return fn()
}
