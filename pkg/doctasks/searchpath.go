package doctasks

import (
	"path/filepath"
	"strings"

	"github.com/dlove24/rake-latex/pkg/buildsys"
)

// CollectDirs returns the absolute directories of all prereqs whose extension is one of exts. The result keeps the
// order in which directories are first seen and contains no duplicates.
func CollectDirs(prereqs []string, exts ...string) []string {
	wanted := make(map[string]bool, len(exts))
	for _, ext := range exts {
		wanted[normalizeExt(ext)] = true
	}

	seen := map[string]bool{}
	dirs := []string{}
	for _, file := range prereqs {
		if !wanted[extname(file)] {
			continue
		}

		dir := filepath.Dir(file)
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}

		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	return dirs
}

// Union appends the entries of b that aren't already part of a.
func Union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	result := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, item := range list {
			if !seen[item] {
				seen[item] = true
				result = append(result, item)
			}
		}
	}
	return result
}

// SearchPath is a tool-specific environment variable listing extra directories to search, i.e. TEXINPUTS.
type SearchPath struct {
	Var  string
	Dirs []string
}

// Env returns the assignment for the variable. The tool's default search path is kept by appending the current
// value. Without any directories the variable is left alone.
func (p SearchPath) Env() []buildsys.EnvVar {
	if len(p.Dirs) == 0 {
		return nil
	}

	return []buildsys.EnvVar{{
		Name:    p.Var,
		Value:   strings.Join(p.Dirs, ":"),
		Inherit: true,
	}}
}

func (p SearchPath) String() string {
	if len(p.Dirs) == 0 {
		return ""
	}

	return p.Var + "=" + strings.Join(p.Dirs, ":") + ":${" + p.Var + "}"
}
