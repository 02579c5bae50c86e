package doctasks

import (
	"path/filepath"
	"strings"
)

// Ext replaces the extension of path's last element with ext. The leading dot of ext is optional. An empty ext
// strips the extension. Directory names and leading dots of hidden files are never treated as extensions.
func Ext(path, ext string) string {
	if path == "." || path == ".." {
		return path
	}

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return strings.TrimSuffix(path, extname(path)) + ext
}

// extname returns the extension of path's last element including the dot, or "" if there is none.
func extname(path string) string {
	base := path[strings.LastIndexAny(path, "/"+string(filepath.Separator))+1:]
	name := strings.TrimLeft(base, ".")

	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return ""
	}

	return name[idx:]
}

// jobName returns the extension-less file name that TeX and BibTeX expect on their command line.
func jobName(path string) string {
	return filepath.Base(Ext(path, ""))
}

func normalizeExt(ext string) string {
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

func withExt(paths []string, ext string) []string {
	result := make([]string, len(paths))
	for idx, path := range paths {
		result[idx] = Ext(path, ext)
	}
	return result
}

func concat(lists ...[]string) []string {
	size := 0
	for _, list := range lists {
		size += len(list)
	}

	result := make([]string, 0, size)
	for _, list := range lists {
		result = append(result, list...)
	}
	return result
}
