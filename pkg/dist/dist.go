// Package dist writes the generated documents of a project into a compressed tar archive.
package dist

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"

	"github.com/dlove24/rake-latex/pkg/buildsys"
)

type compressor func(io.Writer) (io.WriteCloser, error)

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// Formats lists the supported archive suffixes.
var Formats = []string{".tar.xz", ".tar.br", ".tar.gz", ".tar"}

func getCompressor(filename string) (compressor, error) {
	if strings.HasSuffix(filename, ".tar.xz") {
		return func(w io.Writer) (io.WriteCloser, error) {
			return xz.NewWriter(w)
		}, nil
	}

	if strings.HasSuffix(filename, ".tar.br") {
		return func(w io.Writer) (io.WriteCloser, error) {
			return brotli.NewWriterLevel(w, brotli.BestCompression), nil
		}, nil
	}

	if strings.HasSuffix(filename, ".tar.gz") || strings.HasSuffix(filename, ".tgz") {
		return func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriterLevel(w, gzip.BestCompression)
		}, nil
	}

	if strings.HasSuffix(filename, ".tar") {
		return func(w io.Writer) (io.WriteCloser, error) {
			return nopCloser{w}, nil
		}, nil
	}

	return nil, eris.Errorf("Archive format not supported: %s (use one of %s)", filepath.Base(filename), strings.Join(Formats, ", "))
}

// Writer writes a tar archive. The compression is picked based on the file name.
type Writer struct {
	hdl    *os.File
	comp   io.WriteCloser
	tw     *tar.Writer
	root   string
	bar    *progressbar.ProgressBar
	buffer []byte
}

// NewWriter creates filename. Files added later on are stored relative to root. bar may be nil.
func NewWriter(filename, root string, bar *progressbar.ProgressBar) (*Writer, error) {
	newComp, err := getCompressor(filename)
	if err != nil {
		return nil, err
	}

	root, err = filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	hdl, err := os.Create(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to create %s", filename)
	}

	comp, err := newComp(hdl)
	if err != nil {
		hdl.Close()
		return nil, eris.Wrapf(err, "Failed to initialize compression for %s", filename)
	}

	if bar == nil {
		bar = progressbar.NewOptions64(-1, progressbar.OptionSetVisibility(false))
	}

	return &Writer{
		hdl:    hdl,
		comp:   comp,
		tw:     tar.NewWriter(comp),
		root:   root,
		bar:    bar,
		buffer: make([]byte, 4096),
	}, nil
}

// AddFile stores the file at path. It has to be inside the root.
func (w *Writer) AddFile(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	name, err := filepath.Rel(w.root, absPath)
	if err != nil || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
		return eris.Errorf("%s is outside of %s", path, w.root)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return eris.Wrapf(err, "Failed to open %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return eris.Wrapf(err, "Failed to stat %s", path)
	}
	if !info.Mode().IsRegular() {
		return eris.Errorf("%s is not a regular file", path)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return eris.Wrapf(err, "Failed to build header for %s", path)
	}
	hdr.Name = filepath.ToSlash(name)

	err = w.tw.WriteHeader(hdr)
	if err != nil {
		return eris.Wrapf(err, "Failed to write header for %s", path)
	}

	_, err = io.CopyBuffer(io.MultiWriter(w.tw, w.bar), f, w.buffer)
	if err != nil {
		return eris.Wrapf(err, "Failed to write %s", path)
	}

	return nil
}

// Close finishes the archive and closes the file.
func (w *Writer) Close() error {
	err := w.tw.Close()
	if err != nil {
		w.hdl.Close()
		return eris.Wrap(err, "Failed to finish tar stream")
	}

	err = w.comp.Close()
	if err != nil {
		w.hdl.Close()
		return eris.Wrap(err, "Failed to finish compression")
	}

	return w.hdl.Close()
}

// Pack writes files into the archive filename.
func Pack(filename, root string, files []string, bar *progressbar.ProgressBar) error {
	w, err := NewWriter(filename, root, bar)
	if err != nil {
		return err
	}

	for _, file := range files {
		err = w.AddFile(file)
		if err != nil {
			w.Close()
			return err
		}
	}

	return w.Close()
}

// Outputs returns the files produced by targets. A file target contributes its own file, a group the files of
// its direct file members. The result is sorted and contains no duplicates.
func Outputs(tasks buildsys.TaskList, targets []string) ([]string, error) {
	seen := map[string]bool{}
	add := func(task *buildsys.Task) {
		for _, output := range task.Outputs {
			seen[output] = true
		}
	}

	for _, target := range targets {
		task, ok := tasks.Lookup(target)
		if !ok {
			return nil, eris.Errorf("Task %s not found", target)
		}

		switch task.Kind {
		case buildsys.TaskFile:
			add(task)
		case buildsys.TaskPhony:
			for _, dep := range task.Deps {
				member, ok := tasks.Lookup(dep)
				if ok && member.Kind == buildsys.TaskFile {
					add(member)
				}
			}
		default:
			return nil, eris.Errorf("%s is a script task and has no known outputs", target)
		}
	}

	if len(seen) == 0 {
		return nil, eris.New("No files to pack")
	}

	result := make([]string, 0, len(seen))
	for file := range seen {
		result = append(result, file)
	}
	sort.Strings(result)
	return result, nil
}
