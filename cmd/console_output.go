package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// debugEnv enables eris stack traces and dumps all event fields.
const debugEnv = "TEXBUILD_DEBUG"

// ConsoleWriter renders zerolog events as short coloured lines. Events of executed commands are prefixed with $.
type ConsoleWriter struct {
	out    io.Writer
	buffer strings.Builder
	lock   sync.Mutex
}

func NewConsoleWriter(out io.Writer) *ConsoleWriter {
	return &ConsoleWriter{out: out}
}

func (w *ConsoleWriter) Write(p []byte) (n int, err error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	err = d.Decode(&evt)
	if err != nil {
		return n, eris.Wrapf(err, "cannot decode event: %s", p)
	}

	w.buffer.Reset()
	switch evt["level"] {
	case "fatal", "error":
		w.buffer.WriteString("[red]")
	case "warn":
		w.buffer.WriteString("[yellow]")
	case "debug", "trace":
		w.buffer.WriteString("[blue]")
	default:
		w.buffer.WriteString("[green]")
	}

	if task, ok := evt["task"].(string); ok {
		w.buffer.WriteString(simplifyPath(task) + ": ")
	}

	if evt["level"] == "error" || evt["level"] == "fatal" {
		w.buffer.WriteString("Error: ")
	}

	msg, _ := evt["message"].(string)
	if isCmd, _ := evt["command"].(bool); isCmd {
		w.buffer.WriteString("[reset]")
		if dir, ok := evt["dir"].(string); ok {
			msg = "(cd " + simplifyPath(dir) + ") " + msg
		}
		msg = "$ " + msg
	}

	// only the prefix goes through colorstring, brackets in messages aren't colour codes
	line := colors.Color(w.buffer.String()) + msg

	if errorDetails, ok := evt["error"].(string); ok {
		line += "\n" + errorDetails
	}

	if os.Getenv(debugEnv) != "" {
		names := make([]string, 0, len(evt))
		for name := range evt {
			names = append(names, name)
		}
		sort.Strings(names)

		line += "\n"
		for _, name := range names {
			line += fmt.Sprintf("  %s: %+v\n", name, evt[name])
		}
	}

	_, err = fmt.Fprint(w.out, line+colors.Color("[reset]")+"\n")
	return len(p), err
}

var colors = colorstring.Colorize{
	Colors: colorstring.DefaultColors,
}

// simplifyPath shortens absolute paths inside the working directory.
func simplifyPath(path string) string {
	if !filepath.IsAbs(path) {
		return path
	}

	wd, err := os.Getwd()
	if err != nil {
		return path
	}

	rel, err := filepath.Rel(wd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func setupErrorMarshal() {
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		return eris.ToString(err, os.Getenv(debugEnv) != "")
	}
}
