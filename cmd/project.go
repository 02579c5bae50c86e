package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dlove24/rake-latex/pkg/buildsys"
	"github.com/dlove24/rake-latex/pkg/config"
	"github.com/dlove24/rake-latex/pkg/doctasks"
)

// project is a loaded build definition. The process runs inside root so that targets and the paths in the
// definition files are relative to it.
type project struct {
	ctx      context.Context
	logger   *zerolog.Logger
	cfg      *config.Config
	root     string
	taskFile string
	options  map[string]string
	tasks    buildsys.TaskList
	opts     buildsys.RunOptions
}

func newLogger(cfg *config.Config) zerolog.Logger {
	setupErrorMarshal()

	if cfg != nil && cfg.Log.JSON {
		return zerolog.New(os.Stderr).With().Timestamp().Logger().Level(cfg.LogLevel())
	}

	logger := zerolog.New(NewConsoleWriter(os.Stderr))
	if cfg != nil {
		logger = logger.Level(cfg.LogLevel())
	}
	return logger
}

// splitArgs separates targets from option assignments (name=value).
func splitArgs(args []string) ([]string, map[string]string) {
	targets := make([]string, 0)
	options := make(map[string]string)

	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > -1 {
			options[part[:pos]] = part[pos+1:]
		} else {
			targets = append(targets, part)
		}
	}
	return targets, options
}

// findProject searches the working directory and its parents for the build definition file. If configFile
// is empty, each candidate directory's texbuild.toml is consulted for the file name.
func findProject(configFile string) (string, *config.Config, error) {
	var fixed *config.Config
	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return "", nil, err
		}
		fixed = cfg
	}

	path, err := os.Getwd()
	if err != nil {
		return "", nil, eris.Wrap(err, "Failed to retrieve the current working directory")
	}

	for {
		cfg := fixed
		if cfg == nil {
			cfg, err = config.Load(filepath.Join(path, config.DefaultFile))
			if err != nil {
				return "", nil, err
			}
		}

		taskPath := filepath.Join(path, cfg.TaskFile)
		_, err = os.Stat(taskPath)
		if err == nil {
			return path, cfg, nil
		}
		if !eris.Is(err, os.ErrNotExist) {
			return "", nil, eris.Wrapf(err, "Failed to check %s", taskPath)
		}

		parent := filepath.Dir(path)
		if parent == path {
			return "", nil, eris.Errorf("No %s file found", cfg.TaskFile)
		}

		path = parent
	}
}

// openProject finds and loads the build definition and switches to its directory.
func openProject(cmd *cobra.Command, options map[string]string) (*project, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if configFile != "" {
		configFile, err = filepath.Abs(configFile)
		if err != nil {
			return nil, err
		}
	}

	dryRun, err := cmd.Flags().GetBool("dry")
	if err != nil {
		return nil, err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return nil, err
	}

	root, cfg, err := findProject(configFile)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg)
	ctx := buildsys.WithLogger(cmd.Context(), &logger)

	wd, err := os.Getwd()
	if err == nil && wd != root {
		logger.Info().Msgf("Entering directory %s", root)
	}
	err = os.Chdir(root)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to switch to %s", root)
	}

	if exe, err := os.Executable(); err == nil {
		buildsys.HelperCommand = []string{exe, "posix"}
	}

	p := &project{
		ctx:      ctx,
		logger:   &logger,
		cfg:      cfg,
		root:     root,
		taskFile: cfg.TaskFile,
		options:  options,
		opts: buildsys.RunOptions{
			DryRun: dryRun,
			Force:  force,
		},
	}

	err = p.reload()
	if err != nil {
		return nil, err
	}
	return p, nil
}

// reload evaluates the build definition again.
func (p *project) reload() error {
	tasks, _, err := buildsys.RunScript(p.ctx, p.taskFile, p.root, p.options, true, doctasks.Builtins(p.cfg.DocTools()))
	if err != nil {
		return eris.Wrap(err, "Failed to parse tasks")
	}

	p.tasks = tasks
	return nil
}

// build brings all targets up to date, one after the other.
func (p *project) build(targets []string, showProgress bool) error {
	for _, name := range targets {
		opts := p.opts
		if showProgress {
			bar := p.progressBar(name)

			opts.OnTaskDone = func(*buildsys.Task) {
				bar.Add(1)
			}
		}

		err := buildsys.RunTask(p.ctx, ".", name, p.tasks, opts)
		if err != nil {
			return eris.Wrapf(err, "Failed task %s", name)
		}
	}
	return nil
}
