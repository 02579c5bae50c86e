package config

import (
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/dlove24/rake-latex/pkg/doctasks"
)

// DefaultFile is read from the project root unless another file is passed to Loader.
const DefaultFile = "texbuild.toml"

// DefaultWatchPatterns are watched when Watch.Patterns is empty.
var DefaultWatchPatterns = []string{"**/*.{tex,bib,sty,cls,gp,dia,graffle,dat,rnc,carp,star}"}

// Config describes all configuration options
type Config struct {
	TaskFile string `default:"tasks.star" usage:"Name of the build definition file" toml:"task_file" env:"TASK_FILE"`
	Log      struct {
		Level string `default:"info" toml:"level" env:"LEVEL"`
		JSON  bool   `default:"false" usage:"Output JSONND instead of pretty console messages" toml:"json" env:"JSON"`
	} `toml:"log" env:"LOG"`
	Tools struct {
		Graffle  string `default:"graffle.sh" usage:"OmniGraffle export script" toml:"graffle" env:"GRAFFLE"`
		Dia      string `default:"dia" toml:"dia" env:"DIA"`
		EpsToPdf string `default:"epstopdf" toml:"epstopdf" env:"EPSTOPDF"`
		Gnuplot  string `default:"gnuplot-latex-fonts" usage:"gnuplot wrapper that embeds the LaTeX fonts" toml:"gnuplot" env:"GNUPLOT"`
		Latex    string `default:"latex" toml:"latex" env:"LATEX"`
		Pdflatex string `default:"pdflatex" toml:"pdflatex" env:"PDFLATEX"`
		Bibtex   string `default:"bibtex" toml:"bibtex" env:"BIBTEX"`
		Dvips    string `default:"dvips" toml:"dvips" env:"DVIPS"`
		Vega     string `default:"vega" toml:"vega" env:"VEGA"`
	} `toml:"tools" env:"TOOLS"`
	Watch struct {
		Lull     time.Duration `default:"300ms" usage:"Time to wait for further changes before rebuilding" toml:"lull" env:"LULL"`
		Patterns []string      `usage:"Files to watch, relative to the project root" toml:"patterns" env:"PATTERNS"`
		Exclude  []string      `usage:"Files to ignore even if they match a pattern" toml:"exclude" env:"EXCLUDE"`
	} `toml:"watch" env:"WATCH"`
}

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object. Without files,
// DefaultFile is used. Missing files are ignored.
func Loader(files ...string) (*Config, *aconfig.Loader) {
	if len(files) == 0 {
		files = []string{DefaultFile}
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: "TEXBUILD",
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads the configuration from files and the environment and validates it.
func Load(files ...string) (*Config, error) {
	cfg, loader := Loader(files...)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "failed to load config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	_, ok := logLevels[cfg.Log.Level]
	if !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	if cfg.TaskFile == "" {
		return eris.New(`Invalid value for task_file: must not be empty`)
	}

	tools := map[string]string{
		"graffle":  cfg.Tools.Graffle,
		"dia":      cfg.Tools.Dia,
		"epstopdf": cfg.Tools.EpsToPdf,
		"gnuplot":  cfg.Tools.Gnuplot,
		"latex":    cfg.Tools.Latex,
		"pdflatex": cfg.Tools.Pdflatex,
		"bibtex":   cfg.Tools.Bibtex,
		"dvips":    cfg.Tools.Dvips,
		"vega":     cfg.Tools.Vega,
	}
	for name, value := range tools {
		if value == "" {
			return eris.Errorf(`Invalid value for tools.%s: must not be empty`, name)
		}
	}

	if cfg.Watch.Lull < 0 {
		return eris.Errorf(`Invalid value for watch.lull: %s`, cfg.Watch.Lull)
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// DocTools returns the configured external programs.
func (cfg *Config) DocTools() doctasks.Tools {
	return doctasks.Tools{
		Graffle:  cfg.Tools.Graffle,
		Dia:      cfg.Tools.Dia,
		EpsToPdf: cfg.Tools.EpsToPdf,
		Gnuplot:  cfg.Tools.Gnuplot,
		Latex:    cfg.Tools.Latex,
		Pdflatex: cfg.Tools.Pdflatex,
		Bibtex:   cfg.Tools.Bibtex,
		Dvips:    cfg.Tools.Dvips,
		Vega:     cfg.Tools.Vega,
	}
}

// WatchPatterns returns the configured patterns or DefaultWatchPatterns.
func (cfg *Config) WatchPatterns() []string {
	if len(cfg.Watch.Patterns) == 0 {
		return DefaultWatchPatterns
	}
	return cfg.Watch.Patterns
}
