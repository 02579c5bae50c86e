package cmd

import (
	"path/filepath"
	"strings"

	"github.com/cortesi/moddwatch"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <target|option=value>...",
	Short: "Build the targets and rebuild them whenever a source changes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, options := splitArgs(args)
		if len(targets) == 0 {
			return eris.New("No targets to watch")
		}

		p, err := openProject(cmd, options)
		if err != nil {
			return err
		}

		excludes, err := cmd.Flags().GetStringSlice("exclude")
		if err != nil {
			return err
		}
		excludes = append(excludes, p.cfg.Watch.Exclude...)

		p.rebuild(targets)

		ch := make(chan *moddwatch.Mod, 1)
		watcher, err := moddwatch.Watch(p.root, p.cfg.WatchPatterns(), excludes, p.cfg.Watch.Lull, ch)
		if err != nil {
			return eris.Wrapf(err, "Failed to watch %s", p.root)
		}
		defer watcher.Stop()

		p.logger.Info().Msgf("Watching %s", strings.Join(p.cfg.WatchPatterns(), " "))
		for {
			select {
			case <-p.ctx.Done():
				return nil
			case mod, ok := <-ch:
				if !ok {
					return nil
				}
				if mod == nil || mod.Empty() {
					continue
				}

				changed := mod.All()
				p.logger.Info().Msgf("Changed: %s", strings.Join(changed, " "))

				if touchesDefinitions(changed) {
					err = p.reload()
					if err != nil {
						p.logger.Error().Err(err).Msg("Keeping the previous tasks")
					}
				}

				p.rebuild(targets)
			}
		}
	},
}

// rebuild builds the targets and logs failures instead of returning them.
func (p *project) rebuild(targets []string) {
	err := p.build(targets, false)
	if err != nil {
		p.logger.Error().Err(err).Msg("Build failed")
		return
	}

	p.logger.Info().Msg("Up to date")
}

func touchesDefinitions(files []string) bool {
	for _, file := range files {
		if filepath.Ext(file) == ".star" {
			return true
		}
	}
	return false
}

func init() {
	watchCmd.Flags().StringSlice("exclude", nil, "patterns to ignore in addition to watch.exclude")
	rootCmd.AddCommand(watchCmd)
}
