package cmd

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/dlove24/rake-latex/pkg/dist"
)

var packCmd = &cobra.Command{
	Use:   "pack -o <archive> <target|option=value>...",
	Short: "Build the targets and pack the generated files into an archive",
	Long: `Builds the targets and writes their output files into a tar archive. A file target contributes its own file, a
group the files of its direct members. The compression depends on the archive's suffix (.tar.xz, .tar.br, .tar.gz
or .tar).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}
		if output == "" {
			return eris.New("Missing --output")
		}

		// resolve the archive path before openProject switches to the project root
		output, err = filepath.Abs(output)
		if err != nil {
			return err
		}

		skipBuild, err := cmd.Flags().GetBool("no-build")
		if err != nil {
			return err
		}

		targets, options := splitArgs(args)
		p, err := openProject(cmd, options)
		if err != nil {
			return err
		}

		if !skipBuild {
			err = p.build(targets, false)
			if err != nil {
				return err
			}
		}

		files, err := dist.Outputs(p.tasks, targets)
		if err != nil {
			return err
		}

		if p.opts.DryRun {
			for _, file := range files {
				p.logger.Info().Msgf("would pack %s", file)
			}
			return nil
		}

		var size int64
		for _, file := range files {
			info, err := os.Stat(file)
			if err != nil {
				return eris.Wrapf(err, "Failed to check %s", file)
			}
			size += info.Size()
		}

		bar := getProgressBar(size, filepath.Base(output), true)
		err = dist.Pack(output, p.root, files, bar)
		if err != nil {
			return err
		}

		p.logger.Info().Msgf("Packed %d files into %s", len(files), simplifyPath(output))
		return nil
	},
}

func init() {
	packCmd.Flags().StringP("output", "o", "", "archive to create")
	packCmd.Flags().Bool("no-build", false, "pack the files as they are")
	rootCmd.AddCommand(packCmd)
}
