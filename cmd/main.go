package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dlove24/rake-latex/pkg/buildsys"
)

var rootCmd = &cobra.Command{
	Use:   "texbuild [flags] [target|option=value ...]",
	Short: "Build LaTeX documents and their figures",
	Long:  `This command parses the first tasks.star file it finds in the current directory or one of its parents
and builds the given targets. Targets are file paths (i.e. paper.pdf) or groups (figures, pdf, clean, ...).
Without targets, the available tasks are listed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, options := splitArgs(args)

		p, err := openProject(cmd, options)
		if err != nil {
			return err
		}

		if len(targets) == 0 {
			listTasks(p.tasks)
			return nil
		}

		showProgress, err := cmd.Flags().GetBool("progress")
		if err != nil {
			return err
		}

		return p.build(targets, showProgress)
	},
}

func listTasks(taskList buildsys.TaskList) {
	fmt.Println("Available tasks:")
	maxNameLen := 0
	sortedNames := make([]string, 0)
	for name, task := range taskList {
		if task.Hidden {
			continue
		}

		nameLen := len(name)
		if nameLen > maxNameLen {
			maxNameLen = nameLen
		}

		sortedNames = append(sortedNames, name)
	}

	sort.Strings(sortedNames)

	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, name := range sortedNames {
		fmt.Printf(lineFmt, name+":", taskList[name].Desc)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "configuration file (default: texbuild.toml next to tasks.star)")
	rootCmd.PersistentFlags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	rootCmd.PersistentFlags().BoolP("force", "f", false, "force build; always execute the passed steps even if they don't have to run")
	rootCmd.Flags().Bool("progress", false, "show a progress bar for each target")
}

// Execute runs the CLI. Errors are logged and end the process with a non-zero exit code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logger := newLogger(nil)
		logger.Error().Err(err).Msg("texbuild failed")
		stop()
		os.Exit(1)
	}
}
