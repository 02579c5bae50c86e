package cmd

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
)

func getProgressBar(length int64, desc string, bytes bool) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	if bytes {
		return progressbar.DefaultBytes(length, desc)
	}

	return progressbar.NewOptions64(length, progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr), progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)
}

// progressBar counts the tasks that name depends on, including itself.
func (p *project) progressBar(name string) *progressbar.ProgressBar {
	tasks, err := p.tasks.Reachable(name)
	if err != nil {
		// RunTask reports unknown targets
		return progressbar.NewOptions64(0, progressbar.OptionSetVisibility(false))
	}

	return getProgressBar(int64(len(tasks)), name, false)
}
