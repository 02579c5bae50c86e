package main

import "github.com/dlove24/rake-latex/cmd"

func main() {
	cmd.Execute()
}
