package main

import (
	"os"

	"github.com/superbench/sbfleet/pkg/cmd"
)

func main() {
	command := cmd.NewDefaultSbfleetCommand()

	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}
