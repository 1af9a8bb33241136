package main

import (
	"os"

	"github.com/villain-cms/villain/cmd/villain/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
