package main

import (
	"os"

	"github.com/fabworks/foundry/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
