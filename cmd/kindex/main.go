package main

import (
	"os"

	"github.com/agentscholar/kindex/cmd/kindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
