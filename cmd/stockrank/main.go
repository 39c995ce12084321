package main

import (
	"os"

	"github.com/quantinfo/stockrank/cmd/stockrank/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
