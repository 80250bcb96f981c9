package main

import (
	"os"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
