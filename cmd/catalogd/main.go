package main

import (
	"os"

	"github.com/offbit-ai/zeal-catalog/internal/cli"
)

func main() {
	if err := cli.Root().Execute(); err != nil {
		os.Exit(1)
	}
}
