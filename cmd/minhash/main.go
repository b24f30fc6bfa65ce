package main

import (
	"os"

	"github.com/viant/sqlite-minhash/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
