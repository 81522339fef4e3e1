package main

import (
	"os"

	"github.com/AntonStoeckl/dynamic-entitystore-go/example/cmd/entityctl/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
