package main

import (
	"os"

	"github.com/argus-labs/denseset/cmd/densetool/cmd"
	"github.com/argus-labs/denseset/pkg/engine"
)

func main() {
	if err := cmd.NewRootCmd(engine.Options{}).Execute(); err != nil {
		os.Exit(1)
	}
}
