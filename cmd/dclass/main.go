// Command dclass is the terminal client for collaborative class diagrams.
package main

import (
	"os"

	"dclass/interfaces/cli"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cli.Version = version
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
