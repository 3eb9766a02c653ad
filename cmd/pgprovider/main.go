// Package main is the pgprovider command line client.
package main

import (
	"fmt"
	"os"

	"github.com/Konsultn-Engineering/pgprovider/cmd/pgprovider/commands"
)

// Version is set by the build.
var Version = "dev"

func main() {
	if err := commands.NewRootCommand(Version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
