// Command lorelens is the entry point for the lorelens dialogue server and
// its offline tools.
package main

import (
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lorelens: %v\n", err)
		os.Exit(1)
	}
}
