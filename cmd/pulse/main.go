// Command pulse runs and checks applications built on the pulse event
// engine.
package main

import (
	"fmt"
	"os"

	"github.com/go-drift/pulse/cmd/pulse/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
