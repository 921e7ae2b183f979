// The main package for the tradefair-crawler executable.
package main

import (
	"os"

	"github.com/JakeFAU/tradefair-crawler/cmd"
)

// main defers all execution to the Cobra CLI and exits with its status.
func main() {
	os.Exit(cmd.Execute())
}
