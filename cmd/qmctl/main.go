// Command qmctl administers the document store from the shell.
package main

import (
	"os"

	"github.com/qmdoc/doccontrol/cmd/qmctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
