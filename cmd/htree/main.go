// Command htree is the CLI entry point: it does nothing but hand off to
// cli.Execute and exit with its reported code.
package main

import (
	"os"

	"github.com/htreeio/hashtree/cli"
)

func main() {
	os.Exit(cli.Execute())
}
