// Command aiguard validates and repairs structured AI output against
// declared contracts.
package main

import (
	"os"

	"github.com/roach88/aiguard/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
