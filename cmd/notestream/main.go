// Command notestream projects entity mutations into activity notes and
// serves per-user and per-entity streams from a SQLite database.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/notestream/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
