// Command admin runs maintenance tasks against the balance database.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	commander.Register(&migrateCmd{}, "database")
	commander.Register(&syncCmd{}, "exchanges")
	commander.Register(&accountsCmd{}, "exchanges")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
