package main

import (
	"os"

	"git.home.luguber.info/inful/repobuilder/cmd/repobuilder/commands"
)

func main() {
	os.Exit(commands.Execute(os.Args[1:], os.Stdout))
}
