package main

import (
	"os"

	"devid/cmd/devid/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
