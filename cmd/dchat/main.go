package main

import (
	"os"

	"github.com/charadev96/dchat/cmd/dchat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
