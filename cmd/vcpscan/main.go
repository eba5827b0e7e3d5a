package main

import (
	"os"

	"VCPScanner/cmd/vcpscan/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
