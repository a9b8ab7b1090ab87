package main

import (
	"fmt"
	"os"

	"amr-charts/cmd/amr-charts/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
