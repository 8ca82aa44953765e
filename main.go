package main

import (
	"os"

	"github.com/swedishdeveloper/digital-twin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
