package main

import (
	"os"

	"github.com/upb/card-control/cmd/card-control/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
