package main

import (
	"os"

	"github.com/rkulagin/autolot/cmd/autolot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
