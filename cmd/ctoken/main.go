package main

import (
	"os"

	"github.com/lugondev/go-ctoken/cmd/ctoken/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
