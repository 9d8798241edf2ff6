package main

import (
	"os"

	"github.com/dietchse/basic-login-ap/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
