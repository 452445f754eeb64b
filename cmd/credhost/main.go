package main

import (
	"os"

	"github.com/status-im/credential-host/cmd/credhost/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
