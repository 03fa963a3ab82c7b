package main

import (
	"os"

	"github.com/bcnelson/firewall-policy-manager/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
