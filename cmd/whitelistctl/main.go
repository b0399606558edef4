package main

import (
	"os"

	"whitelist/internal/cmd/whitelistctl"
)

func main() {
	if err := whitelistctl.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
