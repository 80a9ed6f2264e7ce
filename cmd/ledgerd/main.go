// Package main is the entry point for the ledgerd service.
package main

import (
	"os"

	"bank_ledger/cmd/ledgerd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
