// Package main provides the CLI entry point for the Loom extension
// runtime host.
//
// # Basic Usage
//
// Run the host with a config file:
//
//	loom run --config loom.yaml
//
// Inspect loaded extensions and their tools:
//
//	loom extensions list
//	loom tools --project /path/to/project
//
// Validate an extension module without loading it into a host:
//
//	loom validate ./my-extension
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
