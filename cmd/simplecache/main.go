// Package main provides the simplecache CLI for inspecting and maintaining
// cache entries and locks on a live store.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
