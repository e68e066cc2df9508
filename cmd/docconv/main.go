package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exit exitError
		if !errors.As(err, &exit) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// exitError fails the process without printing anything more; the batch
// summary has already been shown.
type exitError struct{ failed int }

func (e exitError) Error() string { return fmt.Sprintf("%d job(s) did not succeed", e.failed) }
