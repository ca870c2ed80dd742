package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"fieldscan/internal/services"
)

// errSyncIncomplete marks a sync command whose pass did not reach the end of
// the queue. Scripts on the handheld rely on its distinct exit status.
var errSyncIncomplete = errors.New("sync incomplete")

const (
	exitFailure    = 1
	exitUsage      = 2
	exitSyncFailed = 3
	exitCanceled   = 130
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return exitCanceled
	case errors.Is(err, errSyncIncomplete):
		return exitSyncFailed
	case errors.Is(err, services.ErrValidation):
		return exitUsage
	default:
		return exitFailure
	}
}
