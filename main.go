package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess       = 0
	ExitRequestFailed = 1 // the completion request could not be completed
	ExitError         = 2 // configuration or usage error
)

// RequestFailedError reports a submission that ended in the failed phase.
type RequestFailedError struct {
	Message string
}

func (e *RequestFailedError) Error() string {
	return e.Message
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var failed *RequestFailedError
		if errors.As(err, &failed) {
			os.Exit(ExitRequestFailed)
		}
		os.Exit(ExitError)
	}
}
