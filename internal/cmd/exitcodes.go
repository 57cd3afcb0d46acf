package cmd

import "github.com/fulmenhq/gofulmen/foundry"

// Exit codes, taken from the foundry catalog.
const (
	exitFailure            = 1
	exitInvalidArgument    = foundry.ExitInvalidArgument
	exitServiceUnavailable = foundry.ExitExternalServiceUnavailable
	exitSignalInt          = foundry.ExitSignalInt
	exitFileNotFound       = foundry.ExitFileNotFound
	exitFileWriteError     = foundry.ExitFileWriteError
	exitFileReadError      = foundry.ExitFileReadError
)
