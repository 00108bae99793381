// Package pipeline holds the error taxonomy and exit-code mapping shared
// by every stage command.
package pipeline

import "errors"

// Sentinel classes for the failure taxonomy. Stage code wraps causes with
// these so the CLI can map the highest-severity class seen to an exit code.
var (
	// ErrConfig: invalid JSON, missing required fields, unknown placeholder.
	// Fatal to the current command; nothing is written.
	ErrConfig = errors.New("config error")

	// ErrTransport: SSH connect/auth/read failure or unreadable local path.
	// Per-service fatal; other services continue.
	ErrTransport = errors.New("transport error")

	// ErrDecode: text unreadable after every encoding fallback. Per-file skip.
	ErrDecode = errors.New("encoding error")

	// ErrDecompile: decompiler non-zero exit or timeout. Per-artifact.
	ErrDecompile = errors.New("decompile error")

	// ErrInvariant: a post-stage consistency check failed. Fatal.
	ErrInvariant = errors.New("invariant violation")
)

// Exit codes per the CLI contract.
const (
	ExitOK        = 0
	ExitIO        = 1
	ExitConfig    = 2
	ExitTransport = 3
	ExitDecompile = 4
)

// ExitCode maps an error to the process exit code, picking the code of the
// most specific taxonomy class it wraps.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfig):
		return ExitConfig
	case errors.Is(err, ErrTransport):
		return ExitTransport
	case errors.Is(err, ErrDecompile):
		return ExitDecompile
	default:
		return ExitIO
	}
}
