// Package remote runs a fixed catalog of diagnostic commands on one
// long-lived remote session shared by the whole process.
package remote

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrUnknownCommand is returned for names missing from the catalog.
	ErrUnknownCommand = errors.New("unknown remote command")
	// ErrInvalidArgument is returned when an argument is rejected before it
	// reaches the session.
	ErrInvalidArgument = errors.New("invalid command argument")
	// ErrSessionClosed is returned by sessions used after Close.
	ErrSessionClosed = errors.New("remote session closed")
)

// Session is an authenticated connection to the remote host.
type Session interface {
	// Run executes one shell command and blocks until it exits. Output goes
	// to stdout and stderr. A non-zero exit status is not an error.
	Run(ctx context.Context, command string, stdout, stderr io.Writer) error

	// Ping checks that the session is still usable.
	Ping(ctx context.Context) error

	// Close releases the session.
	Close() error
}
