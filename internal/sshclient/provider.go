// Package sshclient runs commands and long-lived processes on managed hosts.
//
// Every operation works on its own Handle; handles are never shared between
// operations, and a launched Process owns its handle until it exits.
package sshclient

import (
	"context"

	"github.com/imyashkale/fleetctl/internal/models"
)

// Signal names a POSIX signal delivered to a remote process
type Signal string

const (
	SignalInt  Signal = "INT"
	SignalTerm Signal = "TERM"
	SignalKill Signal = "KILL"
)

// Handle is an open connection to one managed host
type Handle interface {
	// ServerID is the registry id the handle was opened for
	ServerID() string
	// Addr is the host:port the handle is connected to
	Addr() string
}

// ExecResult is the outcome of a completed remote command
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Process is a remote command whose output is streamed while it runs
type Process interface {
	// Lines delivers merged stdout/stderr one line at a time; closed after
	// the last line has been read.
	Lines() <-chan string
	// Send writes one line to the process's stdin
	Send(line string) error
	Signal(sig Signal) error
	// Done is closed once the process has exited and Lines is drained
	Done() <-chan struct{}
	// ExitCode is valid after Done; -1 when no exit status was reported
	ExitCode() int
	// Err reports a transport failure that ended the process, valid after Done
	Err() error
	Close() error
}

// Provider opens connections and runs commands on managed hosts
type Provider interface {
	Connect(ctx context.Context, cfg models.ServerConfig) (Handle, error)
	Execute(ctx context.Context, h Handle, cmd string) (*ExecResult, error)
	Launch(ctx context.Context, h Handle, cmd string) (Process, error)
	Disconnect(h Handle) error
}
