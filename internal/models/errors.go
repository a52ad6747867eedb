package models

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound is returned when a server id is not registered
	ErrNotFound = errors.New("server not found")
	// ErrDuplicateID is returned when registering an id that already exists
	ErrDuplicateID = errors.New("server id already exists")
	// ErrInvalidConfig is returned when a server config fails validation
	ErrInvalidConfig = errors.New("invalid server config")
	// ErrInvalidArtifact is returned when a startup file is not a recognised launcher
	ErrInvalidArtifact = errors.New("invalid startup artifact")
	// ErrMissingArtifact is returned when starting a server without a validated startup file
	ErrMissingArtifact = errors.New("startup artifact not configured")
	// ErrAlreadyActive is returned when starting a server that is starting or running
	ErrAlreadyActive = errors.New("server already active")
	// ErrNotActive is returned when stopping or commanding a server that is not running
	ErrNotActive = errors.New("server not active")
	// ErrOperationInProgress is returned when another operation holds the server's slot
	ErrOperationInProgress = errors.New("operation in progress")
	// ErrServerBusy is returned when removing a server that is not stopped
	ErrServerBusy = errors.New("server busy")
	// ErrConnectionFailed is returned when the remote shell cannot be reached or authenticated
	ErrConnectionFailed = errors.New("connection failed")
	// ErrExecutionFailed is returned when the transport drops during a remote command
	ErrExecutionFailed = errors.New("execution failed")
	// ErrTimeout is wrapped alongside the transport errors when a deadline is exceeded
	ErrTimeout = errors.New("timeout")
	// ErrInvalidCommand is returned when a console command is empty or spans several lines
	ErrInvalidCommand = errors.New("invalid console command")
	// ErrStartAborted is returned by a start that was cancelled by a concurrent stop
	ErrStartAborted = errors.New("start aborted by stop request")
)

type errorCode struct {
	err    error
	code   string
	status int
}

// Order matters: timeouts wrap a transport error too and must win.
var errorCodes = []errorCode{
	{ErrNotFound, "not_found", http.StatusNotFound},
	{ErrDuplicateID, "duplicate_id", http.StatusConflict},
	{ErrInvalidConfig, "invalid_config", http.StatusBadRequest},
	{ErrInvalidArtifact, "invalid_artifact", http.StatusBadRequest},
	{ErrInvalidCommand, "invalid_command", http.StatusBadRequest},
	{ErrMissingArtifact, "missing_artifact", http.StatusPreconditionFailed},
	{ErrAlreadyActive, "already_active", http.StatusConflict},
	{ErrNotActive, "not_active", http.StatusConflict},
	{ErrOperationInProgress, "operation_in_progress", http.StatusConflict},
	{ErrServerBusy, "server_busy", http.StatusConflict},
	{ErrStartAborted, "start_aborted", http.StatusConflict},
	{ErrTimeout, "timeout", http.StatusGatewayTimeout},
	{ErrConnectionFailed, "connection_failed", http.StatusBadGateway},
	{ErrExecutionFailed, "execution_failed", http.StatusBadGateway},
}

// ErrorCode maps err onto a stable API error code and HTTP status.
// Unknown errors map to "internal_error" / 500.
func ErrorCode(err error) (string, int) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code, ec.status
		}
	}
	return "internal_error", http.StatusInternalServerError
}

// IsTransport reports whether err is a connection, execution or timeout failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrConnectionFailed) || errors.Is(err, ErrExecutionFailed) || errors.Is(err, ErrTimeout)
}
