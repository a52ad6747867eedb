package models

// Status is the runtime state of a managed server
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// Active reports whether the server is running or moving between states.
func (s Status) Active() bool {
	return s == StatusStarting || s == StatusRunning || s == StatusStopping
}

// Removable reports whether a server in this state may be deleted.
func (s Status) Removable() bool {
	return s == StatusStopped || s == StatusError
}

// RuntimeState is a consistent snapshot of a server's runtime status
type RuntimeState struct {
	Status    Status
	LastError string
}

// StartResult is returned by a successful start
type StartResult struct {
	StartupFile string `json:"startup_file"`
	Command     string `json:"command"`
}

// ServerSummary is one row of the server listing
type ServerSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        ServerType `json:"type"`
	Status      Status     `json:"status"`
	StartupFile string     `json:"startup_file,omitempty"`
	CanStart    bool       `json:"can_start"`
}

// ServerStatus is the detailed status of one server
type ServerStatus struct {
	ID          string `json:"id"`
	Status      Status `json:"status"`
	LastError   string `json:"last_error,omitempty"`
	StartupFile string `json:"startup_file,omitempty"`
	CanStart    bool   `json:"can_start"`
	ConsoleSize int    `json:"console_lines"`
}
