package models

// CreateServerRequest represents the request body for adding a server
type CreateServerRequest struct {
	Id            string   `json:"id"` // generated server-side when empty
	Name          string   `json:"name" binding:"required"`
	Type          string   `json:"type" binding:"required"`
	Host          string   `json:"host" binding:"required"`
	Port          int      `json:"port"`
	Username      string   `json:"username"`
	CredentialRef string   `json:"credential_ref"`
	RemotePath    string   `json:"remote_path"`
	MinMemory     string   `json:"min_memory"`
	MaxMemory     string   `json:"max_memory"`
	JVMArgs       []string `json:"jvm_args"`
	StartupFile   string   `json:"startup_file"`
}

// ToDomain converts CreateServerRequest DTO to the domain ServerConfig model
func (req *CreateServerRequest) ToDomain() ServerConfig {
	cfg := ServerConfig{
		ID:            req.Id,
		Name:          req.Name,
		Type:          ServerType(req.Type),
		Host:          req.Host,
		Port:          req.Port,
		Username:      req.Username,
		CredentialRef: req.CredentialRef,
		RemotePath:    req.RemotePath,
		MinMemory:     req.MinMemory,
		MaxMemory:     req.MaxMemory,
		JVMArgs:       req.JVMArgs,
	}
	cfg.Normalize()
	return cfg
}

// UpdateServerRequest represents the request body for a partial server update
type UpdateServerRequest struct {
	Name          *string  `json:"name"`
	Type          *string  `json:"type"`
	Host          *string  `json:"host"`
	Port          *int     `json:"port"`
	Username      *string  `json:"username"`
	CredentialRef *string  `json:"credential_ref"`
	RemotePath    *string  `json:"remote_path"`
	MinMemory     *string  `json:"min_memory"`
	MaxMemory     *string  `json:"max_memory"`
	JVMArgs       []string `json:"jvm_args"`
}

// ToDomain converts UpdateServerRequest DTO to a ServerPatch
func (req *UpdateServerRequest) ToDomain() ServerPatch {
	patch := ServerPatch{
		Name:          req.Name,
		Host:          req.Host,
		Port:          req.Port,
		Username:      req.Username,
		CredentialRef: req.CredentialRef,
		RemotePath:    req.RemotePath,
		MinMemory:     req.MinMemory,
		MaxMemory:     req.MaxMemory,
		JVMArgs:       req.JVMArgs,
	}
	if req.Type != nil {
		t := ServerType(*req.Type)
		patch.Type = &t
	}
	return patch
}

// SetStartupFileRequest represents the request body for selecting a startup file
type SetStartupFileRequest struct {
	StartupFile string `json:"startup_file" binding:"required"`
}

// SendCommandRequest represents the request body for a console command
type SendCommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// ServerResponse represents the response structure for a single server config
type ServerResponse struct {
	Id            string     `json:"id"`
	Name          string     `json:"name"`
	Type          ServerType `json:"type"`
	Host          string     `json:"host"`
	Port          int        `json:"port"`
	Username      string     `json:"username"`
	CredentialRef string     `json:"credential_ref,omitempty"`
	RemotePath    string     `json:"remote_path"`
	MinMemory     string     `json:"min_memory,omitempty"`
	MaxMemory     string     `json:"max_memory,omitempty"`
	JVMArgs       []string   `json:"jvm_args,omitempty"`
	StartupFile   string     `json:"startup_file,omitempty"`
}

// ToResponse converts a registry entry to a ServerResponse DTO
func (e *ServerEntry) ToResponse() ServerResponse {
	return ServerResponse{
		Id:            e.Config.ID,
		Name:          e.Config.Name,
		Type:          e.Config.Type,
		Host:          e.Config.Host,
		Port:          e.Config.SSHPort(),
		Username:      e.Config.Username,
		CredentialRef: e.Config.CredentialRef,
		RemotePath:    e.Config.RemotePath,
		MinMemory:     e.Config.MinMemory,
		MaxMemory:     e.Config.MaxMemory,
		JVMArgs:       e.Config.JVMArgs,
		StartupFile:   e.Artifact.SelectedPath,
	}
}

// ServerListResponse represents the response structure for listing servers
type ServerListResponse struct {
	Servers []ServerSummary `json:"servers"`
	Total   int             `json:"total"`
}

// FileListResponse represents the response structure for a directory listing
type FileListResponse struct {
	Path  string      `json:"path"`
	Files []FileEntry `json:"files"`
}

// ConsoleResponse represents a console buffer snapshot
type ConsoleResponse struct {
	ServerId string   `json:"server_id"`
	Lines    []string `json:"lines"`
	Capacity int      `json:"capacity"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
