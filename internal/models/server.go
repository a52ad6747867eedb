package models

import (
	"path"
	"strings"
	"time"
)

// ServerType selects the launch template and console conventions of a server
type ServerType string

const (
	TypeVelocity   ServerType = "velocity"
	TypeBungeeCord ServerType = "bungeecord"
	TypePaper      ServerType = "paper"
	TypeSpigot     ServerType = "spigot"
	TypeFabric     ServerType = "fabric"
	TypeForge      ServerType = "forge"
	TypeVanilla    ServerType = "vanilla"
	TypeGeneric    ServerType = "generic"
)

// KnownServerTypes lists every type with a dedicated launch template.
var KnownServerTypes = []ServerType{
	TypeVelocity, TypeBungeeCord, TypePaper, TypeSpigot, TypeFabric, TypeForge, TypeVanilla, TypeGeneric,
}

// Known reports whether t has a dedicated launch template.
func (t ServerType) Known() bool {
	for _, k := range KnownServerTypes {
		if t == k {
			return true
		}
	}
	return false
}

// IsProxy reports whether t is a proxy flavour (no world, different console verbs).
func (t ServerType) IsProxy() bool {
	return t == TypeVelocity || t == TypeBungeeCord
}

// DefaultSSHPort is used when a server config carries no port
const DefaultSSHPort = 22

// ServerConfig represents the domain model for a managed remote server.
// The registry owns it; ID is immutable once registered.
type ServerConfig struct {
	ID            string     `yaml:"id"`
	Name          string     `yaml:"name"`
	Type          ServerType `yaml:"type"`
	Host          string     `yaml:"host"`
	Port          int        `yaml:"port"`
	Username      string     `yaml:"username"`
	CredentialRef string     `yaml:"credential_ref"` // e.g. "key:id_ed25519" or "env:S1_PASSWORD"
	RemotePath    string     `yaml:"remote_path"`

	// Launch options handed to the command builder
	MinMemory string   `yaml:"min_memory"`
	MaxMemory string   `yaml:"max_memory"`
	JVMArgs   []string `yaml:"jvm_args"`
}

// SSHPort returns the configured port or the SSH default.
func (c ServerConfig) SSHPort() int {
	if c.Port > 0 {
		return c.Port
	}
	return DefaultSSHPort
}

// Clone returns a deep copy safe to hand out of the registry.
func (c ServerConfig) Clone() ServerConfig {
	out := c
	if c.JVMArgs != nil {
		out.JVMArgs = append([]string(nil), c.JVMArgs...)
	}
	return out
}

// Normalize trims user supplied string fields in place.
func (c *ServerConfig) Normalize() {
	c.ID = strings.TrimSpace(c.ID)
	c.Name = strings.TrimSpace(c.Name)
	c.Type = ServerType(strings.ToLower(strings.TrimSpace(string(c.Type))))
	c.Host = strings.TrimSpace(c.Host)
	c.Username = strings.TrimSpace(c.Username)
	c.CredentialRef = strings.TrimSpace(c.CredentialRef)
	c.RemotePath = strings.TrimSpace(c.RemotePath)
	c.MinMemory = strings.TrimSpace(c.MinMemory)
	c.MaxMemory = strings.TrimSpace(c.MaxMemory)
}

// ServerPatch carries a partial update; nil fields are left untouched.
type ServerPatch struct {
	Name          *string
	Type          *ServerType
	Host          *string
	Port          *int
	Username      *string
	CredentialRef *string
	RemotePath    *string
	MinMemory     *string
	MaxMemory     *string
	JVMArgs       []string
}

// Apply returns a copy of c with the patch applied.
func (p ServerPatch) Apply(c ServerConfig) ServerConfig {
	out := c.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.Host != nil {
		out.Host = *p.Host
	}
	if p.Port != nil {
		out.Port = *p.Port
	}
	if p.Username != nil {
		out.Username = *p.Username
	}
	if p.CredentialRef != nil {
		out.CredentialRef = *p.CredentialRef
	}
	if p.RemotePath != nil {
		out.RemotePath = *p.RemotePath
	}
	if p.MinMemory != nil {
		out.MinMemory = *p.MinMemory
	}
	if p.MaxMemory != nil {
		out.MaxMemory = *p.MaxMemory
	}
	if p.JVMArgs != nil {
		out.JVMArgs = append([]string(nil), p.JVMArgs...)
	}
	out.Normalize()
	return out
}

// StartupArtifact is the launcher file selected for a server
type StartupArtifact struct {
	SelectedPath string
	Validated    bool
	UpdatedAt    time.Time
}

// Present reports whether a path has been selected.
func (a StartupArtifact) Present() bool {
	return a.SelectedPath != ""
}

// Ready reports whether the artifact satisfies the start precondition.
func (a StartupArtifact) Ready() bool {
	return a.Present() && a.Validated
}

// ArtifactExtensions is the launcher-file allow-list
var ArtifactExtensions = []string{".jar", ".exe", ".bat", ".sh"}

// ArtifactExtension returns the lower-cased allow-listed extension of p,
// or "" when p is not a recognised launcher file.
func ArtifactExtension(p string) string {
	ext := strings.ToLower(path.Ext(p))
	for _, allowed := range ArtifactExtensions {
		if ext == allowed {
			return ext
		}
	}
	return ""
}

// ServerEntry is a registry snapshot of one server
type ServerEntry struct {
	Config   ServerConfig
	Artifact StartupArtifact
	Version  uint64
	AddedAt  time.Time
}

// FileEntry describes one entry of a remote directory listing
type FileEntry struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // "file", "directory", "symlink", "other"
	Size       int64  `json:"size"`
	Executable bool   `json:"executable,omitempty"`
}

const (
	FileTypeFile      = "file"
	FileTypeDirectory = "directory"
	FileTypeSymlink   = "symlink"
	FileTypeOther     = "other"
)
