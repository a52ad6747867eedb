package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyashkale/fleetctl/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// TestLoadDefaults tests the defaults applied when only the secret is set
func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.GetPort())
	assert.Equal(t, "INFO", cfg.GetLogLevel())
	assert.Equal(t, "servers.yaml", cfg.ServersFile)
	assert.Equal(t, 10*time.Second, cfg.SSHConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.SSHExecTimeout)
	assert.Equal(t, 1, cfg.SSHConnectAttempts)
	assert.Equal(t, 3*time.Second, cfg.StartupGrace)
	assert.Equal(t, 30*time.Second, cfg.StopTimeout)
	assert.Equal(t, 500, cfg.ConsoleBufferLines)
	assert.Equal(t, "4G", cfg.DefaultMaxMemory)
	assert.False(t, cfg.AuditEnabled())
	assert.False(t, cfg.AuditConsole)
}

// TestLoadOverrides tests that environment values are parsed
func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "8080")
	t.Setenv("SSH_CONNECT_ATTEMPTS", "3")
	t.Setenv("STOP_TIMEOUT", "1m")
	t.Setenv("AUDIT_TABLE_NAME", "FleetAudit")
	t.Setenv("AUDIT_CONSOLE", "true")
	t.Setenv("CORS_ORIGINS", "https://panel.example.com, ,http://localhost:5173")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 3, cfg.SSHConnectAttempts)
	assert.Equal(t, time.Minute, cfg.StopTimeout)
	assert.True(t, cfg.AuditEnabled())
	assert.True(t, cfg.AuditConsole)
	assert.Equal(t, []string{"https://panel.example.com", "http://localhost:5173"}, cfg.CORSOrigins)
}

// TestLoadInvalid tests that every invalid value is reported
func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{}, "JWT_SECRET"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "at least 32"},
		{"bad port", map[string]string{"JWT_SECRET": testSecret, "PORT": "http"}, "PORT"},
		{"bad duration", map[string]string{"JWT_SECRET": testSecret, "STARTUP_GRACE": "soon"}, "STARTUP_GRACE"},
		{"zero attempts", map[string]string{"JWT_SECRET": testSecret, "SSH_CONNECT_ATTEMPTS": "0"}, "SSH_CONNECT_ATTEMPTS"},
		{"bad bool", map[string]string{"JWT_SECRET": testSecret, "AUDIT_CONSOLE": "maybe"}, "AUDIT_CONSOLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// TestNewPanicsOnInvalidConfig tests the panic contract of New
func TestNewPanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	assert.Panics(t, func() { New() })
}

const fleetYAML = `
servers:
  - id: proxy
    name: Proxy
    type: velocity
    host: 10.0.0.10
    username: minecraft
    credential_ref: key:id_ed25519
    remote_path: /home/minecraft/proxy
    startup_file: velocity-3.3.0-SNAPSHOT-385.jar
  - id: s1
    name: Survival
    type: fabric
    host: 10.0.0.11
    port: 2222
    username: minecraft
    credential_ref: env:S1_PASSWORD
    remote_path: /home/minecraft/server1
    max_memory: 6G
    jvm_args: ["-XX:+UseG1GC"]
`

// TestParseServers tests decoding the fleet file
func TestParseServers(t *testing.T) {
	seeds, err := ParseServers([]byte(fleetYAML))
	require.NoError(t, err)
	require.Len(t, seeds, 2)

	assert.Equal(t, "proxy", seeds[0].ID)
	assert.Equal(t, models.ServerType("velocity"), seeds[0].Type)
	assert.Equal(t, "velocity-3.3.0-SNAPSHOT-385.jar", seeds[0].StartupFile)

	assert.Equal(t, 2222, seeds[1].Port)
	assert.Equal(t, "6G", seeds[1].MaxMemory)
	assert.Equal(t, []string{"-XX:+UseG1GC"}, seeds[1].JVMArgs)
	assert.Empty(t, seeds[1].StartupFile)
}

// TestParseServersErrors tests rejected fleet files
func TestParseServersErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", "servers:\n  - id: a\n    colour: blue\n"},
		{"missing id", "servers:\n  - name: a\n"},
		{"duplicate id", "servers:\n  - id: a\n  - id: a\n"},
		{"not yaml", "servers: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseServers([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

// TestLoadServers tests reading the fleet file from disk
func TestLoadServers(t *testing.T) {
	dir := t.TempDir()

	seeds, err := LoadServers(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, seeds)

	path := filepath.Join(dir, "servers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fleetYAML), 0o600))
	seeds, err = LoadServers(path)
	require.NoError(t, err)
	assert.Len(t, seeds, 2)
}
