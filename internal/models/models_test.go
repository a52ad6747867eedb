package models

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArtifactExtension(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"launcher.exe", ".exe"},
		{"paper-1.21.1-131.jar", ".jar"},
		{"start.SH", ".sh"},
		{"bin/run.bat", ".bat"},
		{"readme.txt", ""},
		{"jar", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ArtifactExtension(tt.path))
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"not found", fmt.Errorf("%w: s9", ErrNotFound), "not_found", http.StatusNotFound},
		{"missing artifact", ErrMissingArtifact, "missing_artifact", http.StatusPreconditionFailed},
		{"connection", fmt.Errorf("%w: refused", ErrConnectionFailed), "connection_failed", http.StatusBadGateway},
		{"timeout wins over transport", fmt.Errorf("%w: %w", ErrConnectionFailed, ErrTimeout), "timeout", http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), "internal_error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, status := ErrorCode(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestServerPatchApply(t *testing.T) {
	original := ServerConfig{ID: "s1", Name: "Game Server 1", Type: TypeFabric, Host: "192.168.1.101", JVMArgs: []string{"-Dfoo=1"}}

	name := "  Renamed  "
	port := 2222
	patched := ServerPatch{Name: &name, Port: &port}.Apply(original)

	assert.Equal(t, "s1", patched.ID)
	assert.Equal(t, "Renamed", patched.Name)
	assert.Equal(t, 2222, patched.SSHPort())
	assert.Equal(t, TypeFabric, patched.Type)

	// the original must not share the slice with the copy
	patched.JVMArgs[0] = "-Dfoo=2"
	assert.Equal(t, "-Dfoo=1", original.JVMArgs[0])
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusStopped.Removable())
	assert.True(t, StatusError.Removable())
	assert.False(t, StatusRunning.Removable())
	assert.True(t, StatusStarting.Active())
	assert.False(t, StatusError.Active())
}
