package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/imyashkale/fleetctl/internal/models"
)

// ServerSeed is one server from the fleet file
type ServerSeed struct {
	models.ServerConfig `yaml:",inline"`
	StartupFile         string `yaml:"startup_file"`
}

// fleetFile is the layout of the fleet file
type fleetFile struct {
	Servers []ServerSeed `yaml:"servers"`
}

// LoadServers reads the fleet file at path. A missing file yields an empty
// fleet.
func LoadServers(path string) ([]ServerSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read servers file: %w", err)
	}
	return ParseServers(data)
}

// ParseServers decodes fleet file contents. Unknown keys are rejected.
func ParseServers(data []byte) ([]ServerSeed, error) {
	var f fleetFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse servers file: %w", err)
	}

	seen := make(map[string]bool, len(f.Servers))
	for i, s := range f.Servers {
		if s.ID == "" {
			return nil, fmt.Errorf("servers[%d]: id is required", i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("servers[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
	}
	return f.Servers, nil
}
