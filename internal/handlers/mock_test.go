package handlers

import (
	"context"
	"sync"

	"github.com/imyashkale/fleetctl/internal/console"
	"github.com/imyashkale/fleetctl/internal/models"
)

// MockFleet is a mock implementation of Fleet for testing
type MockFleet struct {
	mu sync.Mutex

	servers  map[string]models.ServerEntry
	statuses map[string]models.Status
	consoles map[string]*console.Buffer

	startErr   error
	stopErr    error
	commandErr error
	files      []models.FileEntry

	commands   []string
	registered []string
	lastRel    string
}

func newMockFleet() *MockFleet {
	m := &MockFleet{
		servers:  make(map[string]models.ServerEntry),
		statuses: make(map[string]models.Status),
		consoles: make(map[string]*console.Buffer),
	}
	m.add(models.ServerConfig{ID: "s1", Name: "Survival", Type: models.TypeFabric, Host: "10.0.0.11"}, "")
	m.add(models.ServerConfig{ID: "s2", Name: "Lobby", Type: models.TypePaper, Host: "10.0.0.12"}, "paper-1.21.1-131.jar")
	return m
}

func (m *MockFleet) add(cfg models.ServerConfig, startupFile string) models.ServerEntry {
	entry := models.ServerEntry{Config: cfg}
	if startupFile != "" {
		entry.Artifact = models.StartupArtifact{SelectedPath: startupFile, Validated: true}
	}
	m.servers[cfg.ID] = entry
	m.statuses[cfg.ID] = models.StatusStopped
	m.consoles[cfg.ID] = console.NewBuffer(10)
	return entry
}

func (m *MockFleet) ListServers() []models.ServerSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ServerSummary{}
	for _, id := range []string{"s1", "s2"} {
		if e, ok := m.servers[id]; ok {
			out = append(out, models.ServerSummary{
				ID:          id,
				Name:        e.Config.Name,
				Type:        e.Config.Type,
				Status:      m.statuses[id],
				StartupFile: e.Artifact.SelectedPath,
				CanStart:    e.Artifact.Ready(),
			})
		}
	}
	return out
}

func (m *MockFleet) GetServer(id string) (models.ServerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.servers[id]
	if !ok {
		return models.ServerEntry{}, models.ErrNotFound
	}
	return e, nil
}

func (m *MockFleet) RegisterServer(cfg models.ServerConfig, startupFile string) (models.ServerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.servers[cfg.ID]; ok {
		return models.ServerEntry{}, models.ErrDuplicateID
	}
	if startupFile != "" && models.ArtifactExtension(startupFile) == "" {
		return models.ServerEntry{}, models.ErrInvalidArtifact
	}
	m.registered = append(m.registered, cfg.ID)
	return m.add(cfg, startupFile), nil
}

func (m *MockFleet) UpdateServer(id string, patch models.ServerPatch) (models.ServerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.servers[id]
	if !ok {
		return models.ServerEntry{}, models.ErrNotFound
	}
	e.Config = patch.Apply(e.Config)
	m.servers[id] = e
	return e, nil
}

func (m *MockFleet) RemoveServer(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.servers[id]; !ok {
		return models.ErrNotFound
	}
	if !m.statuses[id].Removable() {
		return models.ErrServerBusy
	}
	delete(m.servers, id)
	return nil
}

func (m *MockFleet) GetStatus(id string) (models.ServerStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.servers[id]
	if !ok {
		return models.ServerStatus{}, models.ErrNotFound
	}
	return models.ServerStatus{
		ID:          id,
		Status:      m.statuses[id],
		StartupFile: e.Artifact.SelectedPath,
		CanStart:    e.Artifact.Ready(),
		ConsoleSize: m.consoles[id].Len(),
	}, nil
}

func (m *MockFleet) SetStartupFile(id, path string) (models.StartupArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.servers[id]
	if !ok {
		return models.StartupArtifact{}, models.ErrNotFound
	}
	if models.ArtifactExtension(path) == "" {
		return models.StartupArtifact{}, models.ErrInvalidArtifact
	}
	e.Artifact = models.StartupArtifact{SelectedPath: path, Validated: true}
	m.servers[id] = e
	return e.Artifact, nil
}

func (m *MockFleet) Start(ctx context.Context, id string) (models.StartResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.servers[id]
	if !ok {
		return models.StartResult{}, models.ErrNotFound
	}
	if m.startErr != nil {
		return models.StartResult{}, m.startErr
	}
	if !e.Artifact.Ready() {
		return models.StartResult{}, models.ErrMissingArtifact
	}
	m.statuses[id] = models.StatusRunning
	return models.StartResult{
		StartupFile: e.Artifact.SelectedPath,
		Command:     "java -server -Xmx4G -jar " + e.Artifact.SelectedPath + " nogui",
	}, nil
}

func (m *MockFleet) Stop(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.servers[id]; !ok {
		return models.ErrNotFound
	}
	if m.stopErr != nil {
		return m.stopErr
	}
	if m.statuses[id] != models.StatusRunning {
		return models.ErrNotActive
	}
	m.statuses[id] = models.StatusStopped
	return nil
}

func (m *MockFleet) Restart(ctx context.Context, id string) (models.StartResult, error) {
	if err := m.Stop(ctx, id); err != nil {
		return models.StartResult{}, err
	}
	return m.Start(ctx, id)
}

func (m *MockFleet) SendCommand(ctx context.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.servers[id]; !ok {
		return models.ErrNotFound
	}
	if m.commandErr != nil {
		return m.commandErr
	}
	if m.statuses[id] != models.StatusRunning {
		return models.ErrNotActive
	}
	m.commands = append(m.commands, text)
	return nil
}

func (m *MockFleet) ListFiles(ctx context.Context, id, rel string) (string, []models.FileEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.servers[id]; !ok {
		return "", nil, models.ErrNotFound
	}
	m.lastRel = rel
	return rel, m.files, nil
}

func (m *MockFleet) Console(id string) ([]string, int, error) {
	buf, err := m.buffer(id)
	if err != nil {
		return nil, 0, err
	}
	return buf.Lines(), buf.Capacity(), nil
}

func (m *MockFleet) SubscribeConsole(id string) ([]string, *console.Subscription, error) {
	buf, err := m.buffer(id)
	if err != nil {
		return nil, nil, err
	}
	lines, sub := buf.Subscribe()
	return lines, sub, nil
}

func (m *MockFleet) buffer(id string) (*console.Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.consoles[id]
	if !ok || m.servers[id].Config.ID == "" {
		return nil, models.ErrNotFound
	}
	return buf, nil
}

func (m *MockFleet) setStatus(id string, st models.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = st
}

func (m *MockFleet) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

var _ Fleet = (*MockFleet)(nil)
