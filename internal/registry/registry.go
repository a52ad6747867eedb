// Package registry owns the configuration of every managed server and the
// startup artifact selected for it.
package registry

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/imyashkale/fleetctl/internal/logger"
	"github.com/imyashkale/fleetctl/internal/models"
)

// StatusSource reports the runtime status of a server; the lifecycle service
// implements it so the registry can refuse to drop an active server.
type StatusSource interface {
	Status(id string) models.Status
}

type entry struct {
	config   models.ServerConfig
	artifact models.StartupArtifact
	version  uint64
	addedAt  time.Time
}

func (e *entry) snapshot() models.ServerEntry {
	return models.ServerEntry{
		Config:   e.config.Clone(),
		Artifact: e.artifact,
		Version:  e.version,
		AddedAt:  e.addedAt,
	}
}

// Registry is the in-memory source of truth for server configuration
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	status  StatusSource
	now     func() time.Time
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// SetStatusSource attaches the component that owns runtime status.
func (r *Registry) SetStatusSource(src StatusSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = src
}

// Register adds a new server config
func (r *Registry) Register(cfg models.ServerConfig) (models.ServerEntry, error) {
	cfg = cfg.Clone()
	cfg.Normalize()
	if err := Validate(cfg); err != nil {
		return models.ServerEntry{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[cfg.ID]; exists {
		return models.ServerEntry{}, fmt.Errorf("%w: %s", models.ErrDuplicateID, cfg.ID)
	}

	e := &entry{config: cfg, version: 1, addedAt: r.now()}
	r.entries[cfg.ID] = e

	logger.WithFields(map[string]interface{}{
		"server_id": cfg.ID,
		"type":      string(cfg.Type),
		"host":      cfg.Host,
	}).Info("Server registered")

	return e.snapshot(), nil
}

// Update applies a partial patch to an existing server config
func (r *Registry) Update(id string, patch models.ServerPatch) (models.ServerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return models.ServerEntry{}, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}

	updated := patch.Apply(e.config)
	updated.ID = e.config.ID
	if err := Validate(updated); err != nil {
		return models.ServerEntry{}, err
	}

	e.config = updated
	e.version++

	logger.WithServer(id).WithField("version", e.version).Info("Server config updated")
	return e.snapshot(), nil
}

// Remove deletes a server config. Only stopped or errored servers may be removed.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}

	if r.status != nil {
		if st := r.status.Status(id); !st.Removable() {
			return fmt.Errorf("%w: %s is %s", models.ErrServerBusy, id, st)
		}
	}

	delete(r.entries, id)
	logger.WithServer(id).Info("Server removed")
	return nil
}

// Get returns a snapshot of one server
func (r *Registry) Get(id string) (models.ServerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return models.ServerEntry{}, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	return e.snapshot(), nil
}

// List returns snapshots of every server ordered by id
func (r *Registry) List() []models.ServerEntry {
	r.mu.RLock()
	out := make([]models.ServerEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Config.ID < out[j].Config.ID })
	return out
}

// SetStartupArtifact validates p against the launcher allow-list and stores it
// as the server's startup artifact. Runtime state is not touched.
func (r *Registry) SetStartupArtifact(id, p string) (models.StartupArtifact, error) {
	p = strings.TrimSpace(p)
	if err := ValidateArtifactPath(p); err != nil {
		return models.StartupArtifact{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return models.StartupArtifact{}, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}

	e.artifact = models.StartupArtifact{SelectedPath: p, Validated: true, UpdatedAt: r.now()}
	e.version++

	logger.WithServer(id).WithField("startup_file", p).Info("Startup file set")
	return e.artifact, nil
}

// ClearStartupArtifact unselects the startup artifact of a server
func (r *Registry) ClearStartupArtifact(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	e.artifact = models.StartupArtifact{UpdatedAt: r.now()}
	e.version++
	return nil
}

// Validate checks the required fields of a server config
func Validate(cfg models.ServerConfig) error {
	var missing []string
	if cfg.ID == "" {
		missing = append(missing, "id")
	}
	if cfg.Name == "" {
		missing = append(missing, "name")
	}
	if cfg.Type == "" {
		missing = append(missing, "type")
	}
	if cfg.Host == "" {
		missing = append(missing, "host")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", models.ErrInvalidConfig, strings.Join(missing, ", "))
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", models.ErrInvalidConfig, cfg.Port)
	}
	if strings.ContainsAny(cfg.ID, "/ \t\n") {
		return fmt.Errorf("%w: id %q contains whitespace or '/'", models.ErrInvalidConfig, cfg.ID)
	}
	return nil
}

// ValidateArtifactPath checks that p names an allow-listed launcher file
// relative to the server's remote path.
func ValidateArtifactPath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: empty path", models.ErrInvalidArtifact)
	}
	if models.ArtifactExtension(p) == "" {
		return fmt.Errorf("%w: %q has no launcher extension (%s)", models.ErrInvalidArtifact, p, strings.Join(models.ArtifactExtensions, ", "))
	}
	if path.IsAbs(p) {
		return fmt.Errorf("%w: %q must be relative to the server directory", models.ErrInvalidArtifact, p)
	}
	if clean := path.Clean(p); clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: %q escapes the server directory", models.ErrInvalidArtifact, p)
	}
	return nil
}
