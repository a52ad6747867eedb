package repository

import (
	"context"
	"sync"

	"github.com/imyashkale/fleetctl/internal/database"
	"github.com/imyashkale/fleetctl/internal/logger"
	"github.com/imyashkale/fleetctl/internal/models"
)

// DefaultMemoryRecords is how many records per server the in-memory
// repository keeps
const DefaultMemoryRecords = 200

// AuditRepository defines the interface for audit record operations
type AuditRepository interface {
	Save(ctx context.Context, rec models.AuditRecord) error
	ListByServer(ctx context.Context, serverID string, limit int) ([]models.AuditRecord, error)
}

// dynamoAuditRepository implements AuditRepository using DynamoDB
type dynamoAuditRepository struct {
	db *database.AuditOperations
}

// NewAuditRepository creates a new DynamoDB-backed audit repository
func NewAuditRepository(db *database.AuditOperations) AuditRepository {
	return &dynamoAuditRepository{
		db: db,
	}
}

// Save stores one audit record
func (r *dynamoAuditRepository) Save(ctx context.Context, rec models.AuditRecord) error {
	return r.db.PutAuditRecord(ctx, rec)
}

// ListByServer returns recent audit records for a server, newest first
func (r *dynamoAuditRepository) ListByServer(ctx context.Context, serverID string, limit int) ([]models.AuditRecord, error) {
	return r.db.ListAuditRecords(ctx, serverID, limit)
}

// memoryAuditRepository logs records and keeps the most recent ones per
// server. It is used when no audit table is configured.
type memoryAuditRepository struct {
	mu      sync.RWMutex
	perSrv  int
	records map[string][]models.AuditRecord
}

// NewMemoryAuditRepository creates an audit repository that keeps at most
// perServer records for each server
func NewMemoryAuditRepository(perServer int) AuditRepository {
	if perServer <= 0 {
		perServer = DefaultMemoryRecords
	}
	return &memoryAuditRepository{
		perSrv:  perServer,
		records: make(map[string][]models.AuditRecord),
	}
}

// Save logs and stores one audit record
func (r *memoryAuditRepository) Save(ctx context.Context, rec models.AuditRecord) error {
	logger.WithServer(rec.ServerID).WithFields(map[string]interface{}{
		"event_id": rec.EventID,
		"type":     rec.Type,
		"detail":   rec.Detail,
	}).Info("Audit")

	r.mu.Lock()
	defer r.mu.Unlock()
	list := append(r.records[rec.ServerID], rec)
	if len(list) > r.perSrv {
		list = append([]models.AuditRecord(nil), list[len(list)-r.perSrv:]...)
	}
	r.records[rec.ServerID] = list
	return nil
}

// ListByServer returns recent audit records for a server, newest first
func (r *memoryAuditRepository) ListByServer(ctx context.Context, serverID string, limit int) ([]models.AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.records[serverID]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]models.AuditRecord, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}
