package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyashkale/fleetctl/internal/models"
)

// TestMemoryAuditRepository tests bounded storage and newest-first listing
func TestMemoryAuditRepository(t *testing.T) {
	repo := NewMemoryAuditRepository(3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, repo.Save(ctx, models.AuditRecord{EventID: fmt.Sprintf("e%d", i), ServerID: "s1"}))
	}
	require.NoError(t, repo.Save(ctx, models.AuditRecord{EventID: "other", ServerID: "s2"}))

	records, err := repo.ListByServer(ctx, "s1", 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.EventID)
	}
	assert.Equal(t, []string{"e5", "e4", "e3"}, ids)

	records, err = repo.ListByServer(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "e5", records[0].EventID)

	records, err = repo.ListByServer(ctx, "unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
