package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/vendorsync/internal/domain/shared"
	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}

func TestGormVendorRepository(t *testing.T) {
	repo := NewGormVendorRepository(setupTestDB(t))
	ctx := context.Background()

	apiVendor := &vendorsync.Vendor{
		ID:     "acme",
		Name:   "Acme",
		Active: true,
		AdapterConfig: vendorsync.AdapterConfig{
			Kind:         vendorsync.AdapterKindAPI,
			BaseURL:      "https://acme.example.com",
			APIKey:       "k",
			RecordFilter: shared.Compare("status", shared.OpEq, "active"),
		},
		Cadences: []vendorsync.Cadence{vendorsync.CadenceDaily},
	}
	inactive := &vendorsync.Vendor{
		ID:            "old",
		Name:          "Old",
		AdapterConfig: vendorsync.AdapterConfig{Kind: vendorsync.AdapterKindWebhook},
	}
	require.NoError(t, repo.Save(ctx, apiVendor))
	require.NoError(t, repo.Save(ctx, inactive))

	t.Run("find by id round-trips adapter config", func(t *testing.T) {
		got, err := repo.FindByID(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "Acme", got.Name)
		assert.Equal(t, vendorsync.AdapterKindAPI, got.AdapterConfig.Kind)
		assert.Equal(t, []vendorsync.Cadence{vendorsync.CadenceDaily}, got.Cadences)
		assert.True(t, got.AdapterConfig.RecordFilter.Evaluate(shared.Fields{"status": "active"}))
		assert.False(t, got.UpdatedAt.IsZero())
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.FindByID(ctx, "missing")
		assert.ErrorIs(t, err, vendorsync.ErrVendorNotFound)
	})

	t.Run("list active", func(t *testing.T) {
		vendors, err := repo.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, vendors, 1)
		assert.Equal(t, "acme", vendors[0].ID)
	})

	t.Run("save rejects invalid adapter config", func(t *testing.T) {
		err := repo.Save(ctx, &vendorsync.Vendor{ID: "bad", AdapterConfig: vendorsync.AdapterConfig{Kind: vendorsync.AdapterKindFile}})
		assert.ErrorIs(t, err, vendorsync.ErrInvalidAdapterConfig)
	})
}

func TestGormRecordStore(t *testing.T) {
	store := NewGormRecordStore(setupTestDB(t))
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := store.Find(ctx, vendorsync.SyncTypeInventory, "v1", "SKU-1")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	first, err := store.Save(ctx, vendorsync.VendorRecord{
		BusinessKey: "SKU-1",
		VendorID:    "v1",
		Domain:      vendorsync.SyncTypeInventory,
		Quantity:    vendorsync.DecimalPtr(decimal.NewFromInt(5)),
		Attributes:  map[string]string{"warehouse": "WH1"},
		CreatedAt:   created,
		UpdatedAt:   created,
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, vendorsync.SourceInternal, first.Source)

	t.Run("upsert keeps identity and creation time", func(t *testing.T) {
		updated := created.Add(time.Hour)
		second, err := store.Save(ctx, vendorsync.VendorRecord{
			ID:          uuid.NewString(),
			BusinessKey: "SKU-1",
			VendorID:    "v1",
			Domain:      vendorsync.SyncTypeInventory,
			Quantity:    vendorsync.DecimalPtr(decimal.NewFromInt(9)),
			Price:       vendorsync.DecimalPtr(decimal.RequireFromString("2.5")),
			Version:     2,
			CreatedAt:   updated,
			UpdatedAt:   updated,
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		got, err := store.Find(ctx, vendorsync.SyncTypeInventory, "v1", "SKU-1")
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
		assert.True(t, got.CreatedAt.Equal(created))
		assert.True(t, got.UpdatedAt.Equal(updated))
		assert.True(t, got.Quantity.Equal(decimal.NewFromInt(9)))
		assert.True(t, got.Price.Equal(decimal.RequireFromString("2.5")))
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("business key scoped by domain", func(t *testing.T) {
		_, err := store.Find(ctx, vendorsync.SyncTypePricing, "v1", "SKU-1")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("rejects incomplete record", func(t *testing.T) {
		_, err := store.Save(ctx, vendorsync.VendorRecord{VendorID: "v1", Domain: vendorsync.SyncTypeInventory})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestGormJobHistoryRepository(t *testing.T) {
	repo := NewGormJobHistoryRepository(setupTestDB(t))
	ctx := context.Background()

	older, err := vendorsync.NewSyncJob("v1", vendorsync.SyncTypeAll, vendorsync.PriorityNormal, 3, vendorsync.TriggerScheduled)
	require.NoError(t, err)
	older.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, older.Start())
	result := vendorsync.NewSyncResult()
	result.Reports[vendorsync.SyncTypeInventory] = &vendorsync.BatchReport{Domain: vendorsync.SyncTypeInventory, Processed: 3, Succeeded: 2, Failed: 1}
	require.NoError(t, older.Complete(result))
	require.NoError(t, repo.Archive(ctx, older))

	newer, err := vendorsync.NewSyncJob("v1", vendorsync.SyncTypePricing, vendorsync.PriorityForced, 3, vendorsync.TriggerManual)
	require.NoError(t, err)
	require.NoError(t, repo.Archive(ctx, newer))

	other, err := vendorsync.NewSyncJob("v2", vendorsync.SyncTypeOrder, vendorsync.PriorityNormal, 3, vendorsync.TriggerManual)
	require.NoError(t, err)
	require.NoError(t, repo.Archive(ctx, other))

	// archiving again refreshes the snapshot
	require.NoError(t, repo.Archive(ctx, newer))

	jobs, err := repo.ListByVendor(ctx, "v1", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, newer.ID, jobs[0].ID)
	assert.Equal(t, older.ID, jobs[1].ID)
	assert.Equal(t, vendorsync.JobStatusCompleted, jobs[1].Status)
	require.NotNil(t, jobs[1].Result)
	assert.Equal(t, 2, jobs[1].Result.Totals().Succeeded)
}

func TestGormConflictReviewRepository(t *testing.T) {
	repo := NewGormConflictReviewRepository(setupTestDB(t))
	ctx := context.Background()

	envelope := func(vendorID, key string) vendorsync.ConflictEnvelope {
		return vendorsync.ConflictEnvelope{
			Type:           vendorsync.ConflictTypeData,
			VendorValue:    vendorsync.VendorRecord{VendorID: vendorID, BusinessKey: key, Domain: vendorsync.SyncTypePricing},
			InternalValue:  vendorsync.VendorRecord{VendorID: vendorID, BusinessKey: key, Domain: vendorsync.SyncTypePricing},
			FlaggedAt:      time.Now(),
			RequiresReview: true,
		}
	}

	jobID := uuid.New()
	r1 := &vendorsync.ConflictReview{JobID: jobID, Envelope: envelope("v1", "P-1")}
	r2 := &vendorsync.ConflictReview{JobID: jobID, Envelope: envelope("v2", "P-2")}
	resolved := &vendorsync.ConflictReview{JobID: jobID, Envelope: envelope("v1", "P-3"), Status: vendorsync.ReviewStatusResolved}
	for _, r := range []*vendorsync.ConflictReview{r1, r2, resolved} {
		require.NoError(t, repo.Save(ctx, r))
	}
	assert.NotEqual(t, uuid.Nil, r1.ID)
	assert.Equal(t, vendorsync.ReviewStatusOpen, r1.Status)

	open, err := repo.ListOpen(ctx, "v1", 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "P-1", open[0].Envelope.VendorValue.BusinessKey)
	assert.True(t, open[0].Envelope.RequiresReview)

	all, err := repo.ListOpen(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGormAuditRepository(t *testing.T) {
	repo := NewGormAuditRepository(setupTestDB(t))
	ctx := context.Background()
	jobID := uuid.New()
	now := time.Now()

	started := &vendorsync.AuditEntry{EventID: uuid.New(), EventType: vendorsync.EventTypeSyncStarted, JobID: jobID, VendorID: "v1", Payload: []byte(`{}`), OccurredAt: now}
	completed := &vendorsync.AuditEntry{EventID: uuid.New(), EventType: vendorsync.EventTypeSyncCompleted, JobID: jobID, VendorID: "v1", Payload: []byte(`{"ok":true}`), OccurredAt: now.Add(time.Second)}
	require.NoError(t, repo.Append(ctx, completed))
	require.NoError(t, repo.Append(ctx, started))

	duplicate := *started
	duplicate.ID = uuid.Nil
	require.NoError(t, repo.Append(ctx, &duplicate), "redelivered event is ignored")

	entries, err := repo.ListByJob(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, vendorsync.EventTypeSyncStarted, entries[0].EventType)
	assert.Equal(t, vendorsync.EventTypeSyncCompleted, entries[1].EventType)
	assert.JSONEq(t, `{"ok":true}`, string(entries[1].Payload))
}
