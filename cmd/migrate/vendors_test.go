package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/erp/vendorsync/internal/domain/shared"
	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/config"
	"github.com/erp/vendorsync/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const definitions = `[
  {
    "id": "acme",
    "name": "Acme Supply",
    "cadences": ["hourly", "daily"],
    "adapter": {
      "kind": "api",
      "base_url": "https://api.acme.example.com",
      "api_key": "key",
      "timeout": "15s",
      "record_filter": {"kind": "compare", "field": "status", "op": "eq", "value": "active"}
    }
  },
  {
    "id": "dropbox",
    "name": "Drop Box Co",
    "active": false,
    "adapter": {"kind": "file", "inbound_path": "s3://drops/inbound", "formats": ["csv"]}
  }
]`

func TestDecodeVendors(t *testing.T) {
	vendors, err := decodeVendors(strings.NewReader(definitions))
	require.NoError(t, err)
	require.Len(t, vendors, 2)

	acme := vendors[0]
	assert.Equal(t, "acme", acme.ID)
	assert.True(t, acme.Active)
	assert.Equal(t, []vendorsync.Cadence{vendorsync.CadenceHourly, vendorsync.CadenceDaily}, acme.Cadences)
	assert.Equal(t, vendorsync.AdapterKindAPI, acme.AdapterConfig.Kind)
	assert.Equal(t, 15*time.Second, acme.AdapterConfig.Timeout)
	assert.True(t, acme.AdapterConfig.RecordFilter.Evaluate(shared.Fields{"status": "active"}))

	drop := vendors[1]
	assert.False(t, drop.Active)
	assert.Empty(t, drop.Cadences)
	assert.Equal(t, []string{"csv"}, drop.AdapterConfig.Formats)
}

func TestLoadVendors_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vendors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: acme
  name: Acme Supply
  cadences: [weekly]
  adapter:
    kind: api
    base_url: https://api.acme.example.com
    api_key: key
    timeout: 10s
    rate_limit: 2
    record_filter:
      kind: compare
      field: quantity
      op: gt
      value: 0
`), 0o600))

	vendors, err := loadVendors(path)
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	v := vendors[0]
	assert.Equal(t, "Acme Supply", v.Name)
	assert.Equal(t, []vendorsync.Cadence{vendorsync.CadenceWeekly}, v.Cadences)
	assert.Equal(t, 10*time.Second, v.AdapterConfig.Timeout)
	assert.Equal(t, 2.0, v.AdapterConfig.RateLimit)
	assert.True(t, v.AdapterConfig.RecordFilter.Evaluate(shared.Fields{"quantity": 3}))
	assert.False(t, v.AdapterConfig.RecordFilter.Evaluate(shared.Fields{"quantity": 0}))

	jsonPath := filepath.Join(t.TempDir(), "vendors.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(definitions), 0o600))
	fromJSON, err := loadVendors(jsonPath)
	require.NoError(t, err)
	assert.Len(t, fromJSON, 2)

	_, err = loadVendors(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDecodeVendors_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not an array", `{"id":"x"}`, "decode vendor definitions"},
		{"unknown field", `[{"id":"x","name":"X","colour":"red","adapter":{"kind":"webhook"}}]`, "unknown field"},
		{"missing id", `[{"name":"X","adapter":{"kind":"webhook"}}]`, "vendor[0]"},
		{"bad cadence", `[{"id":"x","name":"X","cadences":["monthly"],"adapter":{"kind":"webhook"}}]`, "vendor[0]"},
		{"bad timeout", `[{"id":"x","name":"X","adapter":{"kind":"webhook","timeout":"soon"}}]`, "timeout"},
		{"invalid adapter", `[{"id":"x","name":"X","adapter":{"kind":"api"}}]`, "base url is required"},
		{
			"duplicate id",
			`[{"id":"x","name":"X","adapter":{"kind":"webhook"}},{"id":"x","name":"Y","adapter":{"kind":"webhook"}}]`,
			`duplicate id "x"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeVendors(strings.NewReader(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestImportVendors(t *testing.T) {
	db, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	repo := persistence.NewGormVendorRepository(db.DB)
	ctx := context.Background()

	vendors, err := decodeVendors(strings.NewReader(definitions))
	require.NoError(t, err)
	n, err := importVendors(ctx, repo, vendors)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	first, err := repo.FindByID(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme Supply", first.Name)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "acme", active[0].ID)

	// re-importing updates in place and keeps the creation time
	again, err := decodeVendors(strings.NewReader(strings.Replace(definitions, "Acme Supply", "Acme Industrial", 1)))
	require.NoError(t, err)
	_, err = importVendors(ctx, repo, again)
	require.NoError(t, err)

	updated, err := repo.FindByID(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme Industrial", updated.Name)
	assert.True(t, first.CreatedAt.Equal(updated.CreatedAt))
}
