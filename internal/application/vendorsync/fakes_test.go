package vendorsync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/erp/vendorsync/internal/domain/shared"
	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/queue"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAdapter serves canned records per domain
type fakeAdapter struct {
	mu       sync.Mutex
	kind     vendorsync.AdapterKind
	caps     vendorsync.CapabilitySet
	records  map[vendorsync.SyncType][]vendorsync.VendorRecord
	fetchErr error
	onFetch  func()
	sent     []vendorsync.VendorRecord
	fetched  []vendorsync.SyncType
}

func newFakeAdapter(caps ...vendorsync.Capability) *fakeAdapter {
	return &fakeAdapter{
		kind:    vendorsync.AdapterKindAPI,
		caps:    vendorsync.NewCapabilitySet(caps...),
		records: make(map[vendorsync.SyncType][]vendorsync.VendorRecord),
	}
}

func (a *fakeAdapter) Kind() vendorsync.AdapterKind           { return a.kind }
func (a *fakeAdapter) Capabilities() vendorsync.CapabilitySet { return a.caps }
func (a *fakeAdapter) Connect(ctx context.Context) error      { return ctx.Err() }
func (a *fakeAdapter) Disconnect(context.Context) error       { return nil }
func (a *fakeAdapter) FetchInventory(ctx context.Context, v string) ([]vendorsync.VendorRecord, error) {
	return a.fetch(vendorsync.SyncTypeInventory)
}
func (a *fakeAdapter) FetchPricing(ctx context.Context, v string) ([]vendorsync.VendorRecord, error) {
	return a.fetch(vendorsync.SyncTypePricing)
}
func (a *fakeAdapter) FetchOrders(ctx context.Context, v string) ([]vendorsync.VendorRecord, error) {
	return a.fetch(vendorsync.SyncTypeOrder)
}
func (a *fakeAdapter) FetchCatalog(ctx context.Context, v string) ([]vendorsync.VendorRecord, error) {
	return a.fetch(vendorsync.SyncTypeCatalog)
}

func (a *fakeAdapter) SendOrder(_ context.Context, order vendorsync.VendorRecord) error {
	if !a.caps.Has(vendorsync.CapabilitySendOrder) {
		return vendorsync.NewCapabilityUnsupportedError(a.kind, vendorsync.CapabilitySendOrder)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, order)
	return nil
}

func (a *fakeAdapter) fetch(t vendorsync.SyncType) ([]vendorsync.VendorRecord, error) {
	if a.onFetch != nil {
		a.onFetch()
	}
	c, _ := vendorsync.FetchCapability(t)
	if !a.caps.Has(c) {
		return nil, vendorsync.NewCapabilityUnsupportedError(a.kind, c)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetched = append(a.fetched, t)
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return a.records[t], nil
}

type fakeFactory struct {
	adapter vendorsync.VendorAdapter
}

func (f *fakeFactory) ForVendor(context.Context, *vendorsync.Vendor) (vendorsync.VendorAdapter, error) {
	return f.adapter, nil
}

type fakeVendors struct {
	vendors map[string]*vendorsync.Vendor
}

func newFakeVendors(vendors ...*vendorsync.Vendor) *fakeVendors {
	f := &fakeVendors{vendors: make(map[string]*vendorsync.Vendor)}
	for _, v := range vendors {
		f.vendors[v.ID] = v
	}
	return f
}

func (f *fakeVendors) FindByID(_ context.Context, id string) (*vendorsync.Vendor, error) {
	v, ok := f.vendors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vendorsync.ErrVendorNotFound, id)
	}
	return v, nil
}

func (f *fakeVendors) ListActive(context.Context) ([]*vendorsync.Vendor, error) {
	var out []*vendorsync.Vendor
	for _, v := range f.vendors {
		if v.Active {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVendors) Save(_ context.Context, v *vendorsync.Vendor) error {
	f.vendors[v.ID] = v
	return nil
}

// memRecordStore upserts by (domain, vendor, business key)
type memRecordStore struct {
	mu   sync.Mutex
	rows map[string]vendorsync.VendorRecord
	seq  int
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{rows: make(map[string]vendorsync.VendorRecord)}
}

func recordKey(domain vendorsync.SyncType, vendorID, key string) string {
	return string(domain) + "|" + vendorID + "|" + key
}

func (s *memRecordStore) Find(_ context.Context, domain vendorsync.SyncType, vendorID, key string) (*vendorsync.VendorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[recordKey(domain, vendorID, key)]
	if !ok {
		return nil, fmt.Errorf("%w: record %s", shared.ErrNotFound, key)
	}
	out := r.Clone()
	return &out, nil
}

func (s *memRecordStore) Save(_ context.Context, r vendorsync.VendorRecord) (*vendorsync.VendorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recordKey(r.Domain, r.VendorID, r.BusinessKey)
	stored := r.Clone()
	if existing, ok := s.rows[k]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		s.seq++
		stored.ID = fmt.Sprintf("rec-%d", s.seq)
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now()
		}
	}
	s.rows[k] = stored
	out := stored.Clone()
	return &out, nil
}

func (s *memRecordStore) put(r vendorsync.VendorRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[recordKey(r.Domain, r.VendorID, r.BusinessKey)] = r.Clone()
}

func (s *memRecordStore) get(t *testing.T, domain vendorsync.SyncType, vendorID, key string) vendorsync.VendorRecord {
	t.Helper()
	r, err := s.Find(context.Background(), domain, vendorID, key)
	require.NoError(t, err)
	return *r
}

type memReviews struct {
	mu      sync.Mutex
	reviews []*vendorsync.ConflictReview
}

func (m *memReviews) Save(_ context.Context, r *vendorsync.ConflictReview) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews = append(m.reviews, r)
	return nil
}

func (m *memReviews) ListOpen(_ context.Context, vendorID string, limit int) ([]*vendorsync.ConflictReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*vendorsync.ConflictReview(nil), m.reviews...), nil
}

type memHistory struct {
	mu   sync.Mutex
	jobs []*vendorsync.SyncJob
}

func (m *memHistory) Archive(_ context.Context, job *vendorsync.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job.Clone())
	return nil
}

func (m *memHistory) ListByVendor(context.Context, string, int) ([]*vendorsync.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*vendorsync.SyncJob(nil), m.jobs...), nil
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

func (p *recordingPublisher) last(eventType string) shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].EventType() == eventType {
			return p.events[i]
		}
	}
	return nil
}

func apiVendor(id string) *vendorsync.Vendor {
	return &vendorsync.Vendor{
		ID:     id,
		Name:   "Vendor " + id,
		Active: true,
		AdapterConfig: vendorsync.AdapterConfig{
			Kind:    vendorsync.AdapterKindAPI,
			BaseURL: "https://vendor.example.com",
			APIKey:  "key",
		},
	}
}

type testEnv struct {
	svc       *SyncService
	queue     *queue.InMemoryJobQueue
	records   *memRecordStore
	reviews   *memReviews
	history   *memHistory
	publisher *recordingPublisher
	vendors   *fakeVendors
}

func newTestEnv(t *testing.T, factory vendorsync.AdapterFactory, strategy vendorsync.StrategyName, opts ...Option) *testEnv {
	t.Helper()
	resolver, err := vendorsync.NewConflictResolver(strategy)
	require.NoError(t, err)

	env := &testEnv{
		queue:     queue.NewInMemoryJobQueue(),
		records:   newMemRecordStore(),
		reviews:   &memReviews{},
		history:   &memHistory{},
		publisher: &recordingPublisher{},
		vendors:   newFakeVendors(apiVendor("v1")),
	}
	base := []Option{
		WithReviewRepository(env.reviews),
		WithJobHistory(env.history),
	}
	env.svc = NewSyncService(env.queue, env.vendors, factory, env.records, resolver, env.publisher, zap.NewNop(), append(base, opts...)...)
	return env
}
