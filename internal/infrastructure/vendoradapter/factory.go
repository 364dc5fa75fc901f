package vendoradapter

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/storage"
	"go.uber.org/zap"
)

// Builder constructs an adapter from a vendor's configuration
type Builder func(cfg vendorsync.AdapterConfig) (vendorsync.VendorAdapter, error)

type cachedAdapter struct {
	adapter   vendorsync.VendorAdapter
	updatedAt time.Time
}

// Factory builds adapters by kind and caches one per vendor. A vendor whose
// UpdatedAt changed gets a fresh adapter.
type Factory struct {
	mu       sync.RWMutex
	builders map[vendorsync.AdapterKind]Builder
	cache    map[string]cachedAdapter
}

// NewFactory creates an empty factory
func NewFactory() *Factory {
	return &Factory{
		builders: make(map[vendorsync.AdapterKind]Builder),
		cache:    make(map[string]cachedAdapter),
	}
}

// NewDefaultFactory registers the api, file and webhook builders. HTTP
// adapters share transport (http.DefaultTransport when nil) and each gets a
// client bounded by its vendor's timeout.
func NewDefaultFactory(store storage.FileStore, transport http.RoundTripper, logger *zap.Logger) *Factory {
	f := NewFactory()
	f.Register(vendorsync.AdapterKindAPI, func(cfg vendorsync.AdapterConfig) (vendorsync.VendorAdapter, error) {
		opts := []APIAdapterOption{WithAPILogger(logger.Named("api_adapter"))}
		if transport != nil {
			opts = append(opts, WithHTTPClient(vendorClient(cfg, transport)))
		}
		return NewAPIAdapter(cfg, opts...)
	})
	f.Register(vendorsync.AdapterKindFile, func(cfg vendorsync.AdapterConfig) (vendorsync.VendorAdapter, error) {
		return NewFileAdapter(cfg, store, WithFileLogger(logger.Named("file_adapter")))
	})
	f.Register(vendorsync.AdapterKindWebhook, func(cfg vendorsync.AdapterConfig) (vendorsync.VendorAdapter, error) {
		opts := []WebhookAdapterOption{WithWebhookLogger(logger.Named("webhook_adapter"))}
		if transport != nil {
			opts = append(opts, WithWebhookHTTPClient(vendorClient(cfg, transport)))
		}
		return NewWebhookAdapter(cfg, opts...)
	})
	return f
}

func vendorClient(cfg vendorsync.AdapterConfig, transport http.RoundTripper) *http.Client {
	return &http.Client{Transport: transport, Timeout: cfg.EffectiveTimeout()}
}

// Register sets the builder for an adapter kind, replacing any existing one
func (f *Factory) Register(kind vendorsync.AdapterKind, b Builder) {
	if b == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[kind] = b
}

// ForVendor implements vendorsync.AdapterFactory
func (f *Factory) ForVendor(_ context.Context, vendor *vendorsync.Vendor) (vendorsync.VendorAdapter, error) {
	if vendor == nil {
		return nil, vendorsync.ErrVendorNotFound
	}

	f.mu.RLock()
	cached, ok := f.cache[vendor.ID]
	f.mu.RUnlock()
	if ok && cached.updatedAt.Equal(vendor.UpdatedAt) {
		return cached.adapter, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if cached, ok := f.cache[vendor.ID]; ok && cached.updatedAt.Equal(vendor.UpdatedAt) {
		return cached.adapter, nil
	}

	build, ok := f.builders[vendor.AdapterConfig.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter registered for kind %q",
			vendorsync.ErrInvalidAdapterConfig, vendor.AdapterConfig.Kind)
	}
	adapter, err := build(vendor.AdapterConfig)
	if err != nil {
		return nil, fmt.Errorf("vendor %s: %w", vendor.ID, err)
	}
	f.cache[vendor.ID] = cachedAdapter{adapter: adapter, updatedAt: vendor.UpdatedAt}
	return adapter, nil
}

// Evict drops a cached adapter
func (f *Factory) Evict(vendorID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cache, vendorID)
}

var _ vendorsync.AdapterFactory = (*Factory)(nil)
