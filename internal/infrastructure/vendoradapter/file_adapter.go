package vendoradapter

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/storage"
	"github.com/erp/vendorsync/internal/infrastructure/vendorfile"
	"go.uber.org/zap"
)

// FileAdapter exchanges files with a vendor through an inbound and an
// outbound location. Inbound files are named {vendorId}_{syncType}.{format}.
type FileAdapter struct {
	cfg    vendorsync.AdapterConfig
	caps   vendorsync.CapabilitySet
	store  storage.FileStore
	conn   connection
	now    func() time.Time
	logger *zap.Logger
}

// FileAdapterOption configures a FileAdapter
type FileAdapterOption func(*FileAdapter)

// WithFileClock overrides the clock used to name outbound files
func WithFileClock(now func() time.Time) FileAdapterOption {
	return func(a *FileAdapter) {
		a.now = now
	}
}

// WithFileLogger sets the logger
func WithFileLogger(l *zap.Logger) FileAdapterOption {
	return func(a *FileAdapter) {
		a.logger = l
	}
}

// NewFileAdapter creates an adapter for a file-kind vendor
func NewFileAdapter(cfg vendorsync.AdapterConfig, store storage.FileStore, opts ...FileAdapterOption) (*FileAdapter, error) {
	if cfg.Kind != vendorsync.AdapterKindFile {
		return nil, fmt.Errorf("%w: expected file adapter, got %q", vendorsync.ErrInvalidAdapterConfig, cfg.Kind)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("file adapter requires a file store")
	}

	caps := []vendorsync.Capability{
		vendorsync.CapabilityFetchInventory,
		vendorsync.CapabilityFetchPricing,
		vendorsync.CapabilityFetchOrders,
		vendorsync.CapabilityFetchCatalog,
	}
	if cfg.OutboundPath != "" {
		caps = append(caps, vendorsync.CapabilitySendOrder)
	}

	a := &FileAdapter{
		cfg:    cfg,
		caps:   vendorsync.NewCapabilitySet(caps...),
		store:  store,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Kind implements vendorsync.VendorAdapter
func (a *FileAdapter) Kind() vendorsync.AdapterKind { return vendorsync.AdapterKindFile }

// Capabilities implements vendorsync.VendorAdapter
func (a *FileAdapter) Capabilities() vendorsync.CapabilitySet { return a.caps }

// Connect implements vendorsync.VendorAdapter
func (a *FileAdapter) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.conn.connect()
	return nil
}

// Disconnect implements vendorsync.VendorAdapter
func (a *FileAdapter) Disconnect(_ context.Context) error {
	a.conn.disconnect()
	return nil
}

// FetchInventory implements vendorsync.VendorAdapter
func (a *FileAdapter) FetchInventory(ctx context.Context, vendorID string) ([]vendorsync.VendorRecord, error) {
	return a.fetch(ctx, vendorID, vendorsync.SyncTypeInventory)
}

// FetchPricing implements vendorsync.VendorAdapter
func (a *FileAdapter) FetchPricing(ctx context.Context, vendorID string) ([]vendorsync.VendorRecord, error) {
	return a.fetch(ctx, vendorID, vendorsync.SyncTypePricing)
}

// FetchOrders implements vendorsync.VendorAdapter
func (a *FileAdapter) FetchOrders(ctx context.Context, vendorID string) ([]vendorsync.VendorRecord, error) {
	return a.fetch(ctx, vendorID, vendorsync.SyncTypeOrder)
}

// FetchCatalog implements vendorsync.VendorAdapter
func (a *FileAdapter) FetchCatalog(ctx context.Context, vendorID string) ([]vendorsync.VendorRecord, error) {
	return a.fetch(ctx, vendorID, vendorsync.SyncTypeCatalog)
}

// fetch reads the first inbound file present in format preference order.
// No file at all yields an empty batch.
func (a *FileAdapter) fetch(ctx context.Context, vendorID string, domain vendorsync.SyncType) ([]vendorsync.VendorRecord, error) {
	if err := fetchGuard(a.Kind(), a.caps, domain); err != nil {
		return nil, err
	}
	if err := a.conn.check(ctx); err != nil {
		return nil, err
	}

	for _, format := range a.cfg.EffectiveFormats() {
		location := storage.Join(a.cfg.InboundPath, fmt.Sprintf("%s_%s.%s", vendorID, domain, format))
		data, err := a.store.Read(ctx, location)
		if errors.Is(err, storage.ErrFileNotFound) {
			continue
		}
		if err != nil {
			return nil, vendorsync.NewTransientError("read "+location, err)
		}

		res, err := vendorfile.Decode(data, format, vendorID, domain)
		if errors.Is(err, vendorfile.ErrEmptyFile) {
			return []vendorsync.VendorRecord{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", vendorsync.ErrVendorRequestFailed, location, err)
		}
		if len(res.Skipped) > 0 {
			a.logger.Warn("Skipped malformed rows in vendor file",
				zap.String("vendor_id", vendorID),
				zap.String("location", location),
				zap.Int("skipped", len(res.Skipped)),
				zap.String("details", res.Skipped.String()),
			)
		}
		return res.Records, nil
	}

	a.logger.Debug("No inbound file for domain",
		zap.String("vendor_id", vendorID),
		zap.String("domain", domain.String()),
	)
	return []vendorsync.VendorRecord{}, nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SendOrder writes the order as JSON to the outbound location
func (a *FileAdapter) SendOrder(ctx context.Context, order vendorsync.VendorRecord) error {
	if err := capabilityGuard(a.Kind(), a.caps, vendorsync.CapabilitySendOrder); err != nil {
		return err
	}
	if err := a.conn.check(ctx); err != nil {
		return err
	}

	data, err := vendorfile.EncodeJSON(order)
	if err != nil {
		return fmt.Errorf("file: failed to encode order: %w", err)
	}
	name := fmt.Sprintf("%s_order_%s_%d.json",
		order.VendorID, unsafeFileChars.ReplaceAllString(order.BusinessKey, "_"), a.now().Unix())
	location := storage.Join(a.cfg.OutboundPath, name)
	if err := a.store.Write(ctx, location, data); err != nil {
		return vendorsync.NewTransientError("write "+location, err)
	}
	return nil
}

var _ vendorsync.VendorAdapter = (*FileAdapter)(nil)
