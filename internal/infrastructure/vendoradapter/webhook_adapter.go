package vendoradapter

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"go.uber.org/zap"
)

// HeaderWebhookSignature carries the HMAC of a pushed payload
const HeaderWebhookSignature = "X-Vendor-Signature"

// WebhookAdapter receives pushed payloads. It cannot be polled; outbound
// orders go to the optional order endpoint.
type WebhookAdapter struct {
	cfg        vendorsync.AdapterConfig
	caps       vendorsync.CapabilitySet
	httpClient *http.Client
	conn       connection
	logger     *zap.Logger
}

// WebhookAdapterOption configures a WebhookAdapter
type WebhookAdapterOption func(*WebhookAdapter)

// WithWebhookHTTPClient overrides the HTTP client used for outbound orders
func WithWebhookHTTPClient(c *http.Client) WebhookAdapterOption {
	return func(a *WebhookAdapter) {
		a.httpClient = c
	}
}

// WithWebhookLogger sets the logger
func WithWebhookLogger(l *zap.Logger) WebhookAdapterOption {
	return func(a *WebhookAdapter) {
		a.logger = l
	}
}

// NewWebhookAdapter creates an adapter for a webhook-kind vendor
func NewWebhookAdapter(cfg vendorsync.AdapterConfig, opts ...WebhookAdapterOption) (*WebhookAdapter, error) {
	if cfg.Kind != vendorsync.AdapterKindWebhook {
		return nil, fmt.Errorf("%w: expected webhook adapter, got %q", vendorsync.ErrInvalidAdapterConfig, cfg.Kind)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var caps []vendorsync.Capability
	if cfg.OrderEndpoint != "" {
		caps = append(caps, vendorsync.CapabilitySendOrder)
	}
	a := &WebhookAdapter{
		cfg:        cfg,
		caps:       vendorsync.NewCapabilitySet(caps...),
		httpClient: &http.Client{Timeout: cfg.EffectiveTimeout()},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Kind implements vendorsync.VendorAdapter
func (a *WebhookAdapter) Kind() vendorsync.AdapterKind { return vendorsync.AdapterKindWebhook }

// Capabilities implements vendorsync.VendorAdapter
func (a *WebhookAdapter) Capabilities() vendorsync.CapabilitySet { return a.caps }

// Connect implements vendorsync.VendorAdapter
func (a *WebhookAdapter) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.conn.connect()
	return nil
}

// Disconnect implements vendorsync.VendorAdapter
func (a *WebhookAdapter) Disconnect(_ context.Context) error {
	a.conn.disconnect()
	return nil
}

// FetchInventory always fails: webhook vendors push instead of being polled
func (a *WebhookAdapter) FetchInventory(context.Context, string) ([]vendorsync.VendorRecord, error) {
	return nil, vendorsync.NewCapabilityUnsupportedError(a.Kind(), vendorsync.CapabilityFetchInventory)
}

// FetchPricing always fails
func (a *WebhookAdapter) FetchPricing(context.Context, string) ([]vendorsync.VendorRecord, error) {
	return nil, vendorsync.NewCapabilityUnsupportedError(a.Kind(), vendorsync.CapabilityFetchPricing)
}

// FetchOrders always fails
func (a *WebhookAdapter) FetchOrders(context.Context, string) ([]vendorsync.VendorRecord, error) {
	return nil, vendorsync.NewCapabilityUnsupportedError(a.Kind(), vendorsync.CapabilityFetchOrders)
}

// FetchCatalog always fails
func (a *WebhookAdapter) FetchCatalog(context.Context, string) ([]vendorsync.VendorRecord, error) {
	return nil, vendorsync.NewCapabilityUnsupportedError(a.Kind(), vendorsync.CapabilityFetchCatalog)
}

// SendOrder posts the order to the vendor's order endpoint
func (a *WebhookAdapter) SendOrder(ctx context.Context, order vendorsync.VendorRecord) error {
	if err := capabilityGuard(a.Kind(), a.caps, vendorsync.CapabilitySendOrder); err != nil {
		return err
	}
	if err := a.conn.check(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal order: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.OrderEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.WebhookSecret != "" {
		req.Header.Set(HeaderWebhookSignature, "sha256="+SignPayload(a.cfg.WebhookSecret, body))
	}

	const op = "POST order endpoint"
	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return ctxErr
		}
		return vendorsync.NewTransientError(op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxAPIResponseSize))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(op, resp.StatusCode)
	}
	return nil
}

// webhookPayload is the pushed document
type webhookPayload struct {
	DeliveryID string                    `json:"delivery_id"`
	SyncType   vendorsync.SyncType       `json:"sync_type"`
	Records    []vendorsync.VendorRecord `json:"records"`
}

// ParseInbound verifies the signature when configured, then decodes the
// payload. A missing delivery id is derived from the body hash.
func (a *WebhookAdapter) ParseInbound(_ context.Context, vendorID string, body []byte, signature string) (*vendorsync.InboundBatch, error) {
	if a.cfg.SignatureValidation {
		if signature == "" {
			return nil, fmt.Errorf("%w: missing signature", vendorsync.ErrSignatureInvalid)
		}
		if !VerifyPayload(a.cfg.WebhookSecret, body, signature) {
			return nil, fmt.Errorf("%w: signature mismatch", vendorsync.ErrSignatureInvalid)
		}
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, vendorsync.NewValidationError("body", "malformed JSON payload")
	}
	if !payload.SyncType.IsValid() || payload.SyncType.IsComposite() {
		return nil, vendorsync.NewValidationError("sync_type", fmt.Sprintf("unsupported sync type %q", payload.SyncType))
	}
	if payload.DeliveryID == "" {
		sum := sha256.Sum256(body)
		payload.DeliveryID = hex.EncodeToString(sum[:])
	}

	records := payload.Records
	if records == nil {
		records = []vendorsync.VendorRecord{}
	}
	for i := range records {
		if records[i].VendorID == "" {
			records[i].VendorID = vendorID
		}
		records[i].Domain = payload.SyncType
		records[i].Source = vendorsync.SourceVendor
	}

	a.logger.Debug("Parsed inbound webhook",
		zap.String("vendor_id", vendorID),
		zap.String("delivery_id", payload.DeliveryID),
		zap.String("sync_type", payload.SyncType.String()),
		zap.Int("records", len(records)),
	)
	return &vendorsync.InboundBatch{
		DeliveryID: payload.DeliveryID,
		SyncType:   payload.SyncType,
		Records:    records,
	}, nil
}

var (
	_ vendorsync.VendorAdapter  = (*WebhookAdapter)(nil)
	_ vendorsync.InboundAdapter = (*WebhookAdapter)(nil)
)
