package vendorsync

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/erp/vendorsync/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Adapter kinds and capabilities
// ---------------------------------------------------------------------------

// AdapterKind identifies a vendor transport variant
type AdapterKind string

const (
	// AdapterKindAPI is a request/response (ERP/CRM style) HTTP API
	AdapterKindAPI AdapterKind = "api"
	// AdapterKindFile exchanges files through an inbound and outbound location
	AdapterKindFile AdapterKind = "file"
	// AdapterKindWebhook receives pushed payloads and cannot be polled
	AdapterKindWebhook AdapterKind = "webhook"
)

// IsValid checks if the adapter kind is valid
func (k AdapterKind) IsValid() bool {
	switch k {
	case AdapterKindAPI, AdapterKindFile, AdapterKindWebhook:
		return true
	}
	return false
}

// String returns the string representation
func (k AdapterKind) String() string {
	return string(k)
}

// Capability is one fetch or push operation an adapter may support
type Capability string

const (
	CapabilityFetchInventory Capability = "fetch_inventory"
	CapabilityFetchPricing   Capability = "fetch_pricing"
	CapabilityFetchOrders    Capability = "fetch_orders"
	CapabilityFetchCatalog   Capability = "fetch_catalog"
	CapabilitySendOrder      Capability = "send_order"
)

// String returns the string representation
func (c Capability) String() string {
	return string(c)
}

// FetchCapability returns the capability needed to pull a domain
func FetchCapability(t SyncType) (Capability, error) {
	switch t {
	case SyncTypeInventory:
		return CapabilityFetchInventory, nil
	case SyncTypePricing:
		return CapabilityFetchPricing, nil
	case SyncTypeOrder:
		return CapabilityFetchOrders, nil
	case SyncTypeCatalog:
		return CapabilityFetchCatalog, nil
	}
	return "", fmt.Errorf("%w: no fetch capability for %q", ErrInvalidSyncType, t)
}

// CapabilitySet is the immutable set of capabilities an adapter declared at
// construction.
type CapabilitySet struct {
	caps []Capability
}

// NewCapabilitySet creates a capability set
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	out := make([]Capability, 0, len(caps))
	for _, c := range caps {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return CapabilitySet{caps: out}
}

// Has reports whether c is in the set
func (s CapabilitySet) Has(c Capability) bool {
	return slices.Contains(s.caps, c)
}

// List returns a copy of the capabilities
func (s CapabilitySet) List() []Capability {
	return slices.Clone(s.caps)
}

// ---------------------------------------------------------------------------
// Adapter ports
// ---------------------------------------------------------------------------

// VendorAdapter is the uniform interface over every vendor transport.
// Calls to capabilities outside Capabilities() return a
// *CapabilityUnsupportedError.
type VendorAdapter interface {
	Kind() AdapterKind
	Capabilities() CapabilitySet

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	FetchInventory(ctx context.Context, vendorID string) ([]VendorRecord, error)
	FetchPricing(ctx context.Context, vendorID string) ([]VendorRecord, error)
	FetchOrders(ctx context.Context, vendorID string) ([]VendorRecord, error)
	FetchCatalog(ctx context.Context, vendorID string) ([]VendorRecord, error)
	SendOrder(ctx context.Context, order VendorRecord) error
}

// InboundBatch is a verified, decoded push payload
type InboundBatch struct {
	DeliveryID string
	SyncType   SyncType
	Records    []VendorRecord
}

// InboundAdapter is implemented by adapters that accept pushed payloads
type InboundAdapter interface {
	// ParseInbound verifies the signature (when configured) before decoding body
	ParseInbound(ctx context.Context, vendorID string, body []byte, signature string) (*InboundBatch, error)
}

// AdapterFactory builds (or returns a cached) adapter for a vendor
type AdapterFactory interface {
	ForVendor(ctx context.Context, vendor *Vendor) (VendorAdapter, error)
}

// Fetch pulls one domain through the matching adapter capability
func Fetch(ctx context.Context, a VendorAdapter, vendorID string, t SyncType) ([]VendorRecord, error) {
	switch t {
	case SyncTypeInventory:
		return a.FetchInventory(ctx, vendorID)
	case SyncTypePricing:
		return a.FetchPricing(ctx, vendorID)
	case SyncTypeOrder:
		return a.FetchOrders(ctx, vendorID)
	case SyncTypeCatalog:
		return a.FetchCatalog(ctx, vendorID)
	}
	return nil, fmt.Errorf("%w: cannot fetch %q", ErrInvalidSyncType, t)
}

// ---------------------------------------------------------------------------
// Adapter configuration
// ---------------------------------------------------------------------------

// Supported payload formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// AdapterConfig is the per-vendor transport configuration. It is owned by
// the vendor and read-only during execution.
type AdapterConfig struct {
	Kind AdapterKind `json:"kind"`

	// request/response
	BaseURL   string `json:"base_url,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	APISecret string `json:"api_secret,omitempty"`

	// file drop; paths are directories or "s3://bucket/prefix" locations
	InboundPath  string `json:"inbound_path,omitempty"`
	OutboundPath string `json:"outbound_path,omitempty"`

	// webhook
	SignatureValidation bool   `json:"signature_validation,omitempty"`
	WebhookSecret       string `json:"webhook_secret,omitempty"`
	OrderEndpoint       string `json:"order_endpoint,omitempty"`

	Timeout       time.Duration `json:"timeout,omitempty"`
	RetryAttempts int           `json:"retry_attempts,omitempty"`
	Formats       []string      `json:"formats,omitempty"`

	// RateLimit caps outbound API requests per second; 0 means unlimited
	RateLimit float64 `json:"rate_limit,omitempty"`
	RateBurst int     `json:"rate_burst,omitempty"`

	// RecordFilter drops inbound records that do not match
	RecordFilter shared.Predicate `json:"record_filter,omitempty"`
}

// Default adapter settings
const (
	DefaultAdapterTimeout = 30 * time.Second
)

// Validate checks the configuration for its adapter kind
func (c *AdapterConfig) Validate() error {
	if !c.Kind.IsValid() {
		return fmt.Errorf("%w: unknown adapter kind %q", ErrInvalidAdapterConfig, c.Kind)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout cannot be negative", ErrInvalidAdapterConfig)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: retry attempts cannot be negative", ErrInvalidAdapterConfig)
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return fmt.Errorf("%w: rate limit cannot be negative", ErrInvalidAdapterConfig)
	}
	for _, f := range c.Formats {
		if f != FormatJSON && f != FormatCSV {
			return fmt.Errorf("%w: unsupported format %q", ErrInvalidAdapterConfig, f)
		}
	}
	if err := c.RecordFilter.Validate(); err != nil {
		return fmt.Errorf("%w: record filter: %v", ErrInvalidAdapterConfig, err)
	}

	switch c.Kind {
	case AdapterKindAPI:
		if c.BaseURL == "" {
			return fmt.Errorf("%w: base url is required", ErrInvalidAdapterConfig)
		}
		if c.APIKey == "" {
			return fmt.Errorf("%w: api key is required", ErrInvalidAdapterConfig)
		}
	case AdapterKindFile:
		if c.InboundPath == "" {
			return fmt.Errorf("%w: inbound path is required", ErrInvalidAdapterConfig)
		}
	case AdapterKindWebhook:
		if c.SignatureValidation && c.WebhookSecret == "" {
			return fmt.Errorf("%w: webhook secret is required when signature validation is enabled", ErrInvalidAdapterConfig)
		}
	}
	return nil
}

// EffectiveTimeout returns the configured timeout or the default
func (c *AdapterConfig) EffectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultAdapterTimeout
	}
	return c.Timeout
}

// EffectiveFormats returns the configured formats in preference order
func (c *AdapterConfig) EffectiveFormats() []string {
	if len(c.Formats) == 0 {
		return []string{FormatJSON, FormatCSV}
	}
	return c.Formats
}
