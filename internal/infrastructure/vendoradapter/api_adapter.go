package vendoradapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/erp/vendorsync/internal/infrastructure/vendorfile"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxAPIResponseSize limits the response body size
const maxAPIResponseSize = 10 * 1024 * 1024

// apiEndpoints maps fetch domains to their resource path
var apiEndpoints = map[vendorsync.SyncType]string{
	vendorsync.SyncTypeInventory: "/inventory",
	vendorsync.SyncTypePricing:   "/pricing",
	vendorsync.SyncTypeOrder:     "/orders",
	vendorsync.SyncTypeCatalog:   "/catalog",
}

// APIAdapter talks to a request/response vendor API over HTTPS
type APIAdapter struct {
	cfg        vendorsync.AdapterConfig
	caps       vendorsync.CapabilitySet
	httpClient *http.Client
	limiter    *rate.Limiter
	conn       connection
	now        func() time.Time
	logger     *zap.Logger
}

// APIAdapterOption configures an APIAdapter
type APIAdapterOption func(*APIAdapter)

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(c *http.Client) APIAdapterOption {
	return func(a *APIAdapter) {
		a.httpClient = c
	}
}

// WithAPIClock overrides the clock used for request timestamps
func WithAPIClock(now func() time.Time) APIAdapterOption {
	return func(a *APIAdapter) {
		a.now = now
	}
}

// WithAPILogger sets the logger
func WithAPILogger(l *zap.Logger) APIAdapterOption {
	return func(a *APIAdapter) {
		a.logger = l
	}
}

// NewAPIAdapter creates an adapter for an api-kind vendor
func NewAPIAdapter(cfg vendorsync.AdapterConfig, opts ...APIAdapterOption) (*APIAdapter, error) {
	if cfg.Kind != vendorsync.AdapterKindAPI {
		return nil, fmt.Errorf("%w: expected api adapter, got %q", vendorsync.ErrInvalidAdapterConfig, cfg.Kind)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: base url: %v", vendorsync.ErrInvalidAdapterConfig, err)
	}

	a := &APIAdapter{
		cfg: cfg,
		caps: vendorsync.NewCapabilitySet(
			vendorsync.CapabilityFetchInventory,
			vendorsync.CapabilityFetchPricing,
			vendorsync.CapabilityFetchOrders,
			vendorsync.CapabilityFetchCatalog,
			vendorsync.CapabilitySendOrder,
		),
		httpClient: &http.Client{Timeout: cfg.EffectiveTimeout()},
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	if cfg.RateLimit > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Kind implements vendorsync.VendorAdapter
func (a *APIAdapter) Kind() vendorsync.AdapterKind { return vendorsync.AdapterKindAPI }

// Capabilities implements vendorsync.VendorAdapter
func (a *APIAdapter) Capabilities() vendorsync.CapabilitySet { return a.caps }

// Connect implements vendorsync.VendorAdapter
func (a *APIAdapter) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.conn.connect()
	return nil
}

// Disconnect implements vendorsync.VendorAdapter
func (a *APIAdapter) Disconnect(_ context.Context) error {
	a.conn.disconnect()
	return nil
}

// FetchInventory implements vendorsync.VendorAdapter
func (a *APIAdapter) FetchInventory(ctx context.Context, vendorID string) ([]vendorsync.VendorRecord, error) {
	return a.fetch(ctx, vendorID, vendorsync.SyncTypeInventory)
}

// FetchPricing implements vendorsync.VendorAdapter
func (a *APIAdapter) FetchPricing(ctx context.Context, vendorID string) ([]vendorsync.VendorRecord, error) {
	return a.fetch(ctx, vendorID, vendorsync.SyncTypePricing)
}

// FetchOrders implements vendorsync.VendorAdapter
func (a *APIAdapter) FetchOrders(ctx context.Context, vendorID string) ([]vendorsync.VendorRecord, error) {
	return a.fetch(ctx, vendorID, vendorsync.SyncTypeOrder)
}

// FetchCatalog implements vendorsync.VendorAdapter
func (a *APIAdapter) FetchCatalog(ctx context.Context, vendorID string) ([]vendorsync.VendorRecord, error) {
	return a.fetch(ctx, vendorID, vendorsync.SyncTypeCatalog)
}

// SendOrder implements vendorsync.VendorAdapter
func (a *APIAdapter) SendOrder(ctx context.Context, order vendorsync.VendorRecord) error {
	if err := a.conn.check(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("api: failed to marshal order: %w", err)
	}
	_, err = a.do(ctx, http.MethodPost, "/orders", nil, body)
	return err
}

func (a *APIAdapter) fetch(ctx context.Context, vendorID string, domain vendorsync.SyncType) ([]vendorsync.VendorRecord, error) {
	if err := fetchGuard(a.Kind(), a.caps, domain); err != nil {
		return nil, err
	}
	if err := a.conn.check(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("vendor_id", vendorID)
	body, err := a.do(ctx, http.MethodGet, apiEndpoints[domain], q, nil)
	if err != nil {
		return nil, err
	}

	res, err := vendorfile.Decode(body, vendorsync.FormatJSON, vendorID, domain)
	if errors.Is(err, vendorfile.ErrEmptyFile) {
		return []vendorsync.VendorRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vendorsync.ErrVendorRequestFailed, err)
	}
	a.logger.Debug("Fetched vendor records",
		zap.String("vendor_id", vendorID),
		zap.String("domain", domain.String()),
		zap.Int("count", len(res.Records)),
	)
	return res.Records, nil
}

// do performs a signed request and classifies failures for the retry policy
func (a *APIAdapter) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	op := method + " " + path
	endpoint := strings.TrimRight(a.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			// the wait would outlive the deadline
			return nil, vendorsync.NewTransientError(op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("api: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderAPIKey, a.cfg.APIKey)
	if a.cfg.APISecret != "" {
		ts := strconv.FormatInt(a.now().Unix(), 10)
		req.Header.Set(HeaderTimestamp, ts)
		req.Header.Set(HeaderSignature, SignRequest(a.cfg.APISecret, ts, method, req.URL.Path, body))
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return nil, ctxErr
		}
		return nil, vendorsync.NewTransientError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseSize))
	if err != nil {
		return nil, vendorsync.NewTransientError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(op, resp.StatusCode)
	}
	return respBody, nil
}

// classifyStatus maps a non-2xx status onto the error taxonomy
func classifyStatus(op string, status int) error {
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return &vendorsync.TransportError{
			Op: op, StatusCode: status, Transient: true,
			Err: errors.New(http.StatusText(status)),
		}
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return &vendorsync.TransportError{Op: op, StatusCode: status, Err: vendorsync.ErrVendorAuthFailed}
	}
	return &vendorsync.TransportError{Op: op, StatusCode: status, Err: vendorsync.ErrVendorRequestFailed}
}

var _ vendorsync.VendorAdapter = (*APIAdapter)(nil)
