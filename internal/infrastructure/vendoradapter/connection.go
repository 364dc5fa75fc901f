// Package vendoradapter implements the vendor transports: request/response
// HTTP APIs, file drops and pushed webhooks.
package vendoradapter

import (
	"context"
	"sync"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
)

// connection counts active sessions so concurrent jobs for the same vendor
// can share one cached adapter.
type connection struct {
	mu    sync.Mutex
	users int
}

func (c *connection) connect() {
	c.mu.Lock()
	c.users++
	c.mu.Unlock()
}

func (c *connection) disconnect() {
	c.mu.Lock()
	if c.users > 0 {
		c.users--
	}
	c.mu.Unlock()
}

func (c *connection) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.users == 0 {
		return vendorsync.ErrAdapterNotConnected
	}
	return nil
}

// capabilityGuard returns CapabilityUnsupported unless caps declares c
func capabilityGuard(kind vendorsync.AdapterKind, caps vendorsync.CapabilitySet, c vendorsync.Capability) error {
	if !caps.Has(c) {
		return vendorsync.NewCapabilityUnsupportedError(kind, c)
	}
	return nil
}

// fetchGuard checks the fetch capability for a domain
func fetchGuard(kind vendorsync.AdapterKind, caps vendorsync.CapabilitySet, domain vendorsync.SyncType) error {
	c, err := vendorsync.FetchCapability(domain)
	if err != nil {
		return err
	}
	return capabilityGuard(kind, caps, c)
}
