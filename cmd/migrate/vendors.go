package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// vendorDefinition is one entry of a vendor definitions file
type vendorDefinition struct {
	ID       string            `json:"id" validate:"required,max=64"`
	Name     string            `json:"name" validate:"required"`
	Active   *bool             `json:"active"`
	Cadences []string          `json:"cadences" validate:"dive,oneof=hourly daily weekly"`
	Adapter  adapterDefinition `json:"adapter"`
}

// adapterDefinition accepts the timeout as a duration string ("15s")
type adapterDefinition struct {
	vendorsync.AdapterConfig
	Timeout string `json:"timeout,omitempty"`
}

var definitionValidator = validator.New(validator.WithRequiredStructEnabled())

// loadVendors reads a definitions file, as YAML when the extension says so
// and as JSON otherwise.
func loadVendors(path string) ([]*vendorsync.Vendor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vendor definitions: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeVendorsYAML(data)
	}
	return decodeVendors(bytes.NewReader(data))
}

// decodeVendorsYAML converts a YAML document to JSON so both formats share
// the same field names and checks.
func decodeVendorsYAML(data []byte) ([]*vendorsync.Vendor, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode vendor definitions: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("decode vendor definitions: %w", err)
	}
	return decodeVendors(bytes.NewReader(raw))
}

// decodeVendors reads a JSON array of vendor definitions. Vendors are active
// unless the definition says otherwise.
func decodeVendors(r io.Reader) ([]*vendorsync.Vendor, error) {
	var defs []vendorDefinition
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&defs); err != nil {
		return nil, fmt.Errorf("decode vendor definitions: %w", err)
	}

	seen := make(map[string]struct{}, len(defs))
	out := make([]*vendorsync.Vendor, 0, len(defs))
	for i, def := range defs {
		if err := definitionValidator.Struct(def); err != nil {
			return nil, fmt.Errorf("vendor[%d]: %w", i, err)
		}
		if _, dup := seen[def.ID]; dup {
			return nil, fmt.Errorf("vendor[%d]: duplicate id %q", i, def.ID)
		}
		seen[def.ID] = struct{}{}

		cfg := def.Adapter.AdapterConfig
		if def.Adapter.Timeout != "" {
			d, err := time.ParseDuration(def.Adapter.Timeout)
			if err != nil {
				return nil, fmt.Errorf("vendor[%d]: timeout: %w", i, err)
			}
			cfg.Timeout = d
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("vendor[%d]: %w", i, err)
		}

		v := &vendorsync.Vendor{
			ID:            def.ID,
			Name:          def.Name,
			Active:        def.Active == nil || *def.Active,
			AdapterConfig: cfg,
		}
		for _, c := range def.Cadences {
			v.Cadences = append(v.Cadences, vendorsync.Cadence(c))
		}
		out = append(out, v)
	}
	return out, nil
}

// importVendors saves each vendor, keeping the original creation time of
// vendors that already exist. It returns how many were saved.
func importVendors(ctx context.Context, repo vendorsync.VendorRepository, vendors []*vendorsync.Vendor) (int, error) {
	for i, v := range vendors {
		if existing, err := repo.FindByID(ctx, v.ID); err == nil {
			v.CreatedAt = existing.CreatedAt
		}
		if err := repo.Save(ctx, v); err != nil {
			return i, fmt.Errorf("save vendor %s: %w", v.ID, err)
		}
	}
	return len(vendors), nil
}
