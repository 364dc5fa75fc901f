package vendorsync

import (
	"maps"
	"time"

	"github.com/erp/vendorsync/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// RecordSource tells which side of a sync a record came from
type RecordSource string

const (
	SourceVendor   RecordSource = "vendor"
	SourceInternal RecordSource = "internal"
)

// IsValid checks if the source is valid
func (s RecordSource) IsValid() bool {
	return s == SourceVendor || s == SourceInternal
}

// VendorRecord is one inventory line, price line, order or catalog entry.
// Quantity and Price are nil when the source did not supply them.
type VendorRecord struct {
	ID          string            `json:"id,omitempty"`
	BusinessKey string            `json:"business_key" validate:"required,max=128"`
	VendorID    string            `json:"vendor_id" validate:"required,max=64"`
	Domain      SyncType          `json:"domain"`
	Source      RecordSource      `json:"source"`
	Name        string            `json:"name,omitempty" validate:"max=255"`
	Quantity    *decimal.Decimal  `json:"quantity,omitempty"`
	Price       *decimal.Decimal  `json:"price,omitempty"`
	Currency    string            `json:"currency,omitempty" validate:"omitempty,len=3,uppercase"`
	Status      string            `json:"status,omitempty" validate:"max=32"`
	Version     int64             `json:"version" validate:"gte=0"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Clone returns a deep copy
func (r VendorRecord) Clone() VendorRecord {
	out := r
	if r.Quantity != nil {
		q := *r.Quantity
		out.Quantity = &q
	}
	if r.Price != nil {
		p := *r.Price
		out.Price = &p
	}
	if r.Attributes != nil {
		out.Attributes = maps.Clone(r.Attributes)
	}
	return out
}

// Equal compares two records field by field, using decimal equality for
// numeric values and instant equality for timestamps.
func (r VendorRecord) Equal(o VendorRecord) bool {
	return r.ID == o.ID &&
		r.BusinessKey == o.BusinessKey &&
		r.VendorID == o.VendorID &&
		r.Domain == o.Domain &&
		r.Source == o.Source &&
		r.Name == o.Name &&
		decimalPtrEqual(r.Quantity, o.Quantity) &&
		decimalPtrEqual(r.Price, o.Price) &&
		r.Currency == o.Currency &&
		r.Status == o.Status &&
		r.Version == o.Version &&
		maps.Equal(r.Attributes, o.Attributes) &&
		r.CreatedAt.Equal(o.CreatedAt) &&
		r.UpdatedAt.Equal(o.UpdatedAt)
}

// LastModified returns UpdatedAt, falling back to CreatedAt
func (r VendorRecord) LastModified() time.Time {
	if !r.UpdatedAt.IsZero() {
		return r.UpdatedAt
	}
	return r.CreatedAt
}

// Fields exposes the record to predicate filters. Attributes are flattened
// under "attributes.<name>".
func (r VendorRecord) Fields() shared.Fields {
	f := shared.Fields{
		"business_key": r.BusinessKey,
		"vendor_id":    r.VendorID,
		"domain":       string(r.Domain),
		"name":         r.Name,
		"currency":     r.Currency,
		"status":       r.Status,
		"version":      r.Version,
	}
	if r.Quantity != nil {
		f["quantity"] = *r.Quantity
	}
	if r.Price != nil {
		f["price"] = *r.Price
	}
	if !r.UpdatedAt.IsZero() {
		f["updated_at"] = r.UpdatedAt
	}
	for k, v := range r.Attributes {
		f["attributes."+k] = v
	}
	return f
}

func decimalPtrEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// DecimalPtr is a convenience for building records
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
