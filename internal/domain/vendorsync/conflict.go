package vendorsync

import (
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

// ConflictType classifies a disagreement between vendor and internal data
type ConflictType string

const (
	// ConflictTypeData means a mutable value differs
	ConflictTypeData ConflictType = "data"
	// ConflictTypeVersion means the records carry different versions
	ConflictTypeVersion ConflictType = "version"
)

// ConflictDescriptor records one disagreeing field
type ConflictDescriptor struct {
	Field         string       `json:"field"`
	VendorValue   any          `json:"vendor_value"`
	InternalValue any          `json:"internal_value"`
	Type          ConflictType `json:"type"`
}

// ConflictEnvelope wraps a record that was deliberately left unresolved for
// an operator.
type ConflictEnvelope struct {
	Type           ConflictType         `json:"type"`
	VendorValue    VendorRecord         `json:"vendor_value"`
	InternalValue  VendorRecord         `json:"internal_value"`
	Conflicts      []ConflictDescriptor `json:"conflicts,omitempty"`
	FlaggedAt      time.Time            `json:"flagged_at"`
	RequiresReview bool                 `json:"requires_review"`
}

// DetectConflicts compares the fields a vendor supplied against the internal
// record. An empty result means the vendor data can pass through unresolved.
func DetectConflicts(vendor, internal VendorRecord) []ConflictDescriptor {
	var out []ConflictDescriptor

	if vendor.Quantity != nil && !decimalPtrEqual(vendor.Quantity, internal.Quantity) {
		out = append(out, ConflictDescriptor{
			Field:         "quantity",
			VendorValue:   decimalValue(vendor.Quantity),
			InternalValue: decimalValue(internal.Quantity),
			Type:          ConflictTypeData,
		})
	}
	if vendor.Price != nil && !decimalPtrEqual(vendor.Price, internal.Price) {
		out = append(out, ConflictDescriptor{
			Field:         "price",
			VendorValue:   decimalValue(vendor.Price),
			InternalValue: decimalValue(internal.Price),
			Type:          ConflictTypeData,
		})
	}
	if vendor.Currency != "" && vendor.Currency != internal.Currency {
		out = append(out, ConflictDescriptor{Field: "currency", VendorValue: vendor.Currency, InternalValue: internal.Currency, Type: ConflictTypeData})
	}
	if vendor.Status != "" && vendor.Status != internal.Status {
		out = append(out, ConflictDescriptor{Field: "status", VendorValue: vendor.Status, InternalValue: internal.Status, Type: ConflictTypeData})
	}
	if vendor.Name != "" && vendor.Name != internal.Name {
		out = append(out, ConflictDescriptor{Field: "name", VendorValue: vendor.Name, InternalValue: internal.Name, Type: ConflictTypeData})
	}
	if vendor.Version != internal.Version {
		out = append(out, ConflictDescriptor{Field: "version", VendorValue: vendor.Version, InternalValue: internal.Version, Type: ConflictTypeVersion})
	}
	return out
}

// ClassifyConflicts returns version when any descriptor is a version
// conflict, data otherwise.
func ClassifyConflicts(conflicts []ConflictDescriptor) ConflictType {
	for _, c := range conflicts {
		if c.Type == ConflictTypeVersion {
			return ConflictTypeVersion
		}
	}
	return ConflictTypeData
}

func decimalValue(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// mergeRecords overlays every field the vendor supplied onto internal.
// Identity (id, created_at) always comes from internal.
func mergeRecords(vendor, internal VendorRecord) VendorRecord {
	out := internal.Clone()

	if vendor.BusinessKey != "" {
		out.BusinessKey = vendor.BusinessKey
	}
	if vendor.VendorID != "" {
		out.VendorID = vendor.VendorID
	}
	if vendor.Domain != "" {
		out.Domain = vendor.Domain
	}
	if vendor.Source != "" {
		out.Source = vendor.Source
	}
	if vendor.Name != "" {
		out.Name = vendor.Name
	}
	if vendor.Quantity != nil {
		q := *vendor.Quantity
		out.Quantity = &q
	}
	if vendor.Price != nil {
		p := *vendor.Price
		out.Price = &p
	}
	if vendor.Currency != "" {
		out.Currency = vendor.Currency
	}
	if vendor.Status != "" {
		out.Status = vendor.Status
	}
	if vendor.Version != 0 {
		out.Version = vendor.Version
	}
	if len(vendor.Attributes) > 0 {
		if out.Attributes == nil {
			out.Attributes = make(map[string]string, len(vendor.Attributes))
		}
		maps.Copy(out.Attributes, vendor.Attributes)
	}
	if !vendor.UpdatedAt.IsZero() {
		out.UpdatedAt = vendor.UpdatedAt
	}

	if internal.ID == "" {
		out.ID = vendor.ID
	}
	if internal.CreatedAt.IsZero() {
		out.CreatedAt = vendor.CreatedAt
	}
	return out
}
