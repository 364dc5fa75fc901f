package vendorsync

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/go-playground/validator/v10"
)

// RecordRule is a domain rule checked after struct validation
type RecordRule func(r vendorsync.VendorRecord) error

// DefaultRules returns the built-in rules for a domain
func DefaultRules(domain vendorsync.SyncType) []RecordRule {
	switch domain {
	case vendorsync.SyncTypeInventory:
		return []RecordRule{requireQuantity, nonNegativeQuantity}
	case vendorsync.SyncTypePricing:
		return []RecordRule{requirePrice, positivePrice}
	case vendorsync.SyncTypeOrder:
		return []RecordRule{requireStatus, nonNegativeQuantity}
	case vendorsync.SyncTypeCatalog:
		return []RecordRule{requireName}
	}
	return nil
}

func requireQuantity(r vendorsync.VendorRecord) error {
	if r.Quantity == nil {
		return vendorsync.NewValidationError("quantity", "is required")
	}
	return nil
}

func nonNegativeQuantity(r vendorsync.VendorRecord) error {
	if r.Quantity != nil && r.Quantity.IsNegative() {
		return fmt.Errorf("%w: quantity %s must not be negative", vendorsync.ErrBusinessRule, r.Quantity.String())
	}
	return nil
}

func requirePrice(r vendorsync.VendorRecord) error {
	if r.Price == nil {
		return vendorsync.NewValidationError("price", "is required")
	}
	return nil
}

func positivePrice(r vendorsync.VendorRecord) error {
	if r.Price != nil && !r.Price.IsPositive() {
		return fmt.Errorf("%w: price %s must be positive", vendorsync.ErrBusinessRule, r.Price.String())
	}
	return nil
}

func requireStatus(r vendorsync.VendorRecord) error {
	if strings.TrimSpace(r.Status) == "" {
		return vendorsync.NewValidationError("status", "is required")
	}
	return nil
}

func requireName(r vendorsync.VendorRecord) error {
	if strings.TrimSpace(r.Name) == "" {
		return vendorsync.NewValidationError("name", "is required")
	}
	return nil
}

// recordValidator runs struct tags first, then the domain rules
type recordValidator struct {
	validate *validator.Validate
	rules    []RecordRule
}

func newRecordValidator(rules []RecordRule) *recordValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &recordValidator{validate: v, rules: rules}
}

// Check returns the first problem found, as a *vendorsync.ValidationError or
// an error wrapping vendorsync.ErrBusinessRule.
func (v *recordValidator) Check(r vendorsync.VendorRecord) error {
	if err := v.validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return vendorsync.NewValidationError(fe.Field(), validationMessage(fe))
		}
		return vendorsync.NewValidationError("", err.Error())
	}
	for _, rule := range v.rules {
		if err := rule(r); err != nil {
			return err
		}
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "uppercase":
		return "must be uppercase"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	default:
		return "is invalid"
	}
}
