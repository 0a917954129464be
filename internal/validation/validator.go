package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// idempotencyKeyRules bounds the Idempotency-Key header.
const idempotencyKeyRules = "required,max=255,printascii"

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register struct-level validation for CreateOrderRequest to reject
	// identifiers that are only whitespace.
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	if req.CustomerID != "" && strings.TrimSpace(req.CustomerID) == "" {
		sl.ReportError(req.CustomerID, "customer_id", "CustomerID", "notblank", "")
	}
	if req.ItemID != "" && strings.TrimSpace(req.ItemID) == "" {
		sl.ReportError(req.ItemID, "item_id", "ItemID", "notblank", "")
	}
}

// ValidateIdempotencyKey checks a client-supplied idempotency key: present,
// at most 255 bytes and printable ASCII only.
func ValidateIdempotencyKey(v *validatorv10.Validate, key string) error {
	return v.Var(key, idempotencyKeyRules)
}
