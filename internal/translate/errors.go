package translate

import (
	"errors"
	"fmt"
)

// ErrUntranslatable is the soft failure: the expression has no
// row-program form. Callers treat it as "evaluate this client-side or
// reject the query shape", never as a defect.
var ErrUntranslatable = errors.New("expression is not translatable")

// HardError reports a modeling or contract violation detected during
// translation. Unlike the soft ErrUntranslatable sentinel, a HardError
// means the input tree or the model is wrong and must escape to the
// caller unconverted.
//
// Hard errors:
//   - Unmapped property: a metadata-property call named a property the
//     entity's shape does not map. That call form is only emitted when
//     upstream code already guarantees the property exists.
//   - Unbound parameter: a parameter without the reserved external
//     prefix reached translation, so the tree was built incorrectly.
type HardError struct {
	// Code identifies the error category.
	Code HardErrorCode

	// Message is a human-readable description.
	Message string

	// Entity names the entity type involved, when known.
	Entity string

	// Member names the offending property (unmapped-property errors).
	Member string

	// Expr is the printed form of the offending node (unbound-parameter
	// errors).
	Expr string
}

// HardErrorCode categorizes hard translation errors.
type HardErrorCode string

const (
	// ErrCodeUnmappedProperty indicates a metadata-property call named
	// a property absent from the model.
	ErrCodeUnmappedProperty HardErrorCode = "UNMAPPED_PROPERTY"

	// ErrCodeUnboundParameter indicates a parameter without the
	// external-binding name prefix reached translation.
	ErrCodeUnboundParameter HardErrorCode = "UNBOUND_PARAMETER"
)

// Error implements the error interface.
func (e *HardError) Error() string {
	switch {
	case e.Member != "":
		return fmt.Sprintf("%s: %s (entity=%s, member=%s)", e.Code, e.Message, e.Entity, e.Member)
	case e.Expr != "":
		return fmt.Sprintf("%s: %s (expr=%s)", e.Code, e.Message, e.Expr)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsUnmappedProperty returns true if the error is an unmapped-property
// hard error. Uses errors.As to handle wrapped errors.
func IsUnmappedProperty(err error) bool {
	var he *HardError
	if errors.As(err, &he) {
		return he.Code == ErrCodeUnmappedProperty
	}
	return false
}

// IsUnboundParameter returns true if the error is an unbound-parameter
// hard error. Uses errors.As to handle wrapped errors.
func IsUnboundParameter(err error) bool {
	var he *HardError
	if errors.As(err, &he) {
		return he.Code == ErrCodeUnboundParameter
	}
	return false
}

// NewUnmappedPropertyError creates a HardError for a metadata-property
// call naming an unmapped property.
func NewUnmappedPropertyError(entity, member string) *HardError {
	return &HardError{
		Code:    ErrCodeUnmappedProperty,
		Message: "property access names a property the model does not map",
		Entity:  entity,
		Member:  member,
	}
}

// NewUnboundParameterError creates a HardError for a parameter that
// lacks the reserved external prefix.
func NewUnboundParameterError(rendered string) *HardError {
	return &HardError{
		Code:    ErrCodeUnboundParameter,
		Message: "parameter is not externally bound",
		Expr:    rendered,
	}
}
