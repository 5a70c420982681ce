package action

import (
	"fmt"
)

// ValidationKind classifies a ValidationError.
type ValidationKind int

const (
	NotUniqueIdentifiers ValidationKind = iota
	IdentifierNotFound
	InvalidType
	InvalidValue
	UnexpectedNullObject
)

func (k ValidationKind) String() string {
	switch k {
	case NotUniqueIdentifiers:
		return "notUniqueIdentifiers"
	case IdentifierNotFound:
		return "identifierNotFound"
	case InvalidType:
		return "invalidType"
	case InvalidValue:
		return "invalidValue"
	case UnexpectedNullObject:
		return "unexpectedNullObject"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ValidationError reports malformed configuration or decoded data.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func NewValidationError(kind ValidationKind, message string) *ValidationError {
	return &ValidationError{Kind: kind, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any ValidationError of the same kind.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}
