package security

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Request limits.
const (
	MaxQueryLength      = 10000
	MaxIdentifierLength = 64
	MaxGroups           = 1000
	MaxIdentifiers      = 5000
)

// ValidationError represents a field validation error.
type ValidationError struct {
	Field      string
	Value      interface{}
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// ValidateQuery checks a retrieval query: required, valid UTF-8, at most
// MaxQueryLength runes.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return &ValidationError{Field: "query", Constraint: "required"}
	}
	if !utf8.ValidString(query) {
		return &ValidationError{Field: "query", Constraint: "must be valid UTF-8"}
	}
	if n := utf8.RuneCountInString(query); n > MaxQueryLength {
		return &ValidationError{
			Field:      "query",
			Value:      n,
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxQueryLength),
		}
	}
	return nil
}

// ValidateIdentifier checks a topic key or trial identifier: required, at
// most MaxIdentifierLength runes, printable and without whitespace.
func ValidateIdentifier(field, id string) error {
	if id == "" {
		return &ValidationError{Field: field, Constraint: "required"}
	}
	if utf8.RuneCountInString(id) > MaxIdentifierLength {
		return &ValidationError{
			Field:      field,
			Value:      SanitizeForLogWithLength(id, 20),
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxIdentifierLength),
		}
	}
	for _, r := range id {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return &ValidationError{
				Field:      field,
				Value:      SanitizeForLog(id),
				Constraint: "must be printable without whitespace",
			}
		}
	}
	return nil
}

// ValidateIdentifiers checks every identifier in ids and caps the count.
func ValidateIdentifiers(field string, ids []string) error {
	if len(ids) > MaxIdentifiers {
		return &ValidationError{
			Field:      field,
			Value:      len(ids),
			Constraint: fmt.Sprintf("at most %d identifiers", MaxIdentifiers),
		}
	}
	for i, id := range ids {
		if err := ValidateIdentifier(fmt.Sprintf("%s[%d]", field, i), id); err != nil {
			return err
		}
	}
	return nil
}

// ValidateGroupCount checks the number of groups in one request.
func ValidateGroupCount(n int) error {
	if n == 0 {
		return &ValidationError{Field: "groups", Constraint: "required"}
	}
	if n > MaxGroups {
		return &ValidationError{
			Field:      "groups",
			Value:      n,
			Constraint: fmt.Sprintf("at most %d groups", MaxGroups),
		}
	}
	return nil
}
