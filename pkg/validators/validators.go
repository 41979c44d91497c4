// Package validators provides common validation utilities
package validators

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	messages := make([]string, len(e))
	for i, err := range e {
		messages[i] = err.Error()
	}
	return strings.Join(messages, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Common regex patterns
var (
	URLRegex      = regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`)
	UUIDRegex     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	CurrencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
)

// IsURL validates URL format
func IsURL(url string) bool {
	return URLRegex.MatchString(url)
}

// IsUUID validates UUID format
func IsUUID(uuid string) bool {
	return UUIDRegex.MatchString(uuid)
}

// IsCurrencyCode validates an ISO 4217 alphabetic currency code
func IsCurrencyCode(code string) bool {
	return CurrencyRegex.MatchString(code)
}

// IsEmpty checks if a string is empty or whitespace only
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}

// IsInList checks if a value is in a list
func IsInList(value string, list []string) bool {
	for _, item := range list {
		if value == item {
			return true
		}
	}
	return false
}
