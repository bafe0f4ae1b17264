package tools

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is returned when the model calls a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ValidationError represents a tool argument validation error.
type ValidationError struct {
	Tool    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Tool == "" {
		return e.Field + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %s", e.Tool, e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// GetString extracts a string argument from the args map.
func GetString(args map[string]any, key string) (string, bool) {
	val, ok := args[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetStringDefault extracts a string argument with a default value.
func GetStringDefault(args map[string]any, key, defaultVal string) string {
	if val, ok := GetString(args, key); ok {
		return val
	}
	return defaultVal
}

// RequireString extracts a non-empty string argument.
func RequireString(args map[string]any, key string) (string, error) {
	val, ok := GetString(args, key)
	if !ok || val == "" {
		return "", NewValidationError(key, "required string argument")
	}
	return val, nil
}

// GetStringSlice extracts a string slice from args.
// Models return JSON arrays as []any; non-string items are skipped.
func GetStringSlice(args map[string]any, key string) ([]string, bool) {
	val, ok := args[key]
	if !ok {
		return nil, false
	}

	switch v := val.(type) {
	case []string:
		return v, true
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result, len(result) > 0
	}
	return nil, false
}

// getObjectSlice extracts an array of objects from args.
func getObjectSlice(args map[string]any, key string) ([]map[string]any, bool) {
	val, ok := args[key]
	if !ok {
		return nil, false
	}

	switch v := val.(type) {
	case []map[string]any:
		return v, true
	case []any:
		result := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				result = append(result, obj)
			}
		}
		return result, true
	}
	return nil, false
}
