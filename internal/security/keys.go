package security

import (
	"fmt"
	"os"
	"strings"
)

// KeySource represents where an API key was loaded from
type KeySource string

const (
	KeySourceEnvironment KeySource = "environment"
	KeySourceConfig      KeySource = "config"
	KeySourceNotSet      KeySource = "not_set"
)

// LoadedKey represents a loaded API key with metadata
type LoadedKey struct {
	Value  string    // The actual API key
	Source KeySource // Where the key was loaded from
}

// String returns a safe string representation (hides the key value)
func (k *LoadedKey) String() string {
	if k == nil || k.Value == "" {
		return "LoadedKey{Source: not_set}"
	}
	return fmt.Sprintf("LoadedKey{Source: %s, Value: %s}", k.Source, MaskKey(k.Value))
}

// IsSet returns true if the key has a value
func (k *LoadedKey) IsSet() bool {
	return k != nil && k.Value != ""
}

// GetAPIKey loads an API key, preferring the first non-empty environment
// variable in envVarNames and falling back to configValue.
func GetAPIKey(envVarNames []string, configValue string) *LoadedKey {
	for _, envVar := range envVarNames {
		if value := os.Getenv(envVar); value != "" {
			return &LoadedKey{Value: value, Source: KeySourceEnvironment}
		}
	}
	if configValue != "" {
		return &LoadedKey{Value: configValue, Source: KeySourceConfig}
	}
	return &LoadedKey{Source: KeySourceNotSet}
}

// GetGeminiKey loads the Gemini API key.
//
// Environment variables checked (in priority order):
//   - TASKFLOW_GEMINI_KEY
//   - GEMINI_API_KEY
//   - GOOGLE_API_KEY
func GetGeminiKey(configKey string) *LoadedKey {
	return GetAPIKey([]string{"TASKFLOW_GEMINI_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"}, configKey)
}

// GetOllamaKey loads the optional Ollama API key. Local servers need none.
func GetOllamaKey(configKey string) *LoadedKey {
	return GetAPIKey([]string{"TASKFLOW_OLLAMA_KEY", "OLLAMA_API_KEY"}, configKey)
}

// MaskKey masks an API key for safe logging/display.
//
// Example: "sk-1234567890abcdef" -> "sk-1***********cdef"
func MaskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// ValidateKeyFormat performs basic sanity checks on an API key.
func ValidateKeyFormat(key string) error {
	if key == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	if len(key) < 10 {
		return fmt.Errorf("API key too short (expected at least 10 characters, got %d)", len(key))
	}

	lowerKey := strings.ToLower(key)
	for _, placeholder := range []string{"your-api-key", "your_api_key", "<insert-key>"} {
		if strings.Contains(lowerKey, placeholder) {
			return fmt.Errorf("API key appears to be a placeholder: %s", placeholder)
		}
	}
	return nil
}
