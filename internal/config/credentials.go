package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	apperrors "github.com/diogo/geminichat/internal/errors"
)

const apiKeyFileName = "api_key.txt"

// APIKeyEnvVars are checked in order before the key file
var APIKeyEnvVars = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

// GetAPIKeyPath returns the path to the API key file in dir
func GetAPIKeyPath(dir string) string {
	return filepath.Join(dir, apiKeyFileName)
}

// LoadAPIKey returns the API key from the environment or the key file in
// dir, trimmed of whitespace. A missing key is not an error; it returns "".
func LoadAPIKey(dir string) (string, error) {
	for _, name := range APIKeyEnvVars {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			return key, nil
		}
	}

	data, err := os.ReadFile(GetAPIKeyPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read API key file: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}

// SaveAPIKey writes key to the key file in dir with owner-only permissions
func SaveAPIKey(dir, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return apperrors.NewValidationError("api key", "must not be empty")
	}
	if err := EnsureDir(dir); err != nil {
		return err
	}

	if err := renameio.WriteFile(GetAPIKeyPath(dir), []byte(key+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write API key file: %w", err)
	}
	return nil
}

// MaskAPIKey hides all but the last four characters of key
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
