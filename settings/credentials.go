// Package settings provides storage for dialogkit user settings: API keys
// for the translation and OCR services, the translator prompt override and
// the default locations of the dialogue log and translation memo.
//
// All settings live in the XDG data directory:
//
//	$XDG_DATA_HOME/dialogkit/  (default: ~/.local/share/dialogkit/)
//
// Files stored:
//   - auth.json     API keys per service, mode 0600
//   - prompts.json  translator system prompt override
//   - dialogue.db   dialogue log
//   - dialogkit.memo translation memo
//
// Lookup order for API keys:
//  1. --api-key flag (highest priority)
//  2. DIALOGKIT_API_KEY, then the service variable (GOOGLE_API_KEY, ...)
//  3. This credential store
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	dataDirName = "dialogkit"
	fileName    = "auth.json"

	// EnvAPIKey overrides the stored key of the active provider.
	EnvAPIKey = "DIALOGKIT_API_KEY"
)

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Info is the credential stored per service in auth.json.
type Info struct {
	// Type is always "api"; kept so the file stays self-describing.
	Type string `json:"type"`
	Key  string `json:"key,omitempty"`
	// BaseURL is the endpoint of custom-openai and ollama providers.
	BaseURL string `json:"baseUrl,omitempty"`
}

// IsAPI returns true if this is an API key entry.
func (i *Info) IsAPI() bool {
	return i.Type == "api"
}

// Store holds all credentials, keyed by service ID.
type Store map[string]*Info

// IDs returns the sorted service IDs with stored credentials.
func (s Store) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

// dataDir respects $XDG_DATA_HOME and falls back to ~/.local/share.
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the auth.json file path for display purposes.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// PromptsFilePath returns the path to the prompts.json file.
func PromptsFilePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "prompts.json"), nil
}

// DataDir returns the dialogkit data directory path.
func DataDir() (string, error) {
	return dataDir()
}

// DefaultLogPath returns the default dialogue log database path.
func DefaultLogPath() string {
	dir, err := dataDir()
	if err != nil {
		return "dialogue.db"
	}
	return filepath.Join(dir, "dialogue.db")
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the credential store from disk.
// Returns an empty store if the file doesn't exist or is invalid.
func Load() Store {
	path, err := filePath()
	if err != nil {
		return make(Store)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}

	var store Store
	if err := json.Unmarshal(data, &store); err != nil || store == nil {
		return make(Store)
	}
	return store
}

// Save writes the credential store to disk with 0600 permissions.
func Save(store Store) error {
	path, err := filePath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Get / Set / Remove
// ---------------------------------------------------------------------------

// Get returns the entry for a service, or nil if not found.
func Get(id string) *Info {
	return Load()[id]
}

// SetAPIKey stores an API key for a service.
func SetAPIKey(id, key string) error {
	return SetAPIKeyWithBaseURL(id, key, "")
}

// SetAPIKeyWithBaseURL stores an API key and endpoint for a service.
func SetAPIKeyWithBaseURL(id, key, baseURL string) error {
	store := Load()
	store[id] = &Info{Type: "api", Key: key, BaseURL: baseURL}
	return Save(store)
}

// Remove deletes credentials for a service.
func Remove(id string) error {
	store := Load()
	if _, ok := store[id]; !ok {
		return nil
	}
	delete(store, id)
	return Save(store)
}

// RemoveAll removes all stored credentials.
func RemoveAll() error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing auth file: %w", err)
	}
	return nil
}

// GetAPIKey retrieves the stored API key for a service.
func GetAPIKey(id string) string {
	info := Get(id)
	if info == nil || !info.IsAPI() {
		return ""
	}
	return info.Key
}

// GetBaseURL retrieves the stored endpoint for a service.
func GetBaseURL(id string) string {
	info := Get(id)
	if info == nil {
		return ""
	}
	return info.BaseURL
}

// EnvVarForProvider returns the conventional environment variable holding
// the API key of a service, or "" when it has none.
func EnvVarForProvider(id string) string {
	switch id {
	case "google":
		return "GOOGLE_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	case "opencode":
		return "OPENCODE_API_KEY"
	case "custom-openai":
		return "OPENAI_API_KEY"
	case "google-vision":
		return "GOOGLE_VISION_API_KEY"
	}
	return ""
}

// ResolveAPIKey applies the flag > environment > store lookup order.
// DIALOGKIT_API_KEY is checked before the service's own variable.
func ResolveAPIKey(id, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvAPIKey); env != "" {
		return env
	}
	if name := EnvVarForProvider(id); name != "" {
		if env := os.Getenv(name); env != "" {
			return env
		}
	}
	return GetAPIKey(id)
}

// MaskKey returns a masked version of a key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
