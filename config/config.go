// Package config loads .dialogkit.yaml, the per-user configuration of the
// dialogue translator.
//
// When the file is absent every setting takes its default. Unknown keys are
// rejected so a typo never silently falls back to a default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/minios-linux/dialogkit/dialogue"
	"github.com/minios-linux/dialogkit/langmeta"
	"github.com/minios-linux/dialogkit/translate"
)

// FileName is the default config file name.
const FileName = ".dialogkit.yaml"

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .dialogkit.yaml structure.
type File struct {
	// Language is the UI language of notifications (empty = from locale).
	Language    string      `yaml:"language,omitempty"`
	Translation Translation `yaml:"translation"`
	Queue       Queue       `yaml:"queue"`
	OCR         OCR         `yaml:"ocr"`
	Catalog     Catalog     `yaml:"catalog"`
	Log         Log         `yaml:"log"`
	Memo        Memo        `yaml:"memo"`
	Server      Server      `yaml:"server"`

	// dir is the directory the file was loaded from.
	dir string
}

// Translation configures the languages and the translator.
type Translation struct {
	// From is the source language of NPC and system text (default "ja").
	From string `yaml:"from,omitempty"`
	// FromPlayer is the source language of player chat (default: From).
	FromPlayer string `yaml:"from_player,omitempty"`
	// To is the target language (default "zh-TW").
	To string `yaml:"to,omitempty"`
	// Provider is the translator provider ID (default "google").
	Provider string `yaml:"provider,omitempty"`
	// Model overrides the provider's default model.
	Model string `yaml:"model,omitempty"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url,omitempty"`
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy      string        `yaml:"proxy,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	MaxRetries int           `yaml:"max_retries,omitempty"`
	// Prompt overrides the translator system prompt.
	Prompt string `yaml:"prompt,omitempty"`
}

// Queue configures the scheduler.
type Queue struct {
	Interval time.Duration `yaml:"interval,omitempty"`
}

// OCR configures screenshot recognition.
type OCR struct {
	// Backend is "tesseract" or "google-vision".
	Backend string `yaml:"backend,omitempty"`
	// Split emits one entry per recognised line.
	Split bool `yaml:"split,omitempty"`
	// TesseractPath is the tesseract executable (default "tesseract").
	TesseractPath string `yaml:"tesseract_path,omitempty"`
}

// Catalog lists extra name files merged in front of the built-in catalog.
type Catalog struct {
	Files []string `yaml:"files,omitempty"`
}

// Log configures the dialogue log database and the runtime logger.
type Log struct {
	// DB is the SQLite path (empty = data directory default).
	DB string `yaml:"db,omitempty"`
	// Level is the zap level (default "info").
	Level string `yaml:"level,omitempty"`
}

// Memo configures the translation memo.
type Memo struct {
	Enabled bool `yaml:"enabled"`
	// Dir holds dialogkit.memo (empty = data directory).
	Dir string `yaml:"dir,omitempty"`
}

// Server configures the chat ingest endpoint.
type Server struct {
	// Listen is the address of the HTTP server (default "127.0.0.1:8898").
	Listen string `yaml:"listen,omitempty"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file exists.
func Default() *File {
	f := &File{Memo: Memo{Enabled: true}}
	f.applyDefaults()
	return f
}

func (f *File) applyDefaults() {
	t := &f.Translation
	if t.From == "" {
		t.From = langmeta.Japanese
	}
	if t.FromPlayer == "" {
		t.FromPlayer = t.From
	}
	if t.To == "" {
		t.To = langmeta.ChineseTraditional
	}
	if t.Provider == "" {
		t.Provider = translate.ProviderGoogle
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = 3
	}
	if f.Queue.Interval == 0 {
		f.Queue.Interval = time.Second
	}
	if f.OCR.Backend == "" {
		f.OCR.Backend = dialogue.BackendTesseract
	}
	if f.OCR.TesseractPath == "" {
		f.OCR.TesseractPath = "tesseract"
	}
	if f.Log.Level == "" {
		f.Log.Level = "info"
	}
	if f.Server.Listen == "" {
		f.Server.Listen = "127.0.0.1:8898"
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load loads and validates .dialogkit.yaml from the given directory.
// Returns Default() if no file exists.
func Load(dir string) (*File, error) {
	path := filepath.Join(dir, FileName)
	f, err := LoadPath(path)
	if errors.Is(err, os.ErrNotExist) {
		f = Default()
		f.dir = dir
		return f, nil
	}
	return f, err
}

// LoadPath loads and validates a config file at an explicit path.
func LoadPath(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	f := &File{Memo: Memo{Enabled: true}}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, unsupportedKey(err))
	}

	f.applyDefaults()
	f.dir = filepath.Dir(path)
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// unsupportedKey rewords yaml.v3's unknown-field error.
func unsupportedKey(err error) error {
	if strings.Contains(err.Error(), "not found in type") {
		return fmt.Errorf("unsupported key: %w", err)
	}
	return err
}

// Validate checks field values after defaults are applied.
func (f *File) Validate() error {
	t := f.Translation
	for key, lang := range map[string]string{"from": t.From, "from_player": t.FromPlayer, "to": t.To} {
		if !langmeta.Known(lang) {
			return fmt.Errorf("translation.%s: unknown language %q", key, lang)
		}
	}
	if _, ok := translate.DefaultProviders()[t.Provider]; !ok {
		return fmt.Errorf("translation.provider: unknown provider %q", t.Provider)
	}
	if t.Timeout < 0 {
		return fmt.Errorf("translation.timeout must not be negative")
	}
	if t.MaxRetries < 0 {
		return fmt.Errorf("translation.max_retries must not be negative")
	}
	if f.Queue.Interval < 0 {
		return fmt.Errorf("queue.interval must be positive")
	}
	if !slices.Contains([]string{dialogue.BackendTesseract, dialogue.BackendGoogleVision}, f.OCR.Backend) {
		return fmt.Errorf("ocr.backend: unknown backend %q (valid: %s, %s)", f.OCR.Backend, dialogue.BackendTesseract, dialogue.BackendGoogleVision)
	}
	if _, err := zapcore.ParseLevel(f.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Dir returns the directory the file was loaded from.
func (f *File) Dir() string {
	return f.dir
}

// Directive returns the translation directive stamped on new entries.
func (f *File) Directive() dialogue.Directive {
	return dialogue.Directive{
		From:       f.Translation.From,
		FromPlayer: f.Translation.FromPlayer,
		To:         f.Translation.To,
	}
}

// CatalogFiles returns the catalog files with relative paths resolved
// against the config directory.
func (f *File) CatalogFiles() []string {
	out := make([]string, 0, len(f.Catalog.Files))
	for _, p := range f.Catalog.Files {
		out = append(out, f.resolve(p))
	}
	return out
}

// LogPath returns the resolved dialogue log path, or fallback when unset.
func (f *File) LogPath(fallback string) string {
	if f.Log.DB == "" {
		return fallback
	}
	return f.resolve(f.Log.DB)
}

// MemoDir returns the resolved memo directory, or fallback when unset.
func (f *File) MemoDir(fallback string) string {
	if f.Memo.Dir == "" {
		return fallback
	}
	return f.resolve(f.Memo.Dir)
}

func (f *File) resolve(p string) string {
	if filepath.IsAbs(p) || f.dir == "" {
		return p
	}
	return filepath.Join(f.dir, p)
}

// ApplyDirective fills empty fields of d from the configuration.
func (f *File) ApplyDirective(d dialogue.Directive) dialogue.Directive {
	def := f.Directive()
	if d.From == "" {
		d.From = def.From
	}
	if d.FromPlayer == "" {
		d.FromPlayer = def.FromPlayer
	}
	if d.To == "" {
		d.To = def.To
	}
	return d
}
