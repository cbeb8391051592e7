package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/minios-linux/dialogkit/dialogue"
	"github.com/minios-linux/dialogkit/langmeta"
)

// runFunc executes a command and returns its standard output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Tesseract runs the tesseract command-line tool.
type Tesseract struct {
	// Path is the tesseract executable (default "tesseract").
	Path string

	run runFunc
}

// NewTesseract returns a recognizer using the executable at path.
func NewTesseract(path string) *Tesseract {
	if path == "" {
		path = "tesseract"
	}
	return &Tesseract{Path: path, run: runCommand}
}

func (t *Tesseract) Kind() string { return dialogue.BackendTesseract }

// Args returns the tesseract arguments for an image in lang. Japanese is
// read as a single block with both horizontal and vertical models.
func (t *Tesseract) Args(imagePath, lang string) []string {
	models := langmeta.Resolve(lang).Tesseract
	if len(models) == 0 {
		models = []string{"eng"}
	}
	args := []string{imagePath, "stdout", "-l", strings.Join(models, "+")}
	if langmeta.IsJapanese(lang) {
		args = append(args, "--psm", "6", "-c", "preserve_interword_spaces=1")
	}
	return args
}

func (t *Tesseract) Recognize(ctx context.Context, imagePath, lang string) (string, error) {
	run := t.run
	if run == nil {
		run = runCommand
	}
	out, err := run(ctx, t.Path, t.Args(imagePath, lang)...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", &ConfigError{Message: fmt.Sprintf("tesseract not found at %q", t.Path)}
		}
		return "", fmt.Errorf("running tesseract: %w", err)
	}
	return string(out), nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}
