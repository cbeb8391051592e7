// Package ocr turns screenshots of the game's dialogue box into queued
// dialogue entries.
//
// A Recognizer extracts raw text from an image. The Service picks the
// recognizer named by the capture, cleans its output with the normalizer,
// splits it into lines when asked and appends one entry per piece to the
// translation queue. Every failure is reported to the user as a
// notification; nothing is retried.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/minios-linux/dialogkit/dialogue"
	"github.com/minios-linux/dialogkit/i18n"
	"github.com/minios-linux/dialogkit/langmeta"
	"github.com/minios-linux/dialogkit/normalize"
)

// ErrEmptyText is returned when a recognizer found no text in the image.
var ErrEmptyText = errors.New("recognized text is empty")

// ConfigError reports a setup problem (missing credential, unknown
// backend). The capture is aborted.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// Recognizer extracts text from an image file.
type Recognizer interface {
	// Kind is the backend name recorded in Entry.Source.
	Kind() string
	Recognize(ctx context.Context, imagePath, lang string) (string, error)
}

// Enqueuer receives the produced entries.
type Enqueuer interface {
	Add(entry *dialogue.Entry) int
}

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(message string)
}

// Capture describes one screenshot to recognise.
type Capture struct {
	ImagePath string
	// Backend names the recognizer; empty selects the service default.
	Backend string
	// Split emits one entry per recognised line.
	Split       bool
	Translation dialogue.Directive
}

// Service runs the capture flow.
type Service struct {
	recognizers map[string]Recognizer
	fallback    string
	queue       Enqueuer
	notifier    Notifier
	logger      *zap.Logger
}

// NewService creates a service. The first recognizer is the default backend.
func NewService(queue Enqueuer, notifier Notifier, logger *zap.Logger, recognizers ...Recognizer) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		recognizers: make(map[string]Recognizer, len(recognizers)),
		queue:       queue,
		notifier:    notifier,
		logger:      logger,
	}
	for _, r := range recognizers {
		if s.fallback == "" {
			s.fallback = r.Kind()
		}
		s.recognizers[r.Kind()] = r
	}
	return s
}

// Recognize runs OCR on the capture and enqueues the resulting entries.
// It returns the entries added to the queue.
func (s *Service) Recognize(ctx context.Context, c Capture) ([]*dialogue.Entry, error) {
	backend := c.Backend
	if backend == "" {
		backend = s.fallback
	}
	lang := c.Translation.From
	log := s.logger.With(zap.String("backend", backend), zap.String("image", c.ImagePath))

	r, ok := s.recognizers[backend]
	if !ok {
		err := &ConfigError{Message: fmt.Sprintf(i18n.T("Unknown OCR backend: %s"), backend)}
		s.notify(err.Message)
		return nil, err
	}

	raw, err := r.Recognize(ctx, c.ImagePath, lang)
	if err == nil && strings.TrimSpace(raw) == "" {
		err = ErrEmptyText
	}
	if err != nil {
		log.Warn("recognition failed", zap.Error(err))
		s.notify(failureMessage(err))
		return nil, err
	}

	text := normalize.Normalize(raw, lang, backend)
	log.Debug("recognized", zap.String("raw", raw), zap.String("text", text))
	s.notify(i18n.T("Recognition complete"))

	var entries []*dialogue.Entry
	for _, piece := range SplitText(text, lang, c.Split) {
		entry := &dialogue.Entry{
			Code:        dialogue.CodeOCR,
			Text:        piece,
			Source:      backend,
			Translation: c.Translation,
		}
		if s.queue != nil {
			s.queue.Add(entry)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) notify(message string) {
	if s.notifier != nil {
		s.notifier.Notify(message)
	}
}

func failureMessage(err error) string {
	var cfg *ConfigError
	switch {
	case errors.As(err, &cfg):
		return cfg.Message
	case errors.Is(err, ErrEmptyText):
		return i18n.T("Recognized text is empty, please capture again")
	}
	return fmt.Sprintf(i18n.T("Unable to recognize image text: %v"), err)
}

// SplitText cuts recognised text into entry texts. With split, every
// non-empty line is a piece. Otherwise the lines are joined into one
// piece: directly for Japanese, with single spaces for other languages.
func SplitText(text, lang string, split bool) []string {
	var pieces []string
	if split {
		pieces = strings.Split(text, "\n")
	} else if langmeta.IsJapanese(lang) {
		pieces = []string{strings.ReplaceAll(text, "\n", "")}
	} else {
		joined := strings.ReplaceAll(text, "\n", " ")
		pieces = []string{strings.ReplaceAll(joined, "  ", " ")}
	}

	out := pieces[:0]
	for _, p := range pieces {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
