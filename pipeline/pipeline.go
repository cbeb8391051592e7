// Package pipeline runs a dialogue entry through normalization, name
// protection, translation, restoration and correction, and hands the
// result to the presentation and log sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minios-linux/dialogkit/catalog"
	"github.com/minios-linux/dialogkit/codec"
	"github.com/minios-linux/dialogkit/correct"
	"github.com/minios-linux/dialogkit/dialogue"
	"github.com/minios-linux/dialogkit/i18n"
	"github.com/minios-linux/dialogkit/langmeta"
	"github.com/minios-linux/dialogkit/normalize"
)

// ErrStale is returned by Process when the scheduler was restarted while
// the entry was being translated. The result is discarded.
var ErrStale = errors.New("result belongs to a previous scheduler epoch")

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// Translator is the external machine-translation backend. It must pass
// unknown single characters through unchanged for name restoration to work.
type Translator interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// Notification is a short message for the user.
type Notification struct {
	ID      string
	Message string
	Time    time.Time
}

// Sink is the presentation layer. Calls are fire-and-forget.
type Sink interface {
	EmitDialogue(result dialogue.Result)
	EmitNotification(n Notification)
}

// Persister stores translated dialogue. Its errors are logged, never
// surfaced to the user.
type Persister interface {
	Save(ctx context.Context, result dialogue.Result) error
}

// Memo caches translations of encoded text.
type Memo interface {
	Lookup(from, to, text string) (string, bool)
	Store(from, to, text, translated string)
}

// Epochs tells whether a scheduler epoch is still current.
type Epochs interface {
	Current(epoch uint64) bool
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

// Options wires a Pipeline. Translator and Sink are required.
type Options struct {
	Catalog    *catalog.Catalog
	Translator Translator
	Sink       Sink
	Persister  Persister
	Memo       Memo
	Epochs     Epochs
	Logger     *zap.Logger
}

// Pipeline is the orchestrator. It is safe for concurrent use when its
// collaborators are.
type Pipeline struct {
	catalog    *catalog.Catalog
	translator Translator
	sink       Sink
	persister  Persister
	memo       Memo
	epochs     Epochs
	logger     *zap.Logger
}

// New creates a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Translator == nil {
		return nil, errors.New("pipeline: translator is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("pipeline: sink is required")
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{
		catalog:    opts.Catalog,
		translator: opts.Translator,
		sink:       opts.Sink,
		persister:  opts.Persister,
		memo:       opts.Memo,
		epochs:     opts.Epochs,
		logger:     opts.Logger,
	}, nil
}

// Handle is a queue.Handler. Failures have already been reported to the
// sink by Process.
func (p *Pipeline) Handle(ctx context.Context, entry *dialogue.Entry, epoch uint64) {
	_, _ = p.Process(ctx, entry, epoch)
}

// Process translates entry and emits the result. entry.Translation.From
// must already hold the entry's source language.
func (p *Pipeline) Process(ctx context.Context, entry *dialogue.Entry, epoch uint64) (dialogue.Result, error) {
	from := entry.Translation.From
	to := entry.Translation.To
	log := p.logger.With(zap.String("id", entry.ID), zap.String("code", entry.Code))

	if entry.FromOCR() {
		entry.Text = normalize.Normalize(entry.Text, from, entry.Source)
	}

	result := dialogue.Result{Entry: *entry}

	name, err := p.translateName(ctx, entry.Name, from, to, log)
	if err == nil {
		var skipped bool
		result.TranslatedText, skipped, err = p.translateText(ctx, entry.Text, from, to, log)
		result.Skipped = skipped
	}
	result.TranslatedName = name

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Debug("translation cancelled", zap.Error(err))
			return result, err
		}
		log.Warn("translation failed", zap.Error(err))
		p.Notify(fmt.Sprintf(i18n.T("Translation failed: %v"), err))
		return result, err
	}

	if p.epochs != nil && !p.epochs.Current(epoch) {
		log.Debug("discarding stale result", zap.Uint64("epoch", epoch))
		return result, ErrStale
	}

	p.sink.EmitDialogue(result)

	if p.persister != nil {
		if err := p.persister.Save(ctx, result); err != nil {
			log.Error("saving dialogue log", zap.Error(err))
		}
	}
	return result, nil
}

// Notify sends a notification to the sink.
func (p *Pipeline) Notify(message string) {
	p.sink.EmitNotification(Notification{
		ID:      uuid.NewString(),
		Message: message,
		Time:    time.Now(),
	})
}

// translateName renders a speaker name. Names listed in the catalog are
// restored directly without a translator call.
func (p *Pipeline) translateName(ctx context.Context, name, from, to string, log *zap.Logger) (string, error) {
	if name == "" {
		return "", nil
	}
	if langmeta.IsJapanese(from) {
		if canonical, ok := p.catalog.Lookup(name); ok {
			return canonical, nil
		}
	}
	translated, _, err := p.translateText(ctx, name, from, to, log)
	return translated, err
}

// translateText runs the protect-translate-restore pass over one string.
func (p *Pipeline) translateText(ctx context.Context, text, from, to string, log *zap.Logger) (string, bool, error) {
	if text == "" {
		return "", false, nil
	}
	if langmeta.Canonical(from) == langmeta.Canonical(to) {
		return text, true, nil
	}

	japanese := langmeta.IsJapanese(from)
	if japanese && correct.CanSkipTranslation(text) {
		return text, true, nil
	}

	encoded := text
	var table codec.Table
	if japanese {
		encoded, table = codec.Encode(text, p.catalog)
		if len(table) > 0 {
			log.Debug("protected names",
				zap.String("encoded", encoded),
				zap.String("tokens", table.Tokens()),
			)
		}
	}

	translated, err := p.translate(ctx, encoded, from, to)
	if err != nil {
		return "", false, err
	}

	restored := codec.Decode(translated, table)
	if japanese {
		restored = correct.Correct(text, restored)
	}
	return restored, false, nil
}

func (p *Pipeline) translate(ctx context.Context, text, from, to string) (string, error) {
	if p.memo != nil {
		if cached, ok := p.memo.Lookup(from, to, text); ok {
			return cached, nil
		}
	}
	translated, err := p.translator.Translate(ctx, text, from, to)
	if err != nil {
		return "", err
	}
	if p.memo != nil {
		p.memo.Store(from, to, text, translated)
	}
	return translated, nil
}
