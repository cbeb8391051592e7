package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/minios-linux/dialogkit/catalog"
	"github.com/minios-linux/dialogkit/chatlog"
	"github.com/minios-linux/dialogkit/config"
	"github.com/minios-linux/dialogkit/dialogue"
	"github.com/minios-linux/dialogkit/i18n"
	"github.com/minios-linux/dialogkit/logging"
	"github.com/minios-linux/dialogkit/memo"
	"github.com/minios-linux/dialogkit/ocr"
	"github.com/minios-linux/dialogkit/pipeline"
	"github.com/minios-linux/dialogkit/queue"
	"github.com/minios-linux/dialogkit/settings"
	"github.com/minios-linux/dialogkit/translate"
)

// ---------------------------------------------------------------------------
// Shared flags
// ---------------------------------------------------------------------------

// translatorFlags override the translation section of .dialogkit.yaml.
type translatorFlags struct {
	provider string
	model    string
	baseURL  string
	apiKey   string
	proxy    string
	timeout  time.Duration
	from     string
	to       string
	noMemo   bool
	noLog    bool
	verbose  bool
}

func (f *translatorFlags) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("translator", pflag.ContinueOnError)
	fs.StringVar(&f.provider, "provider", "", "Translator provider (google, groq, opencode, custom-openai, ollama)")
	fs.StringVar(&f.model, "model", "", "Model name (default: provider default)")
	fs.StringVar(&f.baseURL, "base-url", "", "Provider endpoint override")
	fs.StringVar(&f.apiKey, "api-key", "", "API key (overrides env and stored key)")
	fs.StringVar(&f.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	fs.DurationVar(&f.timeout, "timeout", 0, "Per-request timeout")
	fs.StringVar(&f.from, "from", "", "Source language of NPC text")
	fs.StringVar(&f.to, "to", "", "Target language")
	fs.BoolVar(&f.noMemo, "no-memo", false, "Do not use the translation memo")
	fs.BoolVar(&f.noLog, "no-log", false, "Do not write the dialogue log")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Log translator requests")
	return fs
}

// apply writes flag overrides into cfg and revalidates it.
func (f *translatorFlags) apply(cfg *config.File) error {
	t := &cfg.Translation
	if f.provider != "" {
		t.Provider = strings.ToLower(f.provider)
	}
	if f.model != "" {
		t.Model = f.model
	}
	if f.baseURL != "" {
		t.BaseURL = f.baseURL
	}
	if f.proxy != "" {
		t.Proxy = f.proxy
	}
	if f.timeout > 0 {
		t.Timeout = f.timeout
	}
	if f.from != "" {
		if t.FromPlayer == t.From {
			t.FromPlayer = f.from
		}
		t.From = f.from
	}
	if f.to != "" {
		t.To = f.to
	}
	if f.noMemo {
		cfg.Memo.Enabled = false
	}
	return cfg.Validate()
}

// resolveProvider builds the provider from the config, the credential store
// and the --api-key flag.
func resolveProvider(cfg *config.File, apiKey string) (translate.Provider, error) {
	t := cfg.Translation
	prov, ok := translate.DefaultProviders()[t.Provider]
	if !ok {
		return translate.Provider{}, fmt.Errorf("unknown provider %q", t.Provider)
	}

	switch {
	case t.BaseURL != "":
		prov.BaseURL = t.BaseURL
	case settings.GetBaseURL(prov.ID) != "":
		prov.BaseURL = settings.GetBaseURL(prov.ID)
	}
	if t.Model != "" {
		prov.Model = t.Model
	}
	if t.Proxy != "" {
		prov.Proxy = t.Proxy
	}
	if t.Timeout > 0 {
		prov.Timeout = t.Timeout
	}
	prov.APIKey = settings.ResolveAPIKey(prov.ID, apiKey)

	if prov.BaseURL == "" {
		return prov, fmt.Errorf("provider %s needs an endpoint: set translation.base_url or run 'dialogkit auth set %s --base-url URL'", prov.ID, prov.ID)
	}
	if prov.Model == "" {
		return prov, fmt.Errorf("provider %s needs a model: set translation.model or pass --model", prov.ID)
	}
	return prov, nil
}

// ---------------------------------------------------------------------------
// Console sink
// ---------------------------------------------------------------------------

// consoleSink prints translated dialogue to stdout and notifications to
// stderr.
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
}

func newConsoleSink() *consoleSink {
	return &consoleSink{out: os.Stdout, err: os.Stderr}
}

func (s *consoleSink) EmitDialogue(r dialogue.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, formatResult(r))
}

func (s *consoleSink) EmitNotification(n pipeline.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.err, "%s[%s]%s %s\n", colorYellow, n.Time.Format("15:04:05"), colorReset, n.Message)
}

// formatResult renders one translated line as "name: text", followed by
// the source text when it was translated.
func formatResult(r dialogue.Result) string {
	var b strings.Builder
	if r.TranslatedName != "" {
		b.WriteString(colorBlue + r.TranslatedName + colorReset + ": ")
	}
	b.WriteString(r.TranslatedText)
	if !r.Skipped && r.TranslatedText != r.Entry.Text {
		b.WriteString("\n  " + colorGray + r.Entry.Text + colorReset)
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Runtime
// ---------------------------------------------------------------------------

// runtime is the wired translation stack shared by run, capture and
// translate.
type runtime struct {
	cfg      *config.File
	logger   *zap.Logger
	sink     *consoleSink
	sched    *queue.Scheduler
	pipeline *pipeline.Pipeline
	memo     *memo.Memo
	log      *chatlog.Store
}

func loadConfig() (*config.File, error) {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return nil, err
	}
	i18n.Init(cfg.Language)
	return cfg, nil
}

func newLogger(cfg *config.File) (*zap.Logger, error) {
	return logging.New(logging.Options{Level: cfg.Log.Level, JSON: logJSON})
}

func loadCatalog(cfg *config.File, logger *zap.Logger) (*catalog.Catalog, error) {
	c := catalog.Default()
	for _, path := range cfg.CatalogFiles() {
		names, err := catalog.LoadFile(path)
		if err != nil {
			return nil, err
		}
		c = c.With(names)
		logger.Debug("catalog file loaded", zap.String("path", path), zap.Int("names", len(names)))
	}
	return c, nil
}

func newRuntime(cfg *config.File, flags *translatorFlags) (*runtime, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	if path, err := translate.LoadPromptsFromDefaultLocations(); err != nil {
		logger.Warn("loading prompts", zap.Error(err))
	} else {
		logger.Debug("prompts loaded", zap.String("path", path))
	}

	prov, err := resolveProvider(cfg, flags.apiKey)
	if err != nil {
		return nil, err
	}
	client, err := translate.New(translate.Options{
		Provider:     prov,
		Timeout:      cfg.Translation.Timeout,
		MaxRetries:   cfg.Translation.MaxRetries,
		SystemPrompt: cfg.Translation.Prompt,
		OnLog:        logging.Printf(logger.Named("translate"), zapcore.DebugLevel),
		OnError:      logging.Printf(logger.Named("translate"), zapcore.WarnLevel),
		Verbose:      flags.verbose,
	})
	if err != nil {
		return nil, err
	}

	names, err := loadCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger, sink: newConsoleSink()}
	opts := pipeline.Options{
		Catalog:    names,
		Translator: client,
		Sink:       rt.sink,
		Logger:     logger.Named("pipeline"),
	}

	if cfg.Memo.Enabled {
		dir, err := memoDir(cfg)
		if err != nil {
			return nil, err
		}
		m, err := memo.Load(dir)
		if err != nil {
			return nil, err
		}
		rt.memo = m
		opts.Memo = m
		logger.Debug("memo loaded", zap.String("path", m.Path()), zap.String("summary", m.Summary()))
	}

	if !flags.noLog {
		store, err := chatlog.Open(cfg.LogPath(settings.DefaultLogPath()))
		if err != nil {
			return nil, err
		}
		rt.log = store
		opts.Persister = store
	}

	// The scheduler dispatches to the pipeline, which checks epochs against
	// the scheduler.
	rt.sched = queue.New(func(ctx context.Context, e *dialogue.Entry, epoch uint64) {
		rt.pipeline.Handle(ctx, e, epoch)
	}, queue.Options{Interval: cfg.Queue.Interval, Logger: logger.Named("queue")})
	opts.Epochs = rt.sched

	rt.pipeline, err = pipeline.New(opts)
	if err != nil {
		rt.close()
		return nil, err
	}

	logger.Info("translator ready",
		zap.String("provider", prov.ID),
		zap.String("model", prov.Model),
		zap.String("from", cfg.Translation.From),
		zap.String("to", cfg.Translation.To),
		zap.Int("names", names.Len()),
	)
	return rt, nil
}

// memoDir returns memo.dir from the config, or the data directory when it
// is unset.
func memoDir(cfg *config.File) (string, error) {
	if cfg.Memo.Dir != "" {
		return cfg.MemoDir(""), nil
	}
	dir, err := settings.DataDir()
	if err != nil {
		return "", fmt.Errorf("resolving memo directory: %w", err)
	}
	return dir, nil
}

// ocrService wires the recognizers to the scheduler. The configured backend
// is the default.
func (rt *runtime) ocrService(visionKey string) *ocr.Service {
	tess := ocr.NewTesseract(rt.cfg.OCR.TesseractPath)
	vision := ocr.NewGoogleVision(settings.ResolveAPIKey("google-vision", visionKey))
	recognizers := []ocr.Recognizer{tess, vision}
	if rt.cfg.OCR.Backend == dialogue.BackendGoogleVision {
		recognizers = []ocr.Recognizer{vision, tess}
	}
	return ocr.NewService(rt.sched, rt.pipeline, rt.logger.Named("ocr"), recognizers...)
}

// close stops the scheduler, waits for handlers and flushes the memo and
// the dialogue log.
func (rt *runtime) close() {
	if rt.sched != nil {
		rt.sched.Stop()
		rt.sched.Wait()
	}
	if rt.memo != nil {
		if err := rt.memo.Save(); err != nil {
			logError("Failed to save memo: %v", err)
		}
	}
	if rt.log != nil {
		if err := rt.log.Close(); err != nil {
			logError("Failed to close dialogue log: %v", err)
		}
	}
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
}
