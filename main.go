// dialogkit: live game dialogue translator with proper-name protection.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/minios-linux/dialogkit/chatlog"
	"github.com/minios-linux/dialogkit/codec"
	"github.com/minios-linux/dialogkit/dialogue"
	"github.com/minios-linux/dialogkit/langmeta"
	"github.com/minios-linux/dialogkit/memo"
	"github.com/minios-linux/dialogkit/normalize"
	"github.com/minios-linux/dialogkit/ocr"
	"github.com/minios-linux/dialogkit/server"
	"github.com/minios-linux/dialogkit/settings"
	"github.com/minios-linux/dialogkit/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
	colorGray   = "\033[0;90m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir string
	logJSON bool
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dialogkit",
		Short: "Live game dialogue translator with proper-name protection",
		Long: `dialogkit translates game dialogue line by line.

Chat lines arrive from a game plugin over HTTP, screenshots are recognised
with tesseract or Google Cloud Vision. Each line is paced through a queue,
known character names are hidden from the translator and restored
afterwards, and the result is printed and written to the dialogue log.

Commands:
  run         Start the ingest server and translate incoming dialogue
  capture     Recognise a screenshot and translate its text
  translate   Translate a single line
  encode      Show how names in a line are protected
  normalize   Clean up recognised text
  log         Show the dialogue log of a day
  memo        Inspect or clear the translation memo
  auth        Manage API keys

Translator providers:
  google         Google AI (Gemini) — API key
  groq           Groq — API key required
  opencode       OpenCode (multi-format dispatcher)
  ollama         Ollama local server
  custom-openai  Custom OpenAI-compatible endpoint`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Directory containing .dialogkit.yaml")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write structured JSON logs")

	root.AddCommand(
		newRunCmd(),
		newCaptureCmd(),
		newTranslateCmd(),
		newEncodeCmd(),
		newNormalizeCmd(),
		newLogCmd(),
		newMemoCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dialogkit version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// run (ingest server + scheduler)
// ---------------------------------------------------------------------------

func newRunCmd() *cobra.Command {
	var (
		flags    translatorFlags
		listen   string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the ingest server and translate incoming dialogue",
		Long: `Start the chat ingest server and the translation queue.

The game plugin posts each chat line to POST /dialogue. Lines are drained
one per queue interval, translated and printed. POST /restart drops every
queued line and discards translations still in flight.

Examples:
  dialogkit run
  dialogkit run --listen 127.0.0.1:9000 --interval 500ms
  dialogkit run --provider ollama --model qwen2.5:7b --to zh-TW`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if interval > 0 {
				cfg.Queue.Interval = interval
			}
			if err := flags.apply(cfg); err != nil {
				return err
			}

			rt, err := newRuntime(cfg, &flags)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signalContext()
			defer stop()

			router := server.NewRouter(server.Options{
				Scheduler: rt.sched,
				Directive: cfg.ApplyDirective,
				Notifier:  rt.pipeline,
				Logger:    rt.logger.Named("server"),
			})

			rt.sched.Start()
			logInfo("Listening on http://%s (queue interval %s)", cfg.Server.Listen, cfg.Queue.Interval)
			logInfo("Translating %s → %s, press Ctrl+C to stop", cfg.Translation.From, cfg.Translation.To)

			err = server.Run(ctx, cfg.Server.Listen, router, rt.logger.Named("server"))
			if err == nil {
				logInfo("Shutting down")
			}
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Ingest server address (default from config)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Queue drain interval (default from config)")
	cmd.Flags().AddFlagSet(flags.flagSet())
	return cmd
}

// ---------------------------------------------------------------------------
// capture (OCR)
// ---------------------------------------------------------------------------

func newCaptureCmd() *cobra.Command {
	var (
		flags     translatorFlags
		backend   string
		split     bool
		visionKey string
	)

	cmd := &cobra.Command{
		Use:   "capture IMAGE...",
		Short: "Recognise screenshots and translate their text",
		Long: `Run OCR on one or more screenshots and translate the recognised text.

Backends:
  tesseract      Local tesseract binary (jpn + jpn_vert models for Japanese)
  google-vision  Google Cloud Vision TEXT_DETECTION (API key required)

Examples:
  dialogkit capture shot.png
  dialogkit capture --backend google-vision --split shot.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if backend != "" {
				cfg.OCR.Backend = backend
			}
			if cmd.Flags().Changed("split") {
				cfg.OCR.Split = split
			}
			if err := flags.apply(cfg); err != nil {
				return err
			}

			rt, err := newRuntime(cfg, &flags)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signalContext()
			defer stop()

			svc := rt.ocrService(visionKey)
			queued := recognizeAll(ctx, svc, args, ocr.Capture{
				Backend:     cfg.OCR.Backend,
				Split:       cfg.OCR.Split,
				Translation: cfg.Directive(),
			})
			if queued == 0 {
				return errors.New("no text recognised")
			}
			return drain(ctx, rt)
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "OCR backend (tesseract, google-vision)")
	cmd.Flags().BoolVar(&split, "split", false, "Translate each recognised line separately")
	cmd.Flags().StringVar(&visionKey, "vision-key", "", "Google Cloud Vision API key")
	cmd.Flags().AddFlagSet(flags.flagSet())
	return cmd
}

// recognizeAll runs OCR on every image with the settings in capture and
// returns the number of queued entries. A failing image is reported and
// skipped so entries from the other images are still translated.
func recognizeAll(ctx context.Context, svc *ocr.Service, images []string, capture ocr.Capture) int {
	queued := 0
	for _, image := range images {
		capture.ImagePath = image
		entries, err := svc.Recognize(ctx, capture)
		var cfgErr *ocr.ConfigError
		switch {
		case errors.As(err, &cfgErr):
			logError("%s: %v", image, err)
			continue
		case err != nil:
			logWarning("%s: %v", image, err)
			continue
		}
		queued += len(entries)
	}
	return queued
}

// drain runs the scheduler until every queued entry has been handled.
func drain(ctx context.Context, rt *runtime) error {
	rt.sched.Start()
	if err := rt.sched.Drain(ctx); err != nil {
		return err
	}
	rt.sched.Wait()
	return nil
}

// ---------------------------------------------------------------------------
// translate (single line)
// ---------------------------------------------------------------------------

func newTranslateCmd() *cobra.Command {
	var (
		flags translatorFlags
		code  string
		name  string
	)

	cmd := &cobra.Command{
		Use:   "translate [TEXT]",
		Short: "Translate a single line",
		Long: `Translate one line of dialogue through the full pipeline: names are
protected, the translator is called, names are restored and the output is
corrected. Reads the line from stdin when TEXT is omitted.

Examples:
  dialogkit translate "エリオットさん、こんにちは"
  dialogkit translate --name ウリエンジェ "星の導きのままに"
  echo "はい・・・" | dialogkit translate --code 003D`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cfg); err != nil {
				return err
			}

			rt, err := newRuntime(cfg, &flags)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signalContext()
			defer stop()

			rt.sched.Add(&dialogue.Entry{
				Code:        code,
				Name:        name,
				Text:        text,
				Translation: cfg.Directive(),
			})
			return drain(ctx, rt)
		},
	}

	cmd.Flags().StringVar(&code, "code", "003D", "Chat channel code of the line")
	cmd.Flags().StringVar(&name, "name", "", "Speaker name")
	cmd.Flags().AddFlagSet(flags.flagSet())
	return cmd
}

// inputText returns the single argument, or all of r when there is none.
func inputText(r io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		text := strings.TrimSpace(args[0])
		if text == "" {
			return "", errors.New("empty text")
		}
		return text, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("no text on stdin")
	}
	return text, nil
}

// ---------------------------------------------------------------------------
// encode / normalize (offline tools)
// ---------------------------------------------------------------------------

func newEncodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode [TEXT]",
		Short: "Show how names in a line are protected",
		Long: `Replace catalog names in TEXT with placeholder letters and print the
encoded text followed by the restoration table. No translator is called.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			names, err := loadCatalog(cfg, zap.NewNop())
			if err != nil {
				return err
			}

			encoded, table := codec.Encode(text, names)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, encoded)
			for _, p := range table {
				fmt.Fprintf(out, "  %c → %s\n", p.Token, p.Replacement)
			}
			return nil
		},
	}
	return cmd
}

func newNormalizeCmd() *cobra.Command {
	var (
		lang    string
		backend string
	)

	cmd := &cobra.Command{
		Use:   "normalize [TEXT]",
		Short: "Clean up recognised text",
		Long: `Apply the OCR normalization rules to TEXT: collapse blank lines, unify
punctuation and fix common recognition mistakes of the tesseract backend.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if !langmeta.Known(lang) {
				return fmt.Errorf("unknown language %q", lang)
			}
			fmt.Fprintln(cmd.OutOrStdout(), normalize.Normalize(text, lang, backend))
			return nil
		},
	}

	cmd.Flags().StringVar(&lang, "lang", langmeta.Japanese, "Language of the text")
	cmd.Flags().StringVar(&backend, "backend", dialogue.BackendTesseract, "OCR backend that produced the text")
	return cmd
}

// ---------------------------------------------------------------------------
// log (dialogue log)
// ---------------------------------------------------------------------------

func newLogCmd() *cobra.Command {
	var day string

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the dialogue log of a day",
		Long: `Print the translated dialogue recorded on a day, oldest first.

Examples:
  dialogkit log
  dialogkit log --day 2026-10-17`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseDay(day, time.Now())
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := chatlog.Open(cfg.LogPath(settings.DefaultLogPath()))
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListDay(cmd.Context(), when)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				logInfo("No dialogue recorded on %s", when.Format(time.DateOnly))
				return nil
			}
			out := cmd.OutOrStdout()
			for _, r := range records {
				fmt.Fprintf(out, "%s  %s\n", r.Time().Format(time.TimeOnly), formatRecord(r))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&day, "day", "", "Day to show as YYYY-MM-DD (default: today)")
	return cmd
}

// parseDay parses a YYYY-MM-DD day in local time. Empty means today.
func parseDay(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	day, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q, expected YYYY-MM-DD", s)
	}
	return day, nil
}

func formatRecord(r chatlog.Record) string {
	line := r.TranslatedText
	if r.TranslatedName != "" {
		line = r.TranslatedName + ": " + line
	}
	return fmt.Sprintf("[%s] %s", r.Code, line)
}

// ---------------------------------------------------------------------------
// memo
// ---------------------------------------------------------------------------

func newMemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memo",
		Short: "Inspect or clear the translation memo",
		Long: `The translation memo stores every translation keyed by its encoded
source text, so repeated lines never reach the translator twice.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMemo()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", m.Path(), m.Summary())
			return nil
		},
	}

	cmd.AddCommand(newMemoClearCmd())
	return cmd
}

func newMemoClearCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove memo entries of a language pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMemo()
			if err != nil {
				return err
			}
			if from == "" || to == "" {
				for _, pair := range m.Pairs() {
					parts := strings.SplitN(pair, ">", 2)
					m.RemovePair(parts[0], parts[1])
				}
			} else {
				m.RemovePair(langmeta.Canonical(from), langmeta.Canonical(to))
			}
			if err := m.Save(); err != nil {
				return err
			}
			logSuccess("Memo now holds %s", m.Summary())
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Source language (default: all pairs)")
	cmd.Flags().StringVar(&to, "to", "", "Target language (default: all pairs)")
	return cmd
}

func openMemo() (*memo.Memo, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dir, err := settings.DataDir()
	if err != nil {
		return nil, err
	}
	return memo.Load(cfg.MemoDir(dir))
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

// authServices are the services whose keys can be stored.
var authServices = []struct {
	id      string
	name    string
	helpURL string
}{
	{translate.ProviderGoogle, "Google AI Studio", "https://aistudio.google.com/apikey"},
	{translate.ProviderGroq, "Groq Cloud", "https://console.groq.com/keys"},
	{translate.ProviderOpenCode, "OpenCode", ""},
	{translate.ProviderCustomOpenAI, "Custom OpenAI", ""},
	{translate.ProviderOllama, "Ollama", ""},
	{"google-vision", "Google Cloud Vision", "https://console.cloud.google.com/apis/credentials"},
}

func knownService(id string) bool {
	for _, s := range authServices {
		if s.id == id {
			return true
		}
	}
	return false
}

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage API keys",
		Long: `Manage API keys for the translator providers and the OCR service.

Services:
  google         Google AI Studio (Gemini API key)
  groq           Groq Cloud
  opencode       OpenCode proxy
  custom-openai  Custom OpenAI-compatible endpoint (key and base URL)
  ollama         Local Ollama server (base URL only)
  google-vision  Google Cloud Vision OCR

Examples:
  dialogkit auth set google                 Prompt for a Google AI key
  dialogkit auth set custom-openai --base-url http://localhost:8080/v1
  dialogkit auth remove google              Remove the Google AI key
  dialogkit auth remove                     Remove all keys
  dialogkit auth list                       Show stored keys`,
	}

	cmd.AddCommand(
		newAuthSetCmd(),
		newAuthRemoveCmd(),
		newAuthListCmd(),
	)
	return cmd
}

func newAuthSetCmd() *cobra.Command {
	var key, baseURL string

	cmd := &cobra.Command{
		Use:   "set SERVICE",
		Short: "Store an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.ToLower(args[0])
			if !knownService(id) {
				return fmt.Errorf("unknown service '%s', run 'dialogkit auth list' to see services", id)
			}

			existing := settings.Get(id)
			if key == "" && id != translate.ProviderOllama && (baseURL == "" || id != translate.ProviderCustomOpenAI) {
				if existing != nil && existing.Key != "" {
					fmt.Fprintf(os.Stderr, "  Current key: %s%s%s\n", colorYellow, settings.MaskKey(existing.Key), colorReset)
					fmt.Fprintf(os.Stderr, "  Enter new key to replace, or press Enter to keep: ")
				} else {
					fmt.Fprintf(os.Stderr, "  Enter API key: ")
				}
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if scanner.Scan() {
					key = strings.TrimSpace(scanner.Text())
				}
				if key == "" && existing != nil {
					key = existing.Key
				}
				if key == "" {
					return errors.New("no API key provided")
				}
			}
			if baseURL == "" && existing != nil {
				baseURL = existing.BaseURL
			}

			if err := settings.SetAPIKeyWithBaseURL(id, key, baseURL); err != nil {
				return fmt.Errorf("saving credentials: %w", err)
			}
			logSuccess("%s credentials saved to %s", id, settings.FilePath())
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "API key (prompted when omitted)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Endpoint for custom-openai and ollama")
	return cmd
}

func newAuthRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [SERVICE]",
		Short: "Remove stored credentials (default: all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if err := settings.RemoveAll(); err != nil {
					return err
				}
				logSuccess("All stored credentials removed")
				return nil
			}
			id := strings.ToLower(args[0])
			if err := settings.Remove(id); err != nil {
				return fmt.Errorf("removing %s credentials: %w", id, err)
			}
			logSuccess("%s credentials removed", id)
			return nil
		},
	}
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored credentials",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.ErrOrStderr()
			fmt.Fprintf(out, "\n%sStored Credentials%s\n", colorBlue, colorReset)
			fmt.Fprintln(out, strings.Repeat("─", 60))

			for _, s := range authServices {
				entry := settings.Get(s.id)
				switch {
				case entry != nil && entry.Key != "":
					status := fmt.Sprintf("%sconfigured%s (key: %s)", colorGreen, colorReset, settings.MaskKey(entry.Key))
					if entry.BaseURL != "" {
						status += fmt.Sprintf("\n  %14s endpoint: %s", "", entry.BaseURL)
					}
					fmt.Fprintf(out, "  %-14s %s\n", s.id, status)
				case entry != nil && entry.BaseURL != "":
					fmt.Fprintf(out, "  %-14s %sconfigured%s (no key)\n  %14s endpoint: %s\n", s.id, colorGreen, colorReset, "", entry.BaseURL)
				default:
					fmt.Fprintf(out, "  %-14s %snot configured%s", s.id, colorRed, colorReset)
					if s.helpURL != "" {
						fmt.Fprintf(out, " (%s)", s.helpURL)
					}
					fmt.Fprintln(out)
				}
			}

			fmt.Fprintf(out, "\n  %sEnvironment Variables%s\n", colorYellow, colorReset)
			if envKey := os.Getenv(settings.EnvAPIKey); envKey != "" {
				fmt.Fprintf(out, "  %s: %s%s%s (overrides stored keys)\n", settings.EnvAPIKey, colorGreen, settings.MaskKey(envKey), colorReset)
			} else {
				fmt.Fprintf(out, "  %s: %snot set%s\n", settings.EnvAPIKey, colorRed, colorReset)
			}
			fmt.Fprintln(out)
		},
	}
}
