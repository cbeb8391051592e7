package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/minios-linux/dialogkit/config"
	"github.com/minios-linux/dialogkit/dialogue"
	"github.com/minios-linux/dialogkit/ocr"
	"github.com/minios-linux/dialogkit/settings"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCommands(t *testing.T) {
	want := []string{"auth", "capture", "encode", "log", "memo", "normalize", "run", "translate", "version"}
	root := newRootCmd()
	have := map[string]bool{}
	for _, c := range root.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Fatalf("missing command %q", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error: %v", err)
	}
	if !strings.Contains(out, "dialogkit version dev") {
		t.Fatalf("version output = %q", out)
	}
}

func TestEncodeCommand(t *testing.T) {
	out, err := execute(t, "--root", t.TempDir(), "encode", "エリオットさん、こんにちは")
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	if !strings.HasPrefix(out, "B、こんにちは\n") {
		t.Fatalf("encode output = %q", out)
	}
	if !strings.Contains(out, "B → 艾利歐特") {
		t.Fatalf("encode output missing table: %q", out)
	}
}

func TestEncodeCommandUsesCatalogFiles(t *testing.T) {
	dir := t.TempDir()
	names := "names:\n  - source: タタル\n    canonical: 塔塔露\n"
	if err := os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte(names), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := "catalog:\n  files: [extra.yaml]\n"
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--root", dir, "encode", "タタルさん")
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	if !strings.Contains(out, "B → 塔塔露") {
		t.Fatalf("encode output = %q", out)
	}
}

func TestNormalizeCommand(t *testing.T) {
	out, err := execute(t, "normalize", "はい・・・")
	if err != nil {
		t.Fatalf("normalize error: %v", err)
	}
	if out != "はい…\n" {
		t.Fatalf("normalize output = %q", out)
	}

	if _, err := execute(t, "normalize", "--lang", "xx", "text"); err == nil {
		t.Fatal("expected error for unknown language")
	}
}

func TestResolveProvider(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv(settings.EnvAPIKey, "")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg := config.Default()
	prov, err := resolveProvider(cfg, "flag-key")
	if err != nil {
		t.Fatalf("resolveProvider(google) error: %v", err)
	}
	if prov.APIKey != "flag-key" || prov.Model != "gemini-2.5-flash" {
		t.Fatalf("provider = %+v", prov)
	}

	cfg.Translation.Provider = "custom-openai"
	cfg.Translation.Model = "gpt-4o-mini"
	if _, err := resolveProvider(cfg, ""); err == nil {
		t.Fatal("custom-openai without endpoint should fail")
	}

	if err := settings.SetAPIKeyWithBaseURL("custom-openai", "sk-stored", "http://localhost:8080/v1"); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "")
	prov, err = resolveProvider(cfg, "")
	if err != nil {
		t.Fatalf("resolveProvider(custom-openai) error: %v", err)
	}
	if prov.BaseURL != "http://localhost:8080/v1" || prov.APIKey != "sk-stored" {
		t.Fatalf("provider = %+v", prov)
	}

	cfg.Translation.BaseURL = "http://override/v1"
	cfg.Translation.Timeout = 5 * time.Second
	prov, _ = resolveProvider(cfg, "")
	if prov.BaseURL != "http://override/v1" || prov.Timeout != 5*time.Second {
		t.Fatalf("config should override stored endpoint: %+v", prov)
	}
}

func TestTranslatorFlagsApply(t *testing.T) {
	cfg := config.Default()
	flags := translatorFlags{from: "en", to: "zh-CN", provider: "GROQ", noMemo: true}
	if err := flags.apply(cfg); err != nil {
		t.Fatalf("apply error: %v", err)
	}
	d := cfg.Directive()
	if d.From != "en" || d.FromPlayer != "en" || d.To != "zh-CN" {
		t.Fatalf("directive = %+v", d)
	}
	if cfg.Translation.Provider != "groq" || cfg.Memo.Enabled {
		t.Fatalf("config = %+v", cfg.Translation)
	}

	cfg = config.Default()
	cfg.Translation.FromPlayer = "en"
	if err := (&translatorFlags{from: "ko"}).apply(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Translation.FromPlayer != "en" {
		t.Fatalf("explicit player language overwritten: %q", cfg.Translation.FromPlayer)
	}

	if err := (&translatorFlags{to: "klingon"}).apply(config.Default()); err == nil {
		t.Fatal("expected validation error for unknown language")
	}
}

func TestFormatResult(t *testing.T) {
	r := dialogue.Result{
		Entry:          dialogue.Entry{Text: "こんにちは"},
		TranslatedName: "艾利歐特",
		TranslatedText: "你好",
	}
	want := colorBlue + "艾利歐特" + colorReset + ": 你好\n  " + colorGray + "こんにちは" + colorReset
	if got := formatResult(r); got != want {
		t.Fatalf("formatResult() = %q, want %q", got, want)
	}

	skipped := dialogue.Result{Entry: dialogue.Entry{Text: "ＯＫ"}, TranslatedText: "ＯＫ", Skipped: true}
	if got := formatResult(skipped); got != "ＯＫ" {
		t.Fatalf("formatResult(skipped) = %q", got)
	}
}

func TestParseDay(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.Local)
	if got, err := parseDay("", now); err != nil || !got.Equal(now) {
		t.Fatalf("parseDay(\"\") = %v, %v", got, err)
	}
	got, err := parseDay("2026-10-17", now)
	if err != nil {
		t.Fatalf("parseDay error: %v", err)
	}
	if got.Year() != 2026 || got.Month() != time.October || got.Day() != 17 {
		t.Fatalf("parseDay = %v", got)
	}
	if _, err := parseDay("17/10/2026", now); err == nil {
		t.Fatal("expected error for bad format")
	}
}

func TestInputText(t *testing.T) {
	if got, err := inputText(strings.NewReader("ignored"), []string{" arg "}); err != nil || got != "arg" {
		t.Fatalf("inputText(arg) = %q, %v", got, err)
	}
	if got, err := inputText(strings.NewReader("from stdin\n"), nil); err != nil || got != "from stdin" {
		t.Fatalf("inputText(stdin) = %q, %v", got, err)
	}
	if _, err := inputText(strings.NewReader("  \n"), nil); err == nil {
		t.Fatal("expected error for blank stdin")
	}
}

func TestAuthSetAndRemove(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if _, err := execute(t, "auth", "set", "groq", "--key", "gsk-123456789"); err != nil {
		t.Fatalf("auth set error: %v", err)
	}
	if got := settings.GetAPIKey("groq"); got != "gsk-123456789" {
		t.Fatalf("stored key = %q", got)
	}
	if _, err := execute(t, "auth", "set", "ollama", "--base-url", "http://gpu:11434/v1"); err != nil {
		t.Fatalf("auth set ollama error: %v", err)
	}
	if got := settings.GetBaseURL("ollama"); got != "http://gpu:11434/v1" {
		t.Fatalf("stored base url = %q", got)
	}
	if _, err := execute(t, "auth", "set", "nope", "--key", "x"); err == nil {
		t.Fatal("expected error for unknown service")
	}
	if _, err := execute(t, "auth", "remove", "groq"); err != nil {
		t.Fatalf("auth remove error: %v", err)
	}
	if got := settings.GetAPIKey("groq"); got != "" {
		t.Fatalf("key after remove = %q", got)
	}
}

// imageRecognizer returns a fixed result per image path.
type imageRecognizer struct {
	texts map[string]string
	errs  map[string]error
}

func (r imageRecognizer) Kind() string { return dialogue.BackendTesseract }

func (r imageRecognizer) Recognize(_ context.Context, imagePath, _ string) (string, error) {
	if err := r.errs[imagePath]; err != nil {
		return "", err
	}
	return r.texts[imagePath], nil
}

type entryList struct{ entries []*dialogue.Entry }

func (l *entryList) Add(e *dialogue.Entry) int {
	l.entries = append(l.entries, e)
	return len(l.entries)
}

func TestRecognizeAllKeepsEntriesAfterConfigError(t *testing.T) {
	rec := imageRecognizer{
		texts: map[string]string{"a.png": "一行目\n二行目", "c.png": "三行目"},
		errs: map[string]error{
			"b.png": &ocr.ConfigError{Message: "tesseract not found"},
			"d.png": errors.New("corrupt image"),
		},
	}
	q := &entryList{}
	svc := ocr.NewService(q, nil, nil, rec)

	capture := ocr.Capture{Split: true, Translation: dialogue.Directive{From: "ja", FromPlayer: "ja", To: "zh-TW"}}
	got := recognizeAll(context.Background(), svc, []string{"a.png", "b.png", "c.png", "d.png"}, capture)
	if got != 3 {
		t.Fatalf("recognizeAll() = %d, want 3", got)
	}
	if len(q.entries) != 3 {
		t.Fatalf("queued %d entries, want 3", len(q.entries))
	}
	if q.entries[2].Text != "三行目" {
		t.Fatalf("last entry = %q", q.entries[2].Text)
	}
}

func TestRecognizeAllUnknownBackend(t *testing.T) {
	q := &entryList{}
	svc := ocr.NewService(q, nil, nil, imageRecognizer{texts: map[string]string{"a.png": "x"}})

	if got := recognizeAll(context.Background(), svc, []string{"a.png"}, ocr.Capture{Backend: "paddle"}); got != 0 {
		t.Fatalf("recognizeAll() = %d, want 0", got)
	}
	if len(q.entries) != 0 {
		t.Fatalf("queued %d entries", len(q.entries))
	}
}

func TestMemoDir(t *testing.T) {
	cfg := config.Default()
	cfg.Memo.Dir = "/srv/memo"
	if got, err := memoDir(cfg); err != nil || got != "/srv/memo" {
		t.Fatalf("memoDir(configured) = %q, %v", got, err)
	}

	data := t.TempDir()
	t.Setenv("XDG_DATA_HOME", data)
	cfg.Memo.Dir = ""
	got, err := memoDir(cfg)
	if err != nil {
		t.Fatalf("memoDir(default) error: %v", err)
	}
	if !strings.HasPrefix(got, data) {
		t.Fatalf("memoDir(default) = %q, want under %q", got, data)
	}

	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "")
	if _, err := memoDir(cfg); err == nil || !strings.Contains(err.Error(), "resolving memo directory") {
		t.Fatalf("memoDir without home = %v", err)
	}
}
