package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalogLoads(t *testing.T) {
	c := Default()
	if c.Len() == 0 {
		t.Fatal("Default() has no names")
	}
	got, ok := c.Lookup("エリオット")
	if !ok || got != "艾利歐特" {
		t.Fatalf("Lookup(エリオット) = %q, %v, want 艾利歐特, true", got, ok)
	}
	if Default() != c {
		t.Fatal("Default() should return the shared catalog")
	}
}

func TestRulesOrdering(t *testing.T) {
	rules := Default().Rules()
	last := rules[len(rules)-1]
	if last.Suffix != "" {
		t.Fatalf("last rule suffix = %q, want bare fallback", last.Suffix)
	}

	// A suffix containing another as a substring must be tried first.
	index := map[string]int{}
	for i, r := range rules {
		index[r.Suffix] = i
	}
	for _, r := range rules {
		for _, other := range rules {
			if r.Suffix == "" || other.Suffix == "" || r.Suffix == other.Suffix {
				continue
			}
			if strings.HasSuffix(r.Suffix, other.Suffix) || strings.HasPrefix(r.Suffix, other.Suffix) {
				if index[r.Suffix] > index[other.Suffix] {
					t.Errorf("%q (index %d) must precede %q (index %d)",
						r.Suffix, index[r.Suffix], other.Suffix, index[other.Suffix])
				}
			}
		}
	}
}

func TestRewrites(t *testing.T) {
	cases := map[string]string{
		"さん":   "艾利歐特",
		"ちゃん":  "小艾利歐特",
		"たち":   "艾利歐特們",
		"お嬢さん": "艾利歐特小姐",
		"様":    "艾利歐特大人",
		"殿":    "艾利歐特閣下",
		"":     "艾利歐特",
	}
	for _, r := range Default().Rules() {
		want, ok := cases[r.Suffix]
		if !ok {
			continue
		}
		if got := r.Rewrite("艾利歐特"); got != want {
			t.Errorf("rule %q: Rewrite() = %q, want %q", r.Suffix, got, want)
		}
	}
}

func TestLoadFileAndWith(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "names.yaml")
	content := "names:\n  - source: ナナモ\n    canonical: 納納莫\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	extra, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	c := Default().With(extra)
	if c.Len() != Default().Len()+1 {
		t.Fatalf("Len() = %d, want %d", c.Len(), Default().Len()+1)
	}
	if first := c.Names()[0]; first.Source != "ナナモ" {
		t.Fatalf("first name = %q, want user name first", first.Source)
	}
	if _, ok := Default().Lookup("ナナモ"); ok {
		t.Fatal("With() must not modify the receiver")
	}
}

func TestLoadFileValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("names:\n  - source: ナナモ\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for missing canonical form")
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
