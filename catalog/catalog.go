// Package catalog holds the static tables the codec uses to protect proper
// names through machine translation: the ordered list of known names and
// the honorific suffixes that may follow them.
//
// A Catalog is immutable once built. Default() returns the built-in table;
// LoadFile() reads additional names from a YAML file of the same shape as
// names.yaml.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Rewrite produces the restored text for a name+suffix compound from the
// canonical rendering of the name.
type Rewrite func(canonical string) string

// SuffixRule pairs an honorific suffix with its rendering in the target language.
type SuffixRule struct {
	// Suffix is the source-language honorific. Empty for the bare-name rule.
	Suffix string
	// Rewrite renders the canonical name with the honorific applied.
	Rewrite Rewrite
}

// NameEntry maps a source-language name to its canonical rendering.
type NameEntry struct {
	Source    string `yaml:"source"`
	Canonical string `yaml:"canonical"`
}

// Catalog is the structured NameEntry × SuffixRule table.
type Catalog struct {
	names []NameEntry
	rules []SuffixRule
}

// file is the YAML schema shared by names.yaml and user catalog files.
type file struct {
	Names []NameEntry `yaml:"names"`
}

// ---------------------------------------------------------------------------
// Rewrites
// ---------------------------------------------------------------------------

// Keep renders the name alone.
func Keep(canonical string) string { return canonical }

// Prefix returns a Rewrite that puts p in front of the name.
func Prefix(p string) Rewrite {
	return func(canonical string) string { return p + canonical }
}

// Append returns a Rewrite that puts s after the name.
func Append(s string) Rewrite {
	return func(canonical string) string { return canonical + s }
}

// Bare is the fallback rule tried after every honorific: the name on its own.
var Bare = SuffixRule{Suffix: "", Rewrite: Keep}

// Honorifics returns the honorific rules in priority order. Longer forms
// precede the shorter forms they contain (お嬢さん before さん, 殿様 and
// 殿下 before 殿) so that a generic suffix never claims part of a more
// specific one.
func Honorifics() []SuffixRule {
	return []SuffixRule{
		{Suffix: "お嬢ちゃん", Rewrite: Append("小姐")},
		{Suffix: "お嬢さん", Rewrite: Append("小姐")},
		{Suffix: "お嬢様", Rewrite: Append("小姐")},
		{Suffix: "ちゃん", Rewrite: Prefix("小")},
		{Suffix: "さん", Rewrite: Keep},
		{Suffix: "くん", Rewrite: Keep},
		{Suffix: "君", Rewrite: Keep},
		{Suffix: "たち", Rewrite: Append("們")},
		{Suffix: "先輩", Rewrite: Append("前輩")},
		{Suffix: "さま", Rewrite: Append("大人")},
		{Suffix: "殿様", Rewrite: Append("殿下")},
		{Suffix: "殿下", Rewrite: Append("殿下")},
		{Suffix: "殿", Rewrite: Append("閣下")},
		{Suffix: "様", Rewrite: Append("大人")},
		{Suffix: "提督", Rewrite: Append("提督")},
		{Suffix: "総長", Rewrite: Append("總長")},
		{Suffix: "伯爵", Rewrite: Append("伯爵")},
		{Suffix: "卿", Rewrite: Append("閣下")},
		{Suffix: "陛下", Rewrite: Append("陛下")},
		{Suffix: "猊下", Rewrite: Append("陛下")},
	}
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

//go:embed names.yaml
var builtinNames []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// New builds a catalog from names, using the standard honorific rules.
func New(names []NameEntry) *Catalog {
	return &Catalog{
		names: append([]NameEntry(nil), names...),
		rules: Honorifics(),
	}
}

// Default returns the built-in catalog. The result is shared and must not
// be modified.
func Default() *Catalog {
	defaultOnce.Do(func() {
		names, err := parse(builtinNames)
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded names.yaml: %v", err))
		}
		defaultCatalog = New(names)
	})
	return defaultCatalog
}

// LoadFile reads a YAML name list from path.
func LoadFile(path string) ([]NameEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	names, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return names, nil
}

func parse(data []byte) ([]NameEntry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	for i, n := range f.Names {
		if n.Source == "" {
			return nil, fmt.Errorf("name #%d has no source", i+1)
		}
		if n.Canonical == "" {
			return nil, fmt.Errorf("name %q has no canonical form", n.Source)
		}
	}
	return f.Names, nil
}

// With returns a new catalog whose names are extra followed by c's names.
// User-supplied names therefore take precedence over built-in ones.
func (c *Catalog) With(extra []NameEntry) *Catalog {
	names := make([]NameEntry, 0, len(extra)+len(c.names))
	names = append(names, extra...)
	names = append(names, c.names...)
	return &Catalog{names: names, rules: c.rules}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Names returns a copy of the names in scan order.
func (c *Catalog) Names() []NameEntry {
	return append([]NameEntry(nil), c.names...)
}

// Len returns the number of names.
func (c *Catalog) Len() int {
	return len(c.names)
}

// Rules returns the rules tried for every name: the honorifics in
// priority order followed by the bare-name fallback.
func (c *Catalog) Rules() []SuffixRule {
	rules := make([]SuffixRule, 0, len(c.rules)+1)
	rules = append(rules, c.rules...)
	return append(rules, Bare)
}

// Lookup returns the canonical rendering of an exact source name.
func (c *Catalog) Lookup(source string) (string, bool) {
	for _, n := range c.names {
		if n.Source == source {
			return n.Canonical, true
		}
	}
	return "", false
}
