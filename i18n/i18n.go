// Package i18n translates dialogkit's own user-facing strings, mainly the
// notifications shown next to translated dialogue.
//
// Catalogs are gettext .po files embedded under
// locales/<lang>/LC_MESSAGES/dialogkit.po and parsed by gotext. Init picks
// one at startup; before Init, or for a language without a catalog, T and N
// return the English msgid.
package i18n

import (
	"embed"
	"os"
	"strings"
	"sync/atomic"

	"github.com/leonelquinteros/gotext"
)

//go:embed all:locales
var locales embed.FS

const domain = "dialogkit"

// messages is one loaded catalog.
type messages struct {
	locale *gotext.Locale
	// singular is a snapshot of the domain's translations keyed by msgid.
	// T reads it directly so msgids are never treated as format strings.
	singular map[string]*gotext.Translation
}

var current atomic.Pointer[messages]

// Init loads the catalog for lang. An empty lang is detected from
// LANGUAGE, LC_ALL, LC_MESSAGES and LANG, in that order.
func Init(lang string) {
	if lang == "" {
		lang = detectLanguage()
	}
	locale := gotext.NewLocaleFSWithPath(lang, locales, "locales")
	locale.AddDomain(domain)
	locale.SetDomain(domain)
	current.Store(&messages{locale: locale, singular: locale.GetTranslations()})
}

// reset drops the loaded catalog.
func reset() {
	current.Store(nil)
}

// T translates msgid, or returns it unchanged when the catalog has no entry.
func T(msgid string) string {
	m := current.Load()
	if m == nil {
		return msgid
	}
	if tr, ok := m.singular[msgid]; ok {
		return tr.Get()
	}
	return msgid
}

// N translates a message with plural forms using the catalog's plural
// formula. Without a catalog the singular is used for n == 1 only.
func N(singular, plural string, n int) string {
	m := current.Load()
	if m == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return m.locale.GetN(singular, plural, n)
}

// detectLanguage follows GNU gettext's environment priority. LANGUAGE may
// be a colon-separated list; only its first element is used. Encoding
// suffixes are stripped and the C/POSIX locales mean "untranslated".
func detectLanguage() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if env == "LANGUAGE" {
			val, _, _ = strings.Cut(val, ":")
		}
		val, _, _ = strings.Cut(val, ".")
		switch val {
		case "", "C", "POSIX":
			continue
		}
		return val
	}
	return "en"
}
