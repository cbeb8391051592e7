// Package codec hides catalog names behind single-character placeholders so
// they pass through machine translation untouched, and restores them
// afterwards.
//
// Encode scans the catalog once: for each name the first rule whose
// name+suffix compound appears in the text is replaced everywhere by the
// next free placeholder. A name written with two different suffixes in the
// same text therefore only has its first matching form protected. Decode
// reverses the substitution on the translated text.
package codec

import (
	"strings"
	"unicode"

	"github.com/minios-linux/dialogkit/catalog"
)

// MasterAlphabet lists the candidate placeholders in assignment order:
// upper-case consonants that are unlikely to be read as words.
const MasterAlphabet = "BCDFGHJKLMNPQRSTVWXYZ"

// Pair records one substitution.
type Pair struct {
	Token       rune
	Replacement string
}

// Table is the restoration table produced by Encode, in insertion order.
type Table []Pair

// Alphabet returns the placeholders usable for text: MasterAlphabet minus
// every character of text, compared case-insensitively.
func Alphabet(text string) []rune {
	used := make(map[rune]bool)
	for _, r := range text {
		used[unicode.ToUpper(r)] = true
	}

	var alphabet []rune
	for _, r := range MasterAlphabet {
		if !used[r] {
			alphabet = append(alphabet, r)
		}
	}
	return alphabet
}

// Encode replaces protected name compounds in text with placeholders and
// returns the encoded text with its restoration table. When no placeholder
// is available, or nothing matches, text is returned unchanged with an
// empty table. Encode never modifies c.
func Encode(text string, c *catalog.Catalog) (string, Table) {
	alphabet := Alphabet(text)
	if len(alphabet) == 0 || c == nil {
		return text, nil
	}

	rules := c.Rules()
	var table Table
	next := 0

	for _, name := range c.Names() {
		if next >= len(alphabet) {
			break
		}
		for _, rule := range rules {
			compound := name.Source + rule.Suffix
			if !strings.Contains(text, compound) {
				continue
			}
			token := alphabet[next]
			text = strings.ReplaceAll(text, compound, string(token))
			table = append(table, Pair{Token: token, Replacement: rule.Rewrite(name.Canonical)})
			next++
			break
		}
	}

	return text, table
}

// Decode restores every placeholder in translated using table in a single
// pass, so text inserted for one token is never rescanned for another.
func Decode(translated string, table Table) string {
	if len(table) == 0 {
		return translated
	}
	pairs := make([]string, 0, 2*len(table))
	for _, p := range table {
		pairs = append(pairs, string(p.Token), p.Replacement)
	}
	return strings.NewReplacer(pairs...).Replace(translated)
}

// Tokens returns the placeholders of the table in order.
func (t Table) Tokens() string {
	var b strings.Builder
	for _, p := range t {
		b.WriteRune(p.Token)
	}
	return b.String()
}
