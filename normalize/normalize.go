// Package normalize cleans raw OCR output before it enters the pipeline.
//
// Rules run in a fixed order: line-break cleanup for every language, then
// whitespace removal and punctuation unification for Japanese, then a
// closed list of known misrecognition fixes for every backend except the
// cloud recogniser. Every rule is deterministic and the table is
// idempotent: normalizing already-normalized text returns it unchanged.
package normalize

import (
	"regexp"

	"golang.org/x/text/width"

	"github.com/minios-linux/dialogkit/dialogue"
	"github.com/minios-linux/dialogkit/langmeta"
	"github.com/minios-linux/dialogkit/rewrite"
)

var (
	japanese = rewrite.LanguageIs(langmeta.IsJapanese)
	lossy    = rewrite.BackendIsNot(dialogue.BackendGoogleVision)
)

// Rules is the full normalization table.
var Rules = rewrite.Concat(lineRules, japaneseRules, misrecognitionRules)

var lineRules = rewrite.Table{
	{Name: "crlf", Pattern: regexp.MustCompile(`\r\n?`), Replace: "\n"},
	// Blank and whitespace-only lines disappear, so stripping spaces later
	// cannot bring two line breaks together.
	{Name: "blank-lines", Pattern: regexp.MustCompile(`\n(?:[ \t\x{3000}]*\n)+`), Replace: "\n"},
}

var japaneseRules = rewrite.Concat(
	rewrite.Table{
		{Name: "spaces", Pattern: regexp.MustCompile(`[ \t\x{3000}]+`), When: japanese},
	},
	rewrite.Literal(japanese,
		[2]string{"...", "…"},
		[2]string{"..", "…"},
		[2]string{"･･･", "…"},
		[2]string{"･･", "…"},
	),
	widen(japanese, "･"),
	rewrite.Literal(japanese,
		[2]string{"・・・", "…"},
		[2]string{"・・", "…"},
	),
	widen(japanese, "､?!~:="),
	rewrite.Literal(japanese,
		[2]string{"『", "「"},
		[2]string{"』", "」"},
	),
)

var misrecognitionRules = rewrite.Concat(
	rewrite.Literal(lossy, [2]string{"`", "「"}),
	rewrite.Table{
		{Name: "isolated-middle-dot", Func: isolatedMiddleDot, When: lossy},
	},
	rewrite.Literal(lossy,
		[2]string{"ガンプレイカー", "ガンブレイカー"},
		[2]string{"ガンプブレイカー", "ガンブレイカー"},
	),
	rewrite.Table{
		{Name: "darkness", Pattern: regexp.MustCompile(`間の(使徒|戦士|巫女|世界)`), Replace: "闇の$1", When: lossy},
		{Name: "warrior", Pattern: regexp.MustCompile(`(機工|飛空|整備|道|戦|闘|兵)(?:填|土)`), Replace: "${1}士", When: lossy},
		{Name: "agree", Find: "倫成", Replace: "賛成", When: lossy},
	},
)

// widen returns one rule per rune of chars replacing it with its
// full-width form.
func widen(when rewrite.Condition, chars string) rewrite.Table {
	var t rewrite.Table
	for _, r := range chars {
		half := string(r)
		t = append(t, rewrite.Rule{Name: half, Find: half, Replace: width.Widen.String(half), When: when})
	}
	return t
}

func isKatakana(r rune) bool {
	return (r >= 'ァ' && r <= 'ヺ') || r == 'ー'
}

// isolatedMiddleDot turns a ・ with no katakana on either side into 、.
// Between katakana it is a name separator and is kept.
func isolatedMiddleDot(text string) string {
	runes := []rune(text)
	changed := false
	for i, r := range runes {
		if r != '・' {
			continue
		}
		prev := i > 0 && isKatakana(runes[i-1])
		next := i+1 < len(runes) && isKatakana(runes[i+1])
		if !prev && !next {
			runes[i] = '、'
			changed = true
		}
	}
	if !changed {
		return text
	}
	return string(runes)
}

// Normalize cleans rawText recognised by backend in language lang.
func Normalize(rawText, lang, backend string) string {
	return Rules.Apply(rawText, rewrite.Env{Language: lang, Backend: backend})
}
