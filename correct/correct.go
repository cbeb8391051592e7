// Package correct repairs translated Chinese text using hints from the
// Japanese source: gender agreement of pronouns and titles, and a
// recurring mistranslation of 娘.
package correct

import (
	"regexp"

	"github.com/minios-linux/dialogkit/rewrite"
)

// femaleWords matches source words that indicate a female referent.
var femaleWords = regexp.MustCompile(`(?i)女|娘|嬢|母|マザー|ピクシー|ティターニア`)

// daughter is the source word that justifies 女兒 in the translation.
const daughter = "娘"

// Rules is the post-translation table. The daughter rule runs on the output
// of the gender rules.
var Rules = rewrite.Concat(
	rewrite.Literal(rewrite.Not(rewrite.SourceMatches(femaleWords)),
		[2]string{"她", "他"},
		[2]string{"小姐", ""},
		[2]string{"女王", "王"},
	),
	rewrite.Literal(rewrite.Not(rewrite.SourceContains(daughter)),
		[2]string{"女兒", "女孩"},
	),
)

// IsFemale reports whether source mentions a female referent.
func IsFemale(source string) bool {
	return femaleWords.MatchString(source)
}

// Correct fixes translated using the source text it was translated from.
func Correct(source, translated string) string {
	return Rules.Apply(translated, rewrite.Env{Source: source})
}

// translatable matches characters that need translation: katakana,
// hiragana and CJK ideographs.
var translatable = regexp.MustCompile(`[ァ-ヺぁ-ゖ\x{4E00}-\x{9FFF}]`)

// CanSkipTranslation reports whether text has nothing to translate, such
// as a line made only of Latin words, digits and punctuation.
func CanSkipTranslation(text string) bool {
	return !translatable.MatchString(text)
}
