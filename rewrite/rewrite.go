// Package rewrite applies ordered tables of text substitution rules.
//
// Each Rule is a (pattern, replacement, condition) triple. The pattern is a
// literal string, a compiled regular expression, or an arbitrary function;
// the condition is evaluated against an Env describing the text being
// rewritten. Table.Apply runs the rules in order, each one on the output
// of the previous.
package rewrite

import (
	"regexp"
	"strings"
)

// Env carries the facts rule conditions may depend on.
type Env struct {
	// Source is the untranslated source text (for post-translation rules).
	Source string
	// Language is the source language code.
	Language string
	// Backend is the OCR backend kind that produced the text, if any.
	Backend string
}

// Condition decides whether a rule applies.
type Condition func(env Env) bool

// Rule is one substitution. Exactly one of Find, Pattern and Func is set.
type Rule struct {
	// Name identifies the rule in tests and debug output.
	Name string
	// Find is a literal, case-sensitive substring.
	Find string
	// Pattern is a regular expression; Replace may reference its groups.
	Pattern *regexp.Regexp
	// Func rewrites the whole text.
	Func func(string) string
	// Replace is the replacement for Find or Pattern.
	Replace string
	// When gates the rule; nil means always.
	When Condition
}

// Table is an ordered rule list.
type Table []Rule

// Apply runs every applicable rule over text in order.
func (t Table) Apply(text string, env Env) string {
	for _, r := range t {
		if r.When != nil && !r.When(env) {
			continue
		}
		text = r.apply(text)
	}
	return text
}

func (r Rule) apply(text string) string {
	switch {
	case r.Func != nil:
		return r.Func(text)
	case r.Pattern != nil:
		return r.Pattern.ReplaceAllString(text, r.Replace)
	case r.Find != "":
		return strings.ReplaceAll(text, r.Find, r.Replace)
	}
	return text
}

// Literal builds literal rules from (find, replace) pairs sharing a condition.
func Literal(when Condition, pairs ...[2]string) Table {
	t := make(Table, 0, len(pairs))
	for _, p := range pairs {
		t = append(t, Rule{Name: p[0], Find: p[0], Replace: p[1], When: when})
	}
	return t
}

// Concat joins tables in order.
func Concat(tables ...Table) Table {
	var out Table
	for _, t := range tables {
		out = append(out, t...)
	}
	return out
}

// ---------------------------------------------------------------------------
// Conditions
// ---------------------------------------------------------------------------

// Not negates c.
func Not(c Condition) Condition {
	return func(env Env) bool { return !c(env) }
}

// SourceMatches holds when the source text matches re.
func SourceMatches(re *regexp.Regexp) Condition {
	return func(env Env) bool { return re.MatchString(env.Source) }
}

// SourceContains holds when the source text contains s literally.
func SourceContains(s string) Condition {
	return func(env Env) bool { return strings.Contains(env.Source, s) }
}

// LanguageIs holds when match reports true for the env language.
func LanguageIs(match func(string) bool) Condition {
	return func(env Env) bool { return match(env.Language) }
}

// BackendIsNot holds when the env backend differs from kind.
func BackendIsNot(kind string) Condition {
	return func(env Env) bool { return env.Backend != kind }
}
