// Package langmeta provides the language registry shared by the pipeline,
// the OCR backends and the translator prompts.
package langmeta

import "strings"

// Language codes understood by the pipeline.
const (
	Japanese           = "ja"
	English            = "en"
	ChineseTraditional = "zh-TW"
	ChineseSimplified  = "zh-CN"
	Korean             = "ko"
)

// Meta describes a language.
type Meta struct {
	// Name is the English name used in translator prompts.
	Name string
	// Native is the language's own name, shown in the CLI.
	Native string
	// Tesseract lists the traineddata names passed to tesseract -l.
	Tesseract []string
}

// Registry contains canonical language metadata.
// Locale variants are resolved in Resolve() via normalization and base fallback.
var Registry = map[string]Meta{
	"ja":    {Name: "Japanese", Native: "日本語", Tesseract: []string{"jpn", "jpn_vert"}},
	"en":    {Name: "English", Native: "English", Tesseract: []string{"eng"}},
	"ko":    {Name: "Korean", Native: "한국어", Tesseract: []string{"kor"}},
	"fr":    {Name: "French", Native: "Français", Tesseract: []string{"fra"}},
	"de":    {Name: "German", Native: "Deutsch", Tesseract: []string{"deu"}},
	"zh":    {Name: "Chinese", Native: "中文", Tesseract: []string{"chi_tra"}},
	"zh-CN": {Name: "Simplified Chinese", Native: "简体中文", Tesseract: []string{"chi_sim"}},
	"zh-TW": {Name: "Traditional Chinese", Native: "繁體中文", Tesseract: []string{"chi_tra"}},
}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Canonical returns the registry key for lang, or the canonicalized code
// when the language is unknown.
func Canonical(lang string) string {
	if _, ok := Registry[lang]; ok {
		return lang
	}
	normalized := canonicalize(lang)
	if _, ok := Registry[normalized]; ok {
		return normalized
	}
	if parts := strings.SplitN(normalized, "-", 2); len(parts) == 2 {
		if _, ok := Registry[parts[0]]; ok {
			return parts[0]
		}
	}
	return normalized
}

// Known reports whether lang resolves to a registered language.
func Known(lang string) bool {
	_, ok := Registry[Canonical(lang)]
	return ok
}

// Resolve returns best-effort language metadata for language codes,
// supporting variants like ja_JP, zh_tw, and locale fallbacks.
func Resolve(lang string) Meta {
	if m, ok := Registry[Canonical(lang)]; ok {
		return m
	}
	return Meta{Name: lang, Native: lang}
}

// IsJapanese reports whether lang is the honorific-bearing source language.
func IsJapanese(lang string) bool {
	return Canonical(lang) == Japanese
}
