package rewrite

import (
	"regexp"
	"strings"
	"testing"
)

func TestTableAppliesInOrder(t *testing.T) {
	table := Table{
		{Name: "a->b", Find: "a", Replace: "b"},
		{Name: "b->c", Find: "b", Replace: "c"},
	}
	if got := table.Apply("aab", Env{}); got != "ccc" {
		t.Fatalf("Apply() = %q, want %q", got, "ccc")
	}
}

func TestRuleKinds(t *testing.T) {
	table := Table{
		{Name: "regex", Pattern: regexp.MustCompile(`(\d+)kg`), Replace: "$1 kg"},
		{Name: "func", Func: strings.ToUpper},
		{Name: "empty"},
	}
	if got := table.Apply("5kg of rice", Env{}); got != "5 KG OF RICE" {
		t.Fatalf("Apply() = %q", got)
	}
}

func TestConditions(t *testing.T) {
	isJa := func(l string) bool { return l == "ja" }
	table := Concat(
		Literal(LanguageIs(isJa), [2]string{" ", ""}),
		Literal(BackendIsNot("cloud"), [2]string{"0", "O"}),
		Literal(Not(SourceContains("keep")), [2]string{"x", "y"}),
		Literal(SourceMatches(regexp.MustCompile(`^!`)), [2]string{"z", "Z"}),
	)

	cases := []struct {
		name string
		env  Env
		in   string
		want string
	}{
		{name: "all off", env: Env{Language: "en", Backend: "cloud", Source: "keep"}, in: "a 0 x z", want: "a 0 x z"},
		{name: "language", env: Env{Language: "ja", Backend: "cloud", Source: "keep"}, in: "a 0 x", want: "a0x"},
		{name: "backend", env: Env{Language: "en", Backend: "local", Source: "keep"}, in: "0", want: "O"},
		{name: "source", env: Env{Language: "en", Backend: "cloud", Source: "!drop"}, in: "x z", want: "y Z"},
	}
	for _, tc := range cases {
		if got := table.Apply(tc.in, tc.env); got != tc.want {
			t.Errorf("%s: Apply(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}
