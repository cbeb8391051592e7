package codec

import (
	"fmt"
	"strings"
	"testing"
	"unicode"

	"github.com/minios-linux/dialogkit/catalog"
)

func identity(s string) string { return s }

func TestEncodeSingleNameWithSuffix(t *testing.T) {
	encoded, table := Encode("エリオットさん", catalog.Default())
	if encoded != "B" {
		t.Fatalf("Encode() text = %q, want %q", encoded, "B")
	}
	if len(table) != 1 || table[0].Token != 'B' || table[0].Replacement != "艾利歐特" {
		t.Fatalf("Encode() table = %#v", table)
	}
	if got := Decode(identity(encoded), table); got != "艾利歐特" {
		t.Fatalf("Decode() = %q, want %q", got, "艾利歐特")
	}
}

func TestRoundTripAllSuffixes(t *testing.T) {
	c := catalog.Default()
	for _, rule := range c.Rules() {
		text := "ああ、エリオット" + rule.Suffix + "！"
		want := "ああ、" + rule.Rewrite("艾利歐特") + "！"

		encoded, table := Encode(text, c)
		if len(table) != 1 {
			t.Fatalf("suffix %q: table has %d entries, want 1", rule.Suffix, len(table))
		}
		if got := Decode(identity(encoded), table); got != want {
			t.Errorf("suffix %q: round trip = %q, want %q", rule.Suffix, got, want)
		}
	}
}

func TestEncodeReplacesEveryOccurrence(t *testing.T) {
	encoded, table := Encode("アリゼー様、アリゼー様！", catalog.Default())
	if encoded != "B、B！" {
		t.Fatalf("Encode() text = %q, want %q", encoded, "B、B！")
	}
	if got := Decode(encoded, table); got != "阿莉塞大人、阿莉塞大人！" {
		t.Fatalf("Decode() = %q", got)
	}
}

func TestEncodeSpecificSuffixBeforeGeneric(t *testing.T) {
	encoded, table := Encode("アリゼーお嬢さん", catalog.Default())
	if encoded != "B" {
		t.Fatalf("Encode() text = %q, want %q", encoded, "B")
	}
	if table[0].Replacement != "阿莉塞小姐" {
		t.Fatalf("replacement = %q, want 阿莉塞小姐", table[0].Replacement)
	}
}

func TestEncodeOneSubstitutionPerName(t *testing.T) {
	encoded, table := Encode("エリオットさんとエリオットくん", catalog.Default())
	if len(table) != 1 {
		t.Fatalf("table has %d entries, want 1", len(table))
	}
	if encoded != "Bとエリオットくん" {
		t.Fatalf("Encode() text = %q, want second form left unencoded", encoded)
	}
}

func TestTokensNeverCollideWithInput(t *testing.T) {
	inputs := []string{
		"Bob: エリオットさん and アルフィノ",
		"xyz アリゼー様 QRST タタル",
		"bcdfg サンクレッド、ウリエンジェ",
	}
	for _, in := range inputs {
		_, table := Encode(in, catalog.Default())
		seen := map[rune]bool{}
		upper := strings.ToUpper(in)
		for _, p := range table {
			if seen[p.Token] {
				t.Errorf("%q: duplicate token %q", in, p.Token)
			}
			seen[p.Token] = true
			if strings.ContainsRune(upper, unicode.ToUpper(p.Token)) {
				t.Errorf("%q: token %q occurs in input", in, p.Token)
			}
		}
		if len(table) == 0 {
			t.Errorf("%q: expected at least one substitution", in)
		}
	}
}

func TestAlphabetExclusion(t *testing.T) {
	got := string(Alphabet("bed"))
	if strings.ContainsAny(got, "BD") {
		t.Fatalf("Alphabet(bed) = %q, must exclude B and D", got)
	}
	if len(got) != len(MasterAlphabet)-2 {
		t.Fatalf("Alphabet(bed) has %d letters, want %d", len(got), len(MasterAlphabet)-2)
	}
}

func TestEncodeEmptyAlphabet(t *testing.T) {
	text := MasterAlphabet + " エリオットさん"
	encoded, table := Encode(text, catalog.Default())
	if encoded != text || len(table) != 0 {
		t.Fatalf("Encode() = %q, %v; want input unchanged and empty table", encoded, table)
	}
}

func TestAlphabetExhaustion(t *testing.T) {
	var names []catalog.NameEntry
	var parts []string
	for i := 0; i < len(MasterAlphabet)+4; i++ {
		src := fmt.Sprintf("名%c", rune('あ'+i))
		names = append(names, catalog.NameEntry{Source: src, Canonical: fmt.Sprintf("N%d", i)})
		parts = append(parts, src)
	}
	c := catalog.New(names)
	text := strings.Join(parts, "、")

	encoded, table := Encode(text, c)
	if len(table) != len(MasterAlphabet) {
		t.Fatalf("table has %d entries, want %d", len(table), len(MasterAlphabet))
	}
	for _, leftover := range parts[len(MasterAlphabet):] {
		if !strings.Contains(encoded, leftover) {
			t.Errorf("unencoded name %q should be left untouched in %q", leftover, encoded)
		}
	}
	if table.Tokens() != MasterAlphabet {
		t.Fatalf("tokens = %q, want ascending alphabet %q", table.Tokens(), MasterAlphabet)
	}
}

func TestEncodeDoesNotMutateCatalog(t *testing.T) {
	c := catalog.Default()
	before := c.Names()
	Encode("エリオットさんとアルフィノ", c)
	after := c.Names()
	if len(before) != len(after) {
		t.Fatal("catalog length changed")
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("catalog entry %d changed", i)
		}
	}
}

func TestDecodeWithoutTable(t *testing.T) {
	if got := Decode("你好", nil); got != "你好" {
		t.Fatalf("Decode() = %q, want unchanged", got)
	}
}

func TestDecodeDoesNotRescanRestoredNames(t *testing.T) {
	c := catalog.New([]catalog.NameEntry{
		{Source: "アリス", Canonical: "Alice Cooper"},
		{Source: "ボブ", Canonical: "鮑勃"},
	})
	encoded, table := Encode("アリスさんとボブさん", c)
	if encoded != "BとC" {
		t.Fatalf("Encode() text = %q, want %q", encoded, "BとC")
	}
	if got := Decode(encoded, table); got != "Alice Cooperと鮑勃" {
		t.Fatalf("Decode() = %q, want %q", got, "Alice Cooperと鮑勃")
	}

	// A replacement may even contain a later token verbatim.
	table = Table{{Token: 'B', Replacement: "C-3PO"}, {Token: 'C', Replacement: "R2"}}
	if got := Decode("B, C", table); got != "C-3PO, R2" {
		t.Fatalf("Decode() = %q, want %q", got, "C-3PO, R2")
	}
}
