package dialogue

import (
	"encoding/json"
	"testing"
)

func TestSourceLanguageByChannel(t *testing.T) {
	directive := Directive{From: "ja", FromPlayer: "en", To: "zh-TW"}

	cases := []struct {
		code string
		want string
	}{
		{code: "000A", want: "en"}, // Say
		{code: "0018", want: "en"}, // Free Company
		{code: "006B", want: "en"}, // CWLS 8
		{code: "003D", want: "ja"}, // NPC
		{code: "0039", want: "ja"}, // system
	}
	for _, tc := range cases {
		e := Entry{Code: tc.code, Translation: directive}
		if got := e.SourceLanguage(); got != tc.want {
			t.Errorf("SourceLanguage(%s) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestChannelTables(t *testing.T) {
	if IsPlayerChannel(CodeOCR) {
		t.Fatal("OCR channel must not be a player channel")
	}
	if !IsNPCChannel(CodeOCR) {
		t.Fatal("OCR channel should be an NPC channel")
	}
	if IsNPCChannel("000A") {
		t.Fatal("Say must not be an NPC channel")
	}
}

func TestEntryDecodesPluginPayload(t *testing.T) {
	payload := `{"code":"003D","name":"エリオット","text":"こんにちは","timestamp":1700000000000,
		"translation":{"from":"ja","fromPlayer":"en","to":"zh-TW"}}`

	var e Entry
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if e.Translation.FromPlayer != "en" || e.Name != "エリオット" {
		t.Fatalf("unexpected entry: %#v", e)
	}
	if e.Time().UnixMilli() != 1700000000000 {
		t.Fatalf("Time() = %v", e.Time())
	}
	if e.FromOCR() {
		t.Fatal("chat entry reported as OCR")
	}
}
