// Package dialogue defines the entries that flow through the pipeline and
// the chat channel classification used to route them.
package dialogue

import "time"

// Channel codes with special handling.
const (
	// CodeOCR is the channel assigned to text recognised from screenshots.
	CodeOCR = "003D"
	// CodeNotification marks system notifications.
	CodeNotification = "FFFF"
)

// OCR backend kinds recorded in Entry.Source.
const (
	BackendTesseract    = "tesseract"
	BackendGoogleVision = "google-vision"
)

// playerChannels are chat channels written by players. Their entries use
// Directive.FromPlayer as the source language.
var playerChannels = map[string]bool{
	"000A": true, // Say
	"000B": true, // Shout
	"000D": true, // Tell
	"000E": true, // Party
	"000F": true, // Alliance
	"0010": true, // Linkshell 1-8
	"0011": true,
	"0012": true,
	"0013": true,
	"0014": true,
	"0015": true,
	"0016": true,
	"0017": true,
	"0018": true, // Free Company
	"001B": true, // Novice Network
	"001E": true, // Yell
	"0025": true, // Cross-world Linkshell 1-8
	"0065": true,
	"0066": true,
	"0067": true,
	"0068": true,
	"0069": true,
	"006A": true,
	"006B": true,
}

// npcChannels carry NPC dialogue.
var npcChannels = map[string]bool{
	"003D": true,
	"0044": true,
	"2AB9": true,
}

// IsPlayerChannel reports whether code is a player chat channel.
func IsPlayerChannel(code string) bool {
	return playerChannels[code]
}

// IsNPCChannel reports whether code carries NPC dialogue.
func IsNPCChannel(code string) bool {
	return npcChannels[code]
}

// Directive tells the pipeline which languages to translate between.
type Directive struct {
	// From is the source language of NPC and system channels.
	From string `json:"from"`
	// FromPlayer is the source language of player channels.
	FromPlayer string `json:"fromPlayer"`
	// To is the target language.
	To string `json:"to"`
}

// Entry is one line of dialogue captured from the game.
type Entry struct {
	// ID and Timestamp are assigned by the queue at drain time when empty.
	ID string `json:"id,omitempty"`
	// Timestamp is in Unix milliseconds.
	Timestamp int64  `json:"timestamp,omitempty"`
	Code      string `json:"code"`
	Player    string `json:"playerName,omitempty"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	// Source is the OCR backend kind for recognised text, empty for chat.
	Source      string    `json:"source,omitempty"`
	Translation Directive `json:"translation"`
}

// SourceLanguage returns the language the entry's text is written in,
// chosen by channel.
func (e *Entry) SourceLanguage() string {
	if IsPlayerChannel(e.Code) {
		return e.Translation.FromPlayer
	}
	return e.Translation.From
}

// Time returns the entry timestamp.
func (e *Entry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// FromOCR reports whether the entry was produced by an OCR backend.
func (e *Entry) FromOCR() bool {
	return e.Source != ""
}

// Result is a translated entry ready for display.
type Result struct {
	Entry          Entry
	TranslatedName string
	TranslatedText string
	// Skipped is set when the text needed no translation.
	Skipped bool
}
