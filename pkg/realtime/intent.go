package realtime

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Intent is what a chat message asks for
type Intent int

const (
	// IntentConverse is a plain conversational message
	IntentConverse Intent = iota
	// IntentGenerate asks for a diagram to be generated
	IntentGenerate
)

// String returns the intent name
func (i Intent) String() string {
	if i == IntentGenerate {
		return "generate"
	}
	return "converse"
}

// GenerateKeywords trigger diagram generation when found anywhere in a message
var GenerateKeywords = []string{"genera", "crea", "diagrama", "clases", "uml"}

// ClassifyIntent decides whether a chat message requests a diagram.
// Matching is case and accent insensitive substring search over GenerateKeywords.
func ClassifyIntent(text string) Intent {
	folded := fold(text)
	for _, kw := range GenerateKeywords {
		if strings.Contains(folded, kw) {
			return IntentGenerate
		}
	}
	return IntentConverse
}

// fold lower-cases and strips combining marks ("Créa" -> "crea")
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
