package filter

import (
	"regexp"
	"strings"
)

// Redaction replaces each configured filter word in generated output.
const Redaction = "[inappropriate language removed]"

// Apply removes markdown emphasis markers and redacts configured filter
// words. Emphasis stripping runs first so that words wrapped as *word* are
// still matched afterwards. Apply never fails; an empty word set is a no-op.
func Apply(text string, words []string) string {
	text = strings.ReplaceAll(text, "*", "")
	for _, word := range words {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(word))
		if err != nil {
			continue
		}
		text = re.ReplaceAllString(text, Redaction)
	}
	return text
}
