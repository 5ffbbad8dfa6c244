package filter

import (
	"strings"
	"testing"
)

func TestApplyStripsEmphasisAndRedacts(t *testing.T) {
	got := Apply("*secret* is bad", []string{"secret"})
	if strings.Contains(got, "*") {
		t.Fatalf("expected asterisks removed, got %q", got)
	}
	if strings.Contains(strings.ToLower(got), "secret") {
		t.Fatalf("expected word redacted, got %q", got)
	}
	if !strings.Contains(got, Redaction) {
		t.Fatalf("expected redaction marker, got %q", got)
	}
}

func TestApplyCaseInsensitive(t *testing.T) {
	got := Apply("SeCrEt plans", []string{"secret"})
	if strings.Contains(strings.ToLower(got), "secret") {
		t.Fatalf("expected case-insensitive redaction, got %q", got)
	}
}

func TestApplyEmphasisBeforeRedaction(t *testing.T) {
	// The emphasis markers split the word in the raw text; stripping them
	// first is what makes the match possible.
	got := Apply("our *sec*ret plan", []string{"secret"})
	if strings.Contains(strings.ToLower(got), "secret") {
		t.Fatalf("expected wrapped word redacted, got %q", got)
	}
}

func TestApplyEmptyWordSetIsNoOp(t *testing.T) {
	if got := Apply("plain text", nil); got != "plain text" {
		t.Fatalf("expected unchanged text, got %q", got)
	}
	if got := Apply("starred *text*", nil); got != "starred text" {
		t.Fatalf("expected only asterisks removed, got %q", got)
	}
}

func TestApplyIgnoresBlankWords(t *testing.T) {
	if got := Apply("plain text", []string{" ", ""}); got != "plain text" {
		t.Fatalf("expected blank words skipped, got %q", got)
	}
}
