package index

import (
	"strings"
	"testing"
)

func TestSplitTextEmpty(t *testing.T) {
	if got := SplitText("", 100, 10); got != nil {
		t.Fatalf("expected nil for empty text, got %v", got)
	}
	if got := SplitText("   \n \n ", 100, 10); got != nil {
		t.Fatalf("expected nil for blank text, got %v", got)
	}
}

func TestSplitTextSingleChunk(t *testing.T) {
	text := "first paragraph\nsecond paragraph"
	got := SplitText(text, 100, 10)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0] != text {
		t.Fatalf("unexpected chunk: %q", got[0])
	}
}

func TestSplitTextRespectsSize(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString(strings.Repeat("x", 50))
		b.WriteString("\n")
	}
	chunks := SplitText(b.String(), 200, 60)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 200 {
			t.Fatalf("chunk %d exceeds size: %d chars", i, len(chunk))
		}
	}
}

func TestSplitTextOverlapCarriesContext(t *testing.T) {
	text := "aaaa aaaa\nbbbb bbbb\ncccc cccc\ndddd dddd"
	chunks := SplitText(text, 22, 10)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d: %v", len(chunks), chunks)
	}
	// The paragraph ending the first chunk should reappear at the start
	// of the second.
	firstLines := strings.Split(chunks[0], "\n")
	last := firstLines[len(firstLines)-1]
	if !strings.HasPrefix(chunks[1], last) {
		t.Fatalf("second chunk %q does not carry %q", chunks[1], last)
	}
}

func TestSplitTextOversizedParagraph(t *testing.T) {
	text := strings.Repeat("y", 550)
	chunks := SplitText(text, 200, 50)
	if len(chunks) < 3 {
		t.Fatalf("expected oversized paragraph sliced, got %d chunks", len(chunks))
	}
	var joined strings.Builder
	for _, chunk := range chunks {
		if len(chunk) > 200 {
			t.Fatalf("slice exceeds size: %d", len(chunk))
		}
		joined.WriteString(chunk)
	}
	if !strings.Contains(joined.String(), strings.Repeat("y", 200)) {
		t.Fatal("sliced content lost")
	}
}
