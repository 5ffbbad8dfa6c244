package index

import "strings"

// SplitText splits source text on paragraph boundaries into chunks of at
// most size characters, carrying roughly overlap characters of trailing
// context into the next chunk. The overlap preserves cross-chunk context
// for retrieval.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	paragraphs := splitParagraphs(text, size, overlap)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0
	for _, para := range paragraphs {
		paraLen := len([]rune(para))
		if currentLen > 0 && currentLen+paraLen+1 > size {
			chunks = append(chunks, strings.Join(current, "\n"))
			current, currentLen = carryTail(current, overlap)
		}
		current = append(current, para)
		currentLen += paraLen + 1
	}
	if currentLen > 0 {
		chunks = append(chunks, strings.Join(current, "\n"))
	}
	return chunks
}

// splitParagraphs breaks text into trimmed paragraphs, slicing any single
// paragraph longer than size into rune windows with overlap.
func splitParagraphs(text string, size, overlap int) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		runes := []rune(para)
		if len(runes) <= size {
			out = append(out, para)
			continue
		}
		step := size - overlap
		if step <= 0 {
			step = size
		}
		for start := 0; start < len(runes); start += step {
			end := start + size
			if end > len(runes) {
				end = len(runes)
			}
			part := strings.TrimSpace(string(runes[start:end]))
			if part != "" {
				out = append(out, part)
			}
			if end == len(runes) {
				break
			}
		}
	}
	return out
}

// carryTail returns the trailing paragraphs amounting to at least overlap
// characters, seeding the next chunk.
func carryTail(paragraphs []string, overlap int) ([]string, int) {
	if overlap <= 0 {
		return nil, 0
	}
	total := 0
	start := len(paragraphs)
	for start > 0 {
		paraLen := len([]rune(paragraphs[start-1])) + 1
		if total+paraLen > overlap {
			break
		}
		total += paraLen
		start--
	}
	if start == len(paragraphs) {
		return nil, 0
	}
	tail := append([]string(nil), paragraphs[start:]...)
	return tail, total
}
