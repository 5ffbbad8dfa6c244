package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"ariabackend/pkg/domain"
	"ariabackend/pkg/otp"
)

const maxDocumentBytes = 32 << 20

const filterExtractionPrompt = `You review organizational documents for terms the organization has marked as inappropriate or confidential.
Return ONLY a JSON array of lowercase strings, for example ["term1","term2"].
Return [] when the documents mark nothing. Do not add commentary.`

// ProcessDocuments ingests the organization's documents: fetch, extract
// text, derive filter words, and provision the retrieval index. With
// rewrite the previous index and filter words are replaced, otherwise
// both are extended. Returns the number of indexed chunks and the stored
// filter words.
func (a *App) ProcessDocuments(ctx context.Context, org domain.User, files []string, rewrite bool) (int, []string, error) {
	if len(files) == 0 {
		return 0, nil, ErrFilesRequired
	}
	docs := make([]domain.Document, 0, len(files))
	for _, file := range files {
		doc, err := a.fetchDocument(ctx, file)
		if err != nil {
			return 0, nil, err
		}
		docs = append(docs, doc)
	}

	words := a.extractFilterWords(ctx, docs)
	if err := a.store.SetFilterWords(org.Email, words, rewrite); err != nil {
		return 0, nil, fmt.Errorf("store filter words: %w", err)
	}

	chunks, err := a.indexes.Provision(ctx, tenantKey(org.Email), docs, rewrite)
	if err != nil {
		return 0, nil, err
	}

	stored, err := a.store.GetFilterWords(org.Email)
	if err != nil {
		return 0, nil, fmt.Errorf("load filter words: %w", err)
	}
	return chunks, stored, nil
}

// ProcessEmployeeDocuments ingests a single employee's documents into that
// employee's own retrieval index, the one the EMP database selector reads.
// The index is rebuilt from scratch on every call and no filter words are
// derived; those belong to the organization's ingestion.
func (a *App) ProcessEmployeeDocuments(ctx context.Context, userID string, files []string) (int, error) {
	userID, err := otp.NormalizeEmail(userID)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, ErrFilesRequired
	}
	docs := make([]domain.Document, 0, len(files))
	for _, file := range files {
		doc, err := a.fetchDocument(ctx, file)
		if err != nil {
			return 0, err
		}
		docs = append(docs, doc)
	}
	return a.indexes.Provision(ctx, tenantKey(userID), docs, true)
}

// fetchDocument downloads one source file and extracts its text.
func (a *App) fetchDocument(ctx context.Context, rawURL string) (domain.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.Document{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.Document{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Document{}, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return domain.Document{}, fmt.Errorf("read %s: %w", rawURL, err)
	}

	name := documentName(rawURL)
	contentType := resp.Header.Get("Content-Type")
	text, err := extractDocumentText(name, contentType, data)
	if err != nil {
		return domain.Document{}, fmt.Errorf("extract %s: %w", name, err)
	}
	if text == "" {
		return domain.Document{}, fmt.Errorf("extract %s: no text content", name)
	}
	return domain.Document{Name: name, Text: text}, nil
}

func extractDocumentText(name, contentType string, data []byte) (string, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".pdf") || strings.Contains(contentType, "application/pdf"):
		return extractPDFText(data)
	case strings.HasSuffix(strings.ToLower(name), ".html") || strings.Contains(contentType, "text/html"):
		return extractHTMLText(data)
	default:
		return normalizeText(string(data)), nil
	}
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing entirely
			continue
		}
		if text = normalizeText(text); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("no text extracted from pdf")
	}
	return out, nil
}

func extractHTMLText(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			b.WriteString(node.Data)
			b.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && (node.Data == "p" || node.Data == "br" || node.Data == "div" || node.Data == "li") {
			b.WriteString("\n")
		}
	}
	walk(doc)
	return normalizeText(b.String()), nil
}

// extractFilterWords asks the generation model for marked terms under a
// JSON-array contract. Any contract violation falls back to no words
// rather than failing the ingestion.
func (a *App) extractFilterWords(ctx context.Context, docs []domain.Document) []string {
	var b strings.Builder
	for _, doc := range docs {
		b.WriteString(doc.Text)
		b.WriteString("\n")
	}
	raw, err := a.generator.GenerateText(ctx, filterExtractionPrompt, b.String())
	if err != nil {
		slog.Warn("filter word extraction failed", "err", err)
		return nil
	}
	return parseFilterWords(raw)
}

func parseFilterWords(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var words []string
	if err := json.Unmarshal([]byte(raw), &words); err != nil {
		slog.Warn("filter word response violated contract", "err", err)
		return nil
	}
	out := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word != "" {
			out = append(out, word)
		}
	}
	return out
}

func documentName(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Path == "" || parsed.Path == "/" {
		return rawURL
	}
	return path.Base(parsed.Path)
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// tenantKey turns an account email into an object-store safe index key.
func tenantKey(email string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(email) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
