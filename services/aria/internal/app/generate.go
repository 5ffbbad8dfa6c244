package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ariabackend/pkg/domain"
	"ariabackend/pkg/filter"
	"ariabackend/pkg/otp"
)

const ariaSystemPrompt = `You are ARIA, the organization's voice and chat assistant.
Answer using only the provided document context and conversation history.
Be concise and factual. When the context does not contain the answer, say you do not know.`

// Database selectors for the generate operation. ORG queries the
// organization's shared index, EMP the requesting employee's own.
const (
	DBOrg = "ORG"
	DBEmp = "EMP"
)

// Generate answers an employee query against the organization's (or the
// employee's own) document index, filters the answer, and appends the
// exchange to the employee's conversation history.
func (a *App) Generate(ctx context.Context, org domain.User, userID, query, dbName string) (string, error) {
	userID, err := otp.NormalizeEmail(userID)
	if err != nil {
		return "", err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrQueryRequired
	}

	var key string
	switch strings.ToUpper(strings.TrimSpace(dbName)) {
	case DBOrg, "":
		key = tenantKey(org.Email)
	case DBEmp:
		key = tenantKey(userID)
	default:
		return "", ErrBadDatabaseName
	}

	allowed, err := a.IsDomainAuthorized(userID, org.Email)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", ErrDomainNotAllowed
	}

	retriever, err := a.indexes.Retrieve(ctx, key)
	if err != nil {
		return "", err
	}
	defer retriever.Close()

	chunks, err := retriever.Search(ctx, query)
	if err != nil {
		return "", fmt.Errorf("search index: %w", err)
	}
	history, err := a.store.ListConversation(userID, a.historyLimit)
	if err != nil {
		return "", fmt.Errorf("load conversation: %w", err)
	}

	answer, err := a.generator.GenerateText(ctx, ariaSystemPrompt, buildPrompt(chunks, history, query))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	filtered := filter.Apply(answer, org.FilterWords)

	entry := domain.ConversationEntry{
		UserID:    userID,
		Query:     query,
		Response:  filtered,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AppendConversation(userID, entry); err != nil {
		slog.Warn("failed to append conversation", "user", otp.MaskEmail(userID), "err", err)
	}
	return filtered, nil
}

func buildPrompt(chunks []domain.Chunk, history []domain.ConversationEntry, query string) string {
	var b strings.Builder
	if len(chunks) > 0 {
		b.WriteString("Context:\n")
		for _, chunk := range chunks {
			b.WriteString(chunk.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, entry := range history {
			b.WriteString("User: ")
			b.WriteString(entry.Query)
			b.WriteString("\nARIA: ")
			b.WriteString(entry.Response)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}
