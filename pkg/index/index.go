package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"ariabackend/pkg/domain"
)

// VectorIndex is an in-memory embedding index serialized as a single JSON
// document. Search is exhaustive cosine similarity, which is adequate for
// per-tenant corpora of document chunks.
type VectorIndex struct {
	Dim     int          `json:"dim"`
	Entries []IndexEntry `json:"entries"`
}

// IndexEntry pairs one chunk with its embedding.
type IndexEntry struct {
	Chunk     domain.Chunk `json:"chunk"`
	Embedding []float32    `json:"embedding"`
}

// NewVectorIndex returns an empty index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{}
}

// Add appends chunks with their embeddings. All embeddings must share one
// dimension, which the first addition fixes for the index.
func (ix *VectorIndex) Add(chunks []domain.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("index: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}
	for i, emb := range embeddings {
		if len(emb) == 0 {
			return fmt.Errorf("index: empty embedding for chunk %d", i)
		}
		if ix.Dim == 0 {
			ix.Dim = len(emb)
		}
		if len(emb) != ix.Dim {
			return fmt.Errorf("index: embedding dimension %d, want %d", len(emb), ix.Dim)
		}
		ix.Entries = append(ix.Entries, IndexEntry{Chunk: chunks[i], Embedding: emb})
	}
	return nil
}

// Len reports the number of indexed chunks.
func (ix *VectorIndex) Len() int {
	return len(ix.Entries)
}

// Search returns up to k chunks ranked by cosine similarity to query.
func (ix *VectorIndex) Search(query []float32, k int) []domain.Chunk {
	if k <= 0 || len(query) == 0 || len(ix.Entries) == 0 {
		return nil
	}
	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, 0, len(ix.Entries))
	for i, entry := range ix.Entries {
		scores = append(scores, scored{idx: i, score: cosineSimilarity(query, entry.Embedding)})
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })
	if k > len(scores) {
		k = len(scores)
	}
	out := make([]domain.Chunk, 0, k)
	for _, s := range scores[:k] {
		out = append(out, ix.Entries[s.idx].Chunk)
	}
	return out
}

// Save writes the index as JSON to path.
func (ix *VectorIndex) Save(path string) error {
	data, err := json.Marshal(ix)
	if err != nil {
		return fmt.Errorf("index: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("index: write %s: %w", path, err)
	}
	return nil
}

// LoadVectorIndex reads a JSON index from path.
func LoadVectorIndex(path string) (*VectorIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("index: read %s: %w", path, err)
	}
	var ix VectorIndex
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("index: parse %s: %w", path, err)
	}
	if ix.Dim == 0 && len(ix.Entries) > 0 {
		return nil, errors.New("index: missing dimension")
	}
	return &ix, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
