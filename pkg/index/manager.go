package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"ariabackend/pkg/ai"
	"ariabackend/pkg/domain"
	"ariabackend/pkg/storage"
)

// ErrIndexNotFound means no persisted index exists for the tenant.
var ErrIndexNotFound = errors.New("index: tenant index not found")

const indexFileName = "index.json"

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Objects  storage.ObjectStore
	Embedder ai.Embedder
	// WorkDir hosts transient local copies of tenant indexes. Defaults to
	// the OS temp directory.
	WorkDir          string
	TopK             int
	ChunkSize        int
	ChunkOverlap     int
	EmbedConcurrency int
}

// Manager owns the lifecycle of per-tenant vector indexes. The durable
// copy lives in the object store under the tenant's vectorstore prefix;
// local files exist only for the duration of a build or a retrieval and
// are removed afterward. Builds for the same tenant are serialized.
type Manager struct {
	objects          storage.ObjectStore
	embedder         ai.Embedder
	workDir          string
	topK             int
	chunkSize        int
	chunkOverlap     int
	embedConcurrency int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Objects == nil {
		return nil, errors.New("index: object store is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("index: embedder is required")
	}
	m := &Manager{
		objects:          cfg.Objects,
		embedder:         cfg.Embedder,
		workDir:          cfg.WorkDir,
		topK:             cfg.TopK,
		chunkSize:        cfg.ChunkSize,
		chunkOverlap:     cfg.ChunkOverlap,
		embedConcurrency: cfg.EmbedConcurrency,
		locks:            make(map[string]*sync.Mutex),
	}
	if m.workDir == "" {
		m.workDir = os.TempDir()
	}
	if m.topK <= 0 {
		m.topK = 20
	}
	if m.chunkSize <= 0 {
		m.chunkSize = 8000
	}
	if m.chunkOverlap < 0 || m.chunkOverlap >= m.chunkSize {
		m.chunkOverlap = 1000
	}
	if m.embedConcurrency <= 0 {
		m.embedConcurrency = 4
	}
	return m, nil
}

func (m *Manager) tenantLock(tenantID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[tenantID] = lock
	}
	return lock
}

func (m *Manager) remotePrefix(tenantID string) string {
	return tenantID + "-vectorstore/"
}

// Provision builds or extends the tenant's index from docs and persists
// it to the object store. With rewrite the existing index is discarded;
// otherwise the new chunks are merged into it, and ErrIndexNotFound is
// returned when there is nothing to merge into.
func (m *Manager) Provision(ctx context.Context, tenantID string, docs []domain.Document, rewrite bool) (int, error) {
	if tenantID == "" {
		return 0, errors.New("index: tenant id is required")
	}
	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	localDir := filepath.Join(m.workDir, tenantID+"-vectorstore")
	if err := os.MkdirAll(localDir, 0o700); err != nil {
		return 0, fmt.Errorf("index: create work dir: %w", err)
	}
	defer os.RemoveAll(localDir)

	var ix *VectorIndex
	if rewrite {
		ix = NewVectorIndex()
	} else {
		loaded, err := m.download(ctx, tenantID, localDir)
		if err != nil {
			return 0, err
		}
		ix = loaded
	}

	chunks := m.chunkDocuments(docs)
	embeddings, err := m.embedChunks(ctx, chunks)
	if err != nil {
		return 0, err
	}
	if err := ix.Add(chunks, embeddings); err != nil {
		return 0, err
	}

	path := filepath.Join(localDir, indexFileName)
	if err := ix.Save(path); err != nil {
		return 0, err
	}
	// Upload before removing anything so a failed rewrite never leaves
	// the tenant without a durable index.
	uploaded, err := m.upload(ctx, tenantID, localDir)
	if err != nil {
		return 0, err
	}
	if rewrite {
		if err := m.removeStale(ctx, tenantID, uploaded); err != nil {
			return 0, err
		}
	}
	return len(chunks), nil
}

// Retrieve downloads the tenant's persisted index into a fresh local
// working copy and returns a Retriever over it. The caller must Close
// the retriever to release the local copy.
func (m *Manager) Retrieve(ctx context.Context, tenantID string) (*Retriever, error) {
	if tenantID == "" {
		return nil, errors.New("index: tenant id is required")
	}
	localDir, err := os.MkdirTemp(m.workDir, tenantID+"-vectorstore-")
	if err != nil {
		return nil, fmt.Errorf("index: create work dir: %w", err)
	}
	ix, err := m.download(ctx, tenantID, localDir)
	if err != nil {
		os.RemoveAll(localDir)
		return nil, err
	}
	return &Retriever{
		index:    ix,
		embedder: m.embedder,
		topK:     m.topK,
		localDir: localDir,
	}, nil
}

func (m *Manager) chunkDocuments(docs []domain.Document) []domain.Chunk {
	var chunks []domain.Chunk
	for _, doc := range docs {
		for _, part := range SplitText(doc.Text, m.chunkSize, m.chunkOverlap) {
			chunks = append(chunks, domain.Chunk{Content: part, Source: doc.Name})
		}
	}
	return chunks
}

func (m *Manager) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	embeddings := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.embedConcurrency)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			emb, err := m.embedder.EmbedText(gctx, chunk.Content)
			if err != nil {
				return fmt.Errorf("index: embed chunk from %s: %w", chunk.Source, err)
			}
			embeddings[i] = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// download materializes the tenant's persisted index files into localDir
// and loads the index. Returns ErrIndexNotFound when the prefix is empty.
func (m *Manager) download(ctx context.Context, tenantID, localDir string) (*VectorIndex, error) {
	prefix := m.remotePrefix(tenantID)
	keys, err := m.objects.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("index: list %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil, ErrIndexNotFound
	}
	for _, key := range keys {
		name := strings.TrimPrefix(key, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		if err := m.downloadFile(ctx, key, filepath.Join(localDir, name)); err != nil {
			return nil, err
		}
	}
	path := filepath.Join(localDir, indexFileName)
	if _, err := os.Stat(path); err != nil {
		return nil, ErrIndexNotFound
	}
	return LoadVectorIndex(path)
}

func (m *Manager) downloadFile(ctx context.Context, key, dest string) error {
	reader, err := m.objects.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("index: fetch %s: %w", key, err)
	}
	defer reader.Close()
	file, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("index: open %s: %w", dest, err)
	}
	defer file.Close()
	if _, err := file.ReadFrom(reader); err != nil {
		return fmt.Errorf("index: write %s: %w", dest, err)
	}
	return nil
}

// upload pushes every file in localDir under the tenant's prefix and
// returns the uploaded names. Existing keys are overwritten in place.
func (m *Manager) upload(ctx context.Context, tenantID, localDir string) (map[string]bool, error) {
	prefix := m.remotePrefix(tenantID)
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return nil, fmt.Errorf("index: read work dir: %w", err)
	}
	uploaded := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(localDir, entry.Name())
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("index: open %s: %w", path, err)
		}
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("index: stat %s: %w", path, err)
		}
		err = m.objects.Put(ctx, prefix+entry.Name(), file, info.Size(), "application/json")
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("index: upload %s: %w", entry.Name(), err)
		}
		uploaded[entry.Name()] = true
	}
	return uploaded, nil
}

// removeStale deletes tenant keys that were not part of the latest upload.
func (m *Manager) removeStale(ctx context.Context, tenantID string, keep map[string]bool) error {
	prefix := m.remotePrefix(tenantID)
	keys, err := m.objects.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("index: list %s: %w", prefix, err)
	}
	for _, key := range keys {
		if keep[strings.TrimPrefix(key, prefix)] {
			continue
		}
		if err := m.objects.Remove(ctx, key); err != nil {
			return fmt.Errorf("index: remove %s: %w", key, err)
		}
	}
	return nil
}

// Retriever answers similarity queries over one downloaded tenant index.
type Retriever struct {
	index    *VectorIndex
	embedder ai.Embedder
	topK     int
	localDir string

	closeOnce sync.Once
}

// Search embeds query and returns the most similar chunks.
func (r *Retriever) Search(ctx context.Context, query string) ([]domain.Chunk, error) {
	emb, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("index: embed query: %w", err)
	}
	return r.index.Search(emb, r.topK), nil
}

// Len reports the number of indexed chunks.
func (r *Retriever) Len() int {
	return r.index.Len()
}

// Close removes the local working copy. Safe to call more than once.
func (r *Retriever) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = os.RemoveAll(r.localDir)
	})
	return err
}
