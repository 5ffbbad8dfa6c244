package app

import (
	"fmt"
	"net/http"
	"time"

	"ariabackend/pkg/ai"
	"ariabackend/pkg/index"
	"ariabackend/pkg/mailer"
	"ariabackend/pkg/otp"
	"ariabackend/pkg/storage"
	"ariabackend/pkg/store"
	"ariabackend/pkg/token"
)

// Default bearer token lifetime. Clients are long-lived kiosk and voice
// devices, so the window is generous.
const defaultTokenTTL = 144000 * time.Minute

const defaultHistoryLimit = 6

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTLeeway   time.Duration
	TokenTTL    time.Duration
	OTPTTL      time.Duration

	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	WorkDir        string

	GeminiAPIKey      string
	GenerationModel   string
	EmbeddingProvider string
	EmbeddingModel    string
	OllamaBaseURL     string

	HistoryLimit int

	// Injection points for tests; each nil field is built from the
	// settings above.
	Store      store.Store
	Mailer     mailer.Mailer
	Objects    storage.ObjectStore
	Embedder   ai.Embedder
	Generator  ai.TextGenerator
	Indexes    *index.Manager
	HTTPClient *http.Client
}

// App is the core application service wiring auth, document ingestion,
// and answer generation together.
type App struct {
	store        store.Store
	otps         *otp.Manager
	issuer       *token.Issuer
	indexes      *index.Manager
	generator    ai.TextGenerator
	tokenTTL     time.Duration
	historyLimit int
	httpClient   *http.Client
}

// New constructs the application and its collaborators.
func New(cfg Config) (*App, error) {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	mail := cfg.Mailer
	if mail == nil && cfg.SMTPAddr != "" {
		var err error
		mail, err = mailer.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
		if err != nil {
			return nil, fmt.Errorf("init smtp mailer: %w", err)
		}
	}

	otps, err := otp.NewManager(otp.Config{
		Store:  dataStore,
		Mailer: mail,
		TTL:    cfg.OTPTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("init otp manager: %w", err)
	}

	issuer, err := token.NewIssuer(cfg.JWTSecret, token.Options{
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   cfg.JWTLeeway,
	})
	if err != nil {
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	generator := cfg.Generator
	embedder := cfg.Embedder
	if generator == nil || embedder == nil {
		built, err := buildModelClients(cfg)
		if err != nil {
			return nil, err
		}
		if generator == nil {
			generator = built.generator
		}
		if embedder == nil {
			embedder = built.embedder
		}
	}

	indexes := cfg.Indexes
	if indexes == nil {
		objects := cfg.Objects
		if objects == nil {
			objects, err = storage.NewMinioStore(
				cfg.MinioEndpoint,
				cfg.MinioAccessKey,
				cfg.MinioSecretKey,
				cfg.MinioBucket,
				cfg.MinioUseSSL,
			)
			if err != nil {
				return nil, fmt.Errorf("init minio store: %w", err)
			}
		}
		indexes, err = index.NewManager(index.ManagerConfig{
			Objects:  objects,
			Embedder: embedder,
			WorkDir:  cfg.WorkDir,
		})
		if err != nil {
			return nil, fmt.Errorf("init index manager: %w", err)
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	return &App{
		store:        dataStore,
		otps:         otps,
		issuer:       issuer,
		indexes:      indexes,
		generator:    generator,
		tokenTTL:     cfg.TokenTTL,
		historyLimit: cfg.HistoryLimit,
		httpClient:   httpClient,
	}, nil
}

type modelClients struct {
	embedder  ai.Embedder
	generator ai.TextGenerator
}

// buildModelClients selects the embedding and generation backends. Gemini
// is the default; ollama serves local deployments without an API key.
func buildModelClients(cfg Config) (modelClients, error) {
	if cfg.EmbeddingProvider == "ollama" {
		client := ai.NewOllamaClient(cfg.OllamaBaseURL)
		return modelClients{
			embedder:  ai.NewOllamaEmbedder(client, cfg.EmbeddingModel),
			generator: ai.NewOllamaGenerator(client, cfg.GenerationModel),
		}, nil
	}
	client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
	if err != nil {
		return modelClients{}, fmt.Errorf("init gemini client: %w", err)
	}
	return modelClients{
		embedder:  ai.NewGeminiEmbedder(client, cfg.EmbeddingModel),
		generator: ai.NewGeminiGenerator(client, cfg.GenerationModel),
	}, nil
}
