package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"ariabackend/internal/ratelimit"
	"ariabackend/internal/util"
	"ariabackend/services/aria/internal/app"
	"ariabackend/services/aria/internal/config"
	"ariabackend/services/aria/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	tokenTTL, err := config.ParseDuration("tokenTTL", cfg.TokenTTL)
	if err != nil {
		log.Fatalf("failed to parse token TTL: %v", err)
	}
	otpTTL, err := config.ParseDuration("otpTTL", cfg.OTPTTL)
	if err != nil {
		log.Fatalf("failed to parse otp TTL: %v", err)
	}
	jwtLeeway, err := config.ParseDuration("jwtLeeway", cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		DatabaseURL:       cfg.DatabaseURL,
		JWTSecret:         cfg.JWTSecret,
		JWTIssuer:         cfg.JWTIssuer,
		JWTAudience:       cfg.JWTAudience,
		JWTLeeway:         jwtLeeway,
		TokenTTL:          tokenTTL,
		OTPTTL:            otpTTL,
		SMTPAddr:          cfg.SMTPAddr,
		SMTPUsername:      cfg.SMTPUsername,
		SMTPPassword:      cfg.SMTPPassword,
		SMTPFrom:          cfg.SMTPFrom,
		MinioEndpoint:     cfg.MinioEndpoint,
		MinioAccessKey:    cfg.MinioAccessKey,
		MinioSecretKey:    cfg.MinioSecretKey,
		MinioBucket:       cfg.MinioBucket,
		MinioUseSSL:       cfg.MinioUseSSL,
		WorkDir:           cfg.WorkDir,
		GeminiAPIKey:      cfg.GeminiAPIKey,
		GenerationModel:   cfg.GenerationModel,
		EmbeddingProvider: cfg.EmbeddingProvider,
		EmbeddingModel:    cfg.EmbeddingModel,
		OllamaBaseURL:     cfg.OllamaBaseURL,
		HistoryLimit:      cfg.HistoryLimit,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	var otpLimiter *ratelimit.Limiter
	if cfg.OTPRateLimitPerMinute > 0 {
		otpLimiter, err = ratelimit.NewRedisLimiter(
			cfg.RedisAddr,
			cfg.RedisPassword,
			"aria:ratelimit:otp",
			cfg.OTPRateLimitPerMinute,
			time.Minute,
		)
		if err != nil {
			log.Fatalf("failed to init otp rate limiter: %v", err)
		}
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		OTPLimiter:     otpLimiter,
		TrustedProxies: trusted,
	})

	handler := util.WithCORS(
		util.WithSecurityHeaders(
			util.WithRequestID(
				util.WithRequestLog("aria", httpServer.Router()),
			),
		),
	)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("aria server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
