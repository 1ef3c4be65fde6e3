package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/viper"

	"hot-mess-coach/handler"
	appconfig "hot-mess-coach/internal/config"
	"hot-mess-coach/internal/integrations/openai"
	"hot-mess-coach/internal/integrations/paramstore"
	"hot-mess-coach/internal/logging"
	"hot-mess-coach/internal/metrics"
	"hot-mess-coach/internal/usecase"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the fully wired relay.
type app struct {
	cfg     appconfig.Config
	handler *handler.Handler
}

// newParamGetter builds the SSM-backed parameter reader. Replaced in tests.
var newParamGetter = func(ctx context.Context) (paramstore.Getter, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return paramstore.New(awsssm.NewFromConfig(cfg))
}

func buildApp(ctx context.Context, v *viper.Viper) (*app, error) {
	// ---- Configuration (read only here) ----
	cfg, err := appconfig.Load(v)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	if !cfg.APIKeyConfigured() && cfg.APIKeyParameter != "" {
		cfg = resolveAPIKey(ctx, cfg)
	}

	// ---- Clients ----
	var llm usecase.LLMClient
	if cfg.APIKeyConfigured() {
		client, err := openai.NewClient(cfg.APIKey,
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithTimeout(cfg.UpstreamTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("create OpenAI client: %w", err)
		}
		llm = client
	} else {
		slog.Warn("OPENAI_API_KEY is not configured; chat requests will fail")
	}

	var (
		collector *metrics.Collector
		recorder  usecase.Recorder
	)
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector(nil)
		recorder = collector
	}

	// ---- Handler ----
	chatService, err := usecase.NewChatService(llm, cfg.Model, cfg.APIKeyConfigured(), recorder)
	if err != nil {
		return nil, fmt.Errorf("create chat service: %w", err)
	}

	h, err := handler.NewHandler(chatService, handler.Options{CORS: cfg.CORS, Metrics: collector})
	if err != nil {
		return nil, fmt.Errorf("create handler: %w", err)
	}

	slog.Info("configuration loaded",
		"model", cfg.Model,
		"base_url", cfg.BaseURL,
		"upstream_timeout", cfg.UpstreamTimeout.String(),
		"api_key_configured", cfg.APIKeyConfigured(),
		"cors_wildcard", cfg.CORS.Wildcard(),
		"cors_origins", cfg.CORS.AllowedOrigins,
		"cors_preflight_fallback", cfg.CORS.PreflightFallback,
		"metrics_enabled", cfg.MetricsEnabled,
	)
	return &app{cfg: cfg, handler: h}, nil
}

// resolveAPIKey fills the credential from Parameter Store. Failures are logged
// and leave the credential empty so the service still starts.
func resolveAPIKey(ctx context.Context, cfg appconfig.Config) appconfig.Config {
	getter, err := newParamGetter(ctx)
	if err != nil {
		slog.Error("failed to create parameter store client", "err", err)
		return cfg
	}
	key, err := paramstore.ResolveToken(ctx, getter, cfg.APIKeyParameter)
	if err != nil {
		slog.Error("failed to resolve OpenAI API key", "parameter", cfg.APIKeyParameter, "err", err)
		return cfg
	}
	slog.Info("resolved OpenAI API key from parameter store", "parameter", cfg.APIKeyParameter)
	return cfg.WithAPIKey(key)
}
