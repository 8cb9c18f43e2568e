package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/relaydesk/relaydesk/cmd/mainconfig"
	"github.com/relaydesk/relaydesk/internal/api/router"
	"github.com/relaydesk/relaydesk/internal/channels/instagram"
	"github.com/relaydesk/relaydesk/internal/channels/whatsapp"
	appconfig "github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/delivery"
	"github.com/relaydesk/relaydesk/internal/escalation"
	"github.com/relaydesk/relaydesk/internal/http/handlers"
	"github.com/relaydesk/relaydesk/internal/hub"
	"github.com/relaydesk/relaydesk/internal/intake"
	"github.com/relaydesk/relaydesk/internal/llm"
	"github.com/relaydesk/relaydesk/internal/observability/metrics"
	"github.com/relaydesk/relaydesk/internal/portal"
	"github.com/relaydesk/relaydesk/internal/relay"
	"github.com/relaydesk/relaydesk/internal/routing"
	"github.com/relaydesk/relaydesk/internal/translation"
	"github.com/relaydesk/relaydesk/pkg/logging"
)

func main() {
	// .env is optional; real deployments configure the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting relaydesk API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	llmClient := buildLLMClient(ctx, cfg, logger)

	registry := prometheus.NewRegistry()
	relayMetrics := metrics.NewRelayMetrics(registry)

	// Translation pipeline
	detector := translation.NewDetector(llmClient, logger)
	cache := translation.NewCache(cfg.TranslationCacheSize, cfg.TranslationCacheTTL)
	translator := translation.NewService(llmClient, detector, cache, translation.ServiceConfig{
		MinCacheConfidence: cfg.TranslationMinCacheConfidence,
	}, logger).WithCacheObserver(relayMetrics.ObserveCacheLookup)

	// Department routing
	deptRouter := routing.NewRouter(
		routing.NewKeywordClassifier(),
		routing.NewAIClassifier(llmClient, logger),
		routing.RouterConfig{
			AcceptThreshold:  cfg.RouteAcceptThreshold,
			ClarifyThreshold: cfg.ClarifyAcceptThreshold,
			MaxAttempts:      cfg.MaxClarificationAttempts,
		},
		logger,
	)

	// Customer intake gate
	gatherer := intake.NewGatherer(
		intake.NewExtractor(llmClient, logger),
		detector,
		intake.GathererConfig{
			UrgencyKeywords: cfg.UrgencyBypassKeywords,
			MaxMessages:     cfg.InfoGatherMaxMessages,
		},
		logger,
	)

	// Escalation
	escalations := escalation.NewStore(logger).WithAutoExpiry(cfg.EscalationTimeout)
	if notifier := escalation.NewEmailNotifier(escalation.EmailConfig{
		APIKey:     cfg.SendGridAPIKey,
		FromEmail:  cfg.SendGridFromEmail,
		FromName:   cfg.SendGridFromName,
		StaffEmail: cfg.EscalationNotifyEmail,
	}, logger); notifier != nil {
		escalations = escalations.WithNotifier(notifier)
	}

	// Stores
	conversations := relay.NewConversationStore(cfg.ConversationTTL, logger)
	history := buildHistoryStore(cfg, logger)

	// Hub
	hubClient, err := hub.NewClient(ctx, []byte(cfg.HubCredentialsJSON), logger)
	if err != nil {
		logger.Error("failed to create hub client", "error", err)
		os.Exit(1)
	}

	// Channel senders, each behind retry-with-backoff
	senders := map[relay.Channel]delivery.Sender{
		relay.ChannelWhatsApp: delivery.NewRetryingSender(
			whatsapp.NewClient(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID), logger).
			WithMaxAttempts(cfg.SendMaxAttempts).
			WithBaseDelay(cfg.SendBaseDelay),
		relay.ChannelInstagram: delivery.NewRetryingSender(
			instagram.NewClient(cfg.InstagramAccessToken), logger).
			WithMaxAttempts(cfg.SendMaxAttempts).
			WithBaseDelay(cfg.SendBaseDelay),
	}

	svc := relay.NewService(
		conversations, history, gatherer, deptRouter, translator, escalations,
		hubClient, senders,
		relay.ServiceConfig{
			TargetLang:       cfg.TargetLanguage,
			HubSpaceID:       cfg.HubSpaceID,
			DepartmentSpaces: departmentSpaces(cfg),
		},
		relayMetrics, logger,
	)

	portalHandler := portal.NewHandler(svc, logger)
	svc.WithEventSink(portalHandler)

	r := router.New(&router.Config{
		Logger:             logger,
		ChannelWebhooks: handlers.NewChannelWebhooks(svc, cfg.WebhookVerifyToken, cfg.MetaAppSecret, logger).
			WithMetrics(relayMetrics),
		HubWebhook:         handlers.NewHubWebhookHandler(svc, logger),
		Status:             handlers.NewStatusHandler(svc),
		Portal:             portalHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookRateLimit:   cfg.WebhookRateLimit,
		WebhookRateBurst:   cfg.WebhookRateBurst,
	})

	// Background expiry sweeps
	go translator.RunCacheSweep(ctx, cfg.StoreSweepInterval)
	go conversations.Run(ctx, cfg.StoreSweepInterval)
	go gatherer.Run(ctx, cfg.StoreSweepInterval)
	go escalations.Run(ctx, cfg.StoreSweepInterval)
	if sweeper, ok := history.(interface {
		Run(ctx context.Context, interval time.Duration)
	}); ok {
		go sweeper.Run(ctx, cfg.StoreSweepInterval)
	}

	// Polling fallback for hubs that cannot deliver webhooks
	if cfg.HubPollEnabled {
		spaces := []string{cfg.HubSpaceID}
		for _, space := range cfg.DepartmentSpaces {
			spaces = append(spaces, space)
		}
		poller := hub.NewPoller(hubClient, svc, spaces, cfg.HubPollInterval, logger)
		go poller.Run(ctx)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// buildLLMClient assembles Gemini with an optional Bedrock fallback. A nil
// client is tolerated everywhere downstream: routing degrades to keywords,
// translation degrades to passthrough.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) llm.Client {
	var gemini llm.Client
	if cfg.GeminiAPIKey != "" {
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
		} else {
			gemini = client
		}
	}

	var bedrock llm.Client
	if cfg.BedrockModelID != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
		} else {
			bedrock = llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
		}
	}

	switch {
	case gemini != nil && bedrock != nil:
		return llm.NewFallbackClient(gemini, bedrock, logger)
	case gemini != nil:
		return gemini
	case bedrock != nil:
		return bedrock
	default:
		logger.Warn("no LLM backend configured, running keyword-and-pattern only")
		return nil
	}
}

// buildHistoryStore uses Redis when configured, otherwise in-memory.
func buildHistoryStore(cfg *appconfig.Config, logger *logging.Logger) relay.HistoryStore {
	if cfg.RedisAddr == "" {
		return relay.NewMemoryHistoryStore(cfg.ConversationTTL)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	logger.Info("using redis history store", "addr", cfg.RedisAddr)
	return relay.NewRedisHistoryStore(client, cfg.ConversationTTL)
}

func departmentSpaces(cfg *appconfig.Config) map[routing.Department]string {
	spaces := make(map[routing.Department]string, len(cfg.DepartmentSpaces))
	for dept, space := range cfg.DepartmentSpaces {
		spaces[routing.Department(dept)] = space
	}
	return spaces
}
