package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/relaydesk/relaydesk/internal/http/handlers"
	httpmiddleware "github.com/relaydesk/relaydesk/internal/http/middleware"
	"github.com/relaydesk/relaydesk/internal/portal"
	"github.com/relaydesk/relaydesk/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	ChannelWebhooks *handlers.ChannelWebhooks
	HubWebhook      *handlers.HubWebhookHandler
	Status          *handlers.StatusHandler
	Portal          *portal.Handler

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// WebhookRateLimit caps webhook requests/sec per IP. Zero disables.
	WebhookRateLimit float64
	WebhookRateBurst int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	if cfg.Status != nil {
		r.Get("/health", cfg.Status.Health)
		r.Get("/stats", cfg.Status.Stats)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Meta and Google deliver webhooks here; everything else is portal UI.
	r.Route("/webhooks", func(r chi.Router) {
		if cfg.WebhookRateLimit > 0 {
			rl := httpmiddleware.NewRateLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst)
			r.Use(rl.Middleware)
		}
		if cfg.ChannelWebhooks != nil {
			r.Get("/whatsapp", cfg.ChannelWebhooks.WhatsApp.HandleVerification)
			r.Post("/whatsapp", cfg.ChannelWebhooks.WhatsApp.HandleInbound)
			r.Get("/instagram", cfg.ChannelWebhooks.Instagram.HandleVerification)
			r.Post("/instagram", cfg.ChannelWebhooks.Instagram.HandleInbound)
		}
		if cfg.HubWebhook != nil {
			r.Post("/hub", cfg.HubWebhook.Handle)
		}
	})

	if cfg.Portal != nil {
		r.Route("/portal", func(r chi.Router) {
			r.Handle("/feed", cfg.Portal.FeedHandler())
			r.Post("/reply", cfg.Portal.HandleReply)
		})
	}

	return r
}
