package translation

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaydesk/relaydesk/internal/llm"
	"github.com/relaydesk/relaydesk/pkg/logging"
)

// backendConfidence is assigned to successful backend translations. The
// backend returns free-form text, so there is no per-call score to inherit.
const backendConfidence = 0.9

// ServiceConfig tunes the translation service.
type ServiceConfig struct {
	MaxAttempts        int           // backend attempts per translation, default 3
	BaseDelay          time.Duration // exponential backoff base, default 200ms
	MinCacheConfidence float64       // cache write gate, default 0.8
}

// DefaultServiceConfig returns the reference settings.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxAttempts:        3,
		BaseDelay:          200 * time.Millisecond,
		MinCacheConfidence: 0.8,
	}
}

// Service detects source languages and translates text through an LLM
// backend, consulting a bounded TTL+LRU cache first. It returns data, never
// display strings, and degrades instead of erroring: on total backend failure
// the original text comes back with confidence 0.
type Service struct {
	client   llm.Client
	detector *Detector
	cache    *Cache
	cfg      ServiceConfig
	logger   *logging.Logger
	tracer   trace.Tracer
	sleep    func(time.Duration)

	// cacheObserver, when set, is invoked for every cache lookup.
	cacheObserver func(hit bool)

	backendCalls atomic.Uint64
}

// NewService creates a translation service.
func NewService(client llm.Client, detector *Detector, cache *Cache, cfg ServiceConfig, logger *logging.Logger) *Service {
	if detector == nil {
		detector = NewDetector(client, logger)
	}
	if cache == nil {
		cache = NewCache(1000, 24*time.Hour)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	if cfg.MinCacheConfidence <= 0 {
		cfg.MinCacheConfidence = 0.8
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		client:   client,
		detector: detector,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("relaydesk.internal.translation"),
		sleep:    time.Sleep,
	}
}

// WithCacheObserver registers a callback for cache lookups, typically a
// metrics counter.
func (s *Service) WithCacheObserver(fn func(hit bool)) *Service {
	s.cacheObserver = fn
	return s
}

// Translate converts text into targetLang. When sourceLang is empty the
// source language is detected first. Same-language input is returned
// unchanged with confidence 1.0 and no backend call.
func (s *Service) Translate(ctx context.Context, text, targetLang, sourceLang string) Result {
	ctx, span := s.tracer.Start(ctx, "translation.translate")
	defer span.End()

	text = strings.TrimSpace(text)
	targetLang = normalizeLang(targetLang)
	if text == "" || targetLang == "" {
		return Result{TranslatedText: text, DetectedLang: sourceLang, Confidence: 0}
	}

	detected := normalizeLang(sourceLang)
	if detected == "" {
		detection := s.detector.Detect(ctx, text)
		detected = detection.Language
	}
	span.SetAttributes(
		attribute.String("translation.source", detected),
		attribute.String("translation.target", targetLang),
	)

	if detected == targetLang {
		return Result{TranslatedText: text, DetectedLang: detected, Confidence: 1.0}
	}

	key := CacheKey(text, detected, targetLang)
	cached, ok := s.cache.Get(key)
	if s.cacheObserver != nil {
		s.cacheObserver(ok)
	}
	if ok {
		return cached
	}

	translated, err := s.callBackend(ctx, text, detected, targetLang)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("translation backend exhausted, passing original through",
			"error", err, "source", detected, "target", targetLang)
		return Result{TranslatedText: text, DetectedLang: detected, Confidence: 0}
	}

	result := Result{
		TranslatedText: translated,
		DetectedLang:   detected,
		Confidence:     backendConfidence,
	}
	if result.Confidence >= s.cfg.MinCacheConfidence {
		s.cache.Put(key, result)
	}
	return result
}

const translatePrompt = `Translate the following text from %s to %s.
Preserve tone and meaning. Respond with the translation only, no explanations.

Text: %s`

func (s *Service) callBackend(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("translation: no backend configured")
	}

	prompt := fmt.Sprintf(translatePrompt, languageName(sourceLang), languageName(targetLang), text)

	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			s.sleep(s.cfg.BaseDelay * time.Duration(1<<attempt))
		}
		s.backendCalls.Add(1)

		resp, err := s.client.Complete(ctx, llm.Request{
			Messages:  []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: prompt}},
			MaxTokens: 1024,
		})
		if err != nil {
			lastErr = err
			continue
		}
		translated := strings.TrimSpace(resp.Text)
		if translated == "" {
			lastErr = fmt.Errorf("translation: backend returned empty text")
			continue
		}
		return translated, nil
	}
	return "", fmt.Errorf("translation: %d attempts failed: %w", s.cfg.MaxAttempts, lastErr)
}

// CacheStats exposes the cache counters for the stats surface.
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}

// BackendCalls reports how many backend requests were issued.
func (s *Service) BackendCalls() uint64 {
	return s.backendCalls.Load()
}

// RunCacheSweep purges expired cache entries on the given interval until ctx
// is cancelled. It never blocks request-serving paths.
func (s *Service) RunCacheSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.cache.Sweep(); removed > 0 {
				s.logger.Debug("translation cache sweep", "removed", removed)
			}
		}
	}
}

func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if len(lang) > 2 {
		lang = lang[:2]
	}
	return lang
}

var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"de": "German",
	"fr": "French",
	"pt": "Portuguese",
	"it": "Italian",
	"ja": "Japanese",
	"zh": "Chinese",
	"ko": "Korean",
	"ru": "Russian",
	"ar": "Arabic",
}

func languageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}
