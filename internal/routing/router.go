package routing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/relaydesk/relaydesk/pkg/logging"
)

// RouteState tracks a conversation's progress through routing.
type RouteState string

const (
	RouteStateNew                  RouteState = "new"
	RouteStateAwaitingClarification RouteState = "awaiting_clarification"
	RouteStateRouted               RouteState = "routed"
)

// Result is a Decision plus the router's state-machine output. When
// NeedsClarification is set the message must not be forwarded yet; the
// Clarification text is sent back to the customer instead.
type Result struct {
	Decision
	State              RouteState
	NeedsClarification bool
	Clarification      string
}

type pendingClarification struct {
	attempts     int
	firstMessage string
	lastActivity time.Time
}

// RouterConfig holds the acceptance thresholds and attempt cap.
type RouterConfig struct {
	AcceptThreshold  float64 // new-conversation acceptance, default 0.6
	ClarifyThreshold float64 // lowered acceptance for clarifying replies, default 0.5
	MaxAttempts      int     // clarification attempts before forcing the default department
	StateTTL         time.Duration
}

// DefaultRouterConfig returns the reference thresholds.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		AcceptThreshold:  0.6,
		ClarifyThreshold: 0.5,
		MaxAttempts:      2,
		StateTTL:         24 * time.Hour,
	}
}

// Router combines the keyword and AI classifiers and drives the
// per-conversation clarification state machine. Keyword decisions always take
// precedence; the AI classifier is never consulted once keywords matched.
type Router struct {
	keywords *KeywordClassifier
	ai       *AIClassifier
	cfg      RouterConfig
	logger   *logging.Logger

	mu      sync.Mutex
	pending map[string]*pendingClarification
}

// NewRouter creates a department router.
func NewRouter(keywords *KeywordClassifier, ai *AIClassifier, cfg RouterConfig, logger *logging.Logger) *Router {
	if keywords == nil {
		keywords = NewKeywordClassifier()
	}
	if cfg.AcceptThreshold <= 0 {
		cfg.AcceptThreshold = 0.6
	}
	if cfg.ClarifyThreshold <= 0 {
		cfg.ClarifyThreshold = 0.5
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Router{
		keywords: keywords,
		ai:       ai,
		cfg:      cfg,
		logger:   logger,
		pending:  make(map[string]*pendingClarification),
	}
}

// Route classifies one message for the given identifier. Callers only invoke
// Route for messages that are not yet mapped to a Hub thread; once a thread
// exists the conversation is ROUTED and later messages bypass routing.
func (r *Router) Route(ctx context.Context, identifier, text string) Result {
	r.mu.Lock()
	state := r.pending[identifier]
	if state != nil && time.Since(state.lastActivity) > r.cfg.StateTTL {
		delete(r.pending, identifier)
		state = nil
	}
	r.mu.Unlock()

	if state != nil {
		return r.routeClarifyingReply(ctx, identifier, text, state)
	}
	return r.routeNewConversation(ctx, identifier, text)
}

func (r *Router) routeNewConversation(ctx context.Context, identifier, text string) Result {
	if decision, ok := r.keywords.Classify(text); ok && decision.Confidence >= r.cfg.AcceptThreshold {
		return Result{Decision: decision, State: RouteStateRouted}
	}

	if isBareGreeting(text) {
		return r.askClarification(ctx, identifier, text)
	}

	if r.ai != nil {
		decision := r.ai.Classify(ctx, text, "")
		if decision.Confidence >= r.cfg.AcceptThreshold {
			return Result{Decision: decision, State: RouteStateRouted}
		}
	}

	return r.askClarification(ctx, identifier, text)
}

func (r *Router) routeClarifyingReply(ctx context.Context, identifier, text string, state *pendingClarification) Result {
	// Lowered threshold for the clarifying reply: a keyword hit always
	// clears it, and AI answers need only ClarifyThreshold.
	if decision, ok := r.keywords.Classify(text); ok && decision.Confidence >= r.cfg.ClarifyThreshold {
		r.clearPending(identifier)
		return Result{Decision: decision, State: RouteStateRouted}
	}

	if r.ai != nil {
		decision := r.ai.Classify(ctx, text, state.firstMessage)
		if decision.Confidence >= r.cfg.ClarifyThreshold {
			r.clearPending(identifier)
			return Result{Decision: decision, State: RouteStateRouted}
		}
	}

	r.mu.Lock()
	state.attempts++
	state.lastActivity = time.Now()
	attempts := state.attempts
	r.mu.Unlock()

	if attempts >= r.cfg.MaxAttempts {
		r.clearPending(identifier)
		r.logger.Info("clarification attempts exhausted, forcing default department",
			"identifier", identifier, "attempts", attempts)
		return Result{
			Decision: Decision{Department: DepartmentGeneral, Confidence: 0.3, Source: SourceDefault},
			State:    RouteStateRouted,
		}
	}

	clarification := defaultClarification
	if r.ai != nil {
		clarification = r.ai.ClarificationQuestion(ctx, text)
	}
	return Result{
		State:              RouteStateAwaitingClarification,
		NeedsClarification: true,
		Clarification:      clarification,
	}
}

func (r *Router) askClarification(ctx context.Context, identifier, text string) Result {
	r.mu.Lock()
	r.pending[identifier] = &pendingClarification{
		firstMessage: text,
		lastActivity: time.Now(),
	}
	r.mu.Unlock()

	clarification := defaultClarification
	if r.ai != nil {
		clarification = r.ai.ClarificationQuestion(ctx, text)
	}
	return Result{
		State:              RouteStateAwaitingClarification,
		NeedsClarification: true,
		Clarification:      clarification,
	}
}

// Resolve drops any pending clarification for identifier. Used when the
// conversation is settled outside the state machine, e.g. a human takeover.
func (r *Router) Resolve(identifier string) {
	r.clearPending(identifier)
}

func (r *Router) clearPending(identifier string) {
	r.mu.Lock()
	delete(r.pending, identifier)
	r.mu.Unlock()
}

// PendingCount reports how many conversations are awaiting clarification.
func (r *Router) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

var greetings = []string{
	"hi", "hello", "hey", "hiya", "howdy", "yo",
	"good morning", "good afternoon", "good evening",
	"hola", "buenos dias", "hallo", "guten tag", "bonjour", "salut",
}

// isBareGreeting reports whether the text is just a salutation with no
// routable content.
func isBareGreeting(text string) bool {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	cleaned = strings.Trim(cleaned, "!.,?")
	if cleaned == "" {
		return false
	}
	if len(strings.Fields(cleaned)) > 4 {
		return false
	}
	for _, g := range greetings {
		if cleaned == g || strings.HasPrefix(cleaned, g+" there") || cleaned == g+" team" {
			return true
		}
	}
	return false
}
