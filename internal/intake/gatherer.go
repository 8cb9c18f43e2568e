package intake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/relaydesk/relaydesk/internal/translation"
	"github.com/relaydesk/relaydesk/pkg/logging"
)

// State tracks a customer's progress through information gathering.
type State string

const (
	StateNew           State = "new"
	StateGatheringInfo State = "gathering_info"
	StateComplete      State = "complete"
	StateBypass        State = "bypass"
)

// CustomerRecord is the per-identifier gathering state. Identifier is stored
// normalized so formatting variants of the same phone number or handle share
// one record.
type CustomerRecord struct {
	Identifier      string
	Channel         string
	State           State
	Name            string
	BusinessName    string
	Language        string
	FirstContact    time.Time
	LastActivity    time.Time
	MessageCount    int
	InfoRequestSent bool
}

// Admission is the gate decision for one inbound message.
type Admission struct {
	Forward   bool
	AutoReply string
	Record    CustomerRecord
}

// GathererConfig tunes the admission gate.
type GathererConfig struct {
	UrgencyKeywords []string      // first-contact texts matching any keyword skip gathering
	MaxMessages     int           // gathering gives up and bypasses at this count, default 5
	RecordTTL       time.Duration // inactivity window after which a record resets, default 24h
}

// DefaultGathererConfig returns the reference settings.
func DefaultGathererConfig() GathererConfig {
	return GathererConfig{
		UrgencyKeywords: []string{"urgent", "emergency", "asap", "urgente", "emergencia", "dringend", "notfall"},
		MaxMessages:     5,
		RecordTTL:       24 * time.Hour,
	}
}

// Gatherer decides whether an inbound message is forwarded immediately or
// held until the customer's name and company are collected. One record per
// normalized identifier; records reset after RecordTTL of inactivity.
type Gatherer struct {
	mu      sync.Mutex
	records map[string]*CustomerRecord

	extractor *Extractor
	detector  *translation.Detector
	cfg       GathererConfig
	logger    *logging.Logger
	now       func() time.Time
}

// NewGatherer creates the admission gate. extractor must not be nil; detector
// may be nil, in which case auto-replies default to English.
func NewGatherer(extractor *Extractor, detector *translation.Detector, cfg GathererConfig, logger *logging.Logger) *Gatherer {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 5
	}
	if cfg.RecordTTL <= 0 {
		cfg.RecordTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Gatherer{
		records:   make(map[string]*CustomerRecord),
		extractor: extractor,
		detector:  detector,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Admit gates one inbound message. It returns whether the message should be
// forwarded to the hub and, when held, the auto-reply to send back.
func (g *Gatherer) Admit(ctx context.Context, identifier, channel, text string) Admission {
	key := NormalizeIdentifier(identifier)
	now := g.now()

	g.mu.Lock()
	rec, ok := g.records[key]
	if ok && now.Sub(rec.LastActivity) > g.cfg.RecordTTL {
		// Stale: the customer went quiet for a day, start over.
		delete(g.records, key)
		rec, ok = nil, false
	}

	if !ok {
		rec = &CustomerRecord{
			Identifier:   key,
			Channel:      channel,
			State:        StateNew,
			FirstContact: now,
			LastActivity: now,
			MessageCount: 1,
		}
		g.records[key] = rec
		g.mu.Unlock()
		return g.admitFirstContact(ctx, rec, text)
	}

	rec.LastActivity = now
	rec.MessageCount++
	state := rec.State
	g.mu.Unlock()

	switch state {
	case StateComplete, StateBypass:
		return Admission{Forward: true, Record: g.snapshot(key)}
	case StateGatheringInfo:
		return g.admitGathering(ctx, key, text)
	default:
		// A record parked in "new" means the info request send failed
		// earlier; retry the first-contact path.
		return g.admitFirstContact(ctx, rec, text)
	}
}

func (g *Gatherer) admitFirstContact(ctx context.Context, rec *CustomerRecord, text string) Admission {
	if matchesUrgency(text, g.cfg.UrgencyKeywords) {
		g.transition(rec.Identifier, StateBypass, nil)
		g.logger.Info("urgency bypass, forwarding without gathering",
			"identifier", rec.Identifier, "channel", rec.Channel)
		return Admission{Forward: true, Record: g.snapshot(rec.Identifier)}
	}

	lang := "en"
	if g.detector != nil {
		if d := g.detector.Detect(ctx, text); d.Language != "" {
			lang = d.Language
		}
	}

	g.mu.Lock()
	if r, ok := g.records[rec.Identifier]; ok {
		r.State = StateGatheringInfo
		r.Language = lang
		r.InfoRequestSent = true
	}
	g.mu.Unlock()

	return Admission{
		Forward:   false,
		AutoReply: infoRequestText(lang),
		Record:    g.snapshot(rec.Identifier),
	}
}

func (g *Gatherer) admitGathering(ctx context.Context, key, text string) Admission {
	extracted := g.extractor.Extract(ctx, text)

	g.mu.Lock()
	rec, ok := g.records[key]
	if !ok {
		g.mu.Unlock()
		return Admission{Forward: true}
	}
	if extracted.Name != "" && rec.Name == "" {
		rec.Name = extracted.Name
	}
	if extracted.Company != "" && rec.BusinessName == "" {
		rec.BusinessName = extracted.Company
	}

	switch {
	case rec.Name != "" && rec.BusinessName != "":
		rec.State = StateComplete
		snap := *rec
		g.mu.Unlock()
		return Admission{Forward: true, Record: snap}
	case rec.MessageCount >= g.cfg.MaxMessages:
		// Never hold a customer hostage over a form field.
		rec.State = StateBypass
		snap := *rec
		g.mu.Unlock()
		g.logger.Info("info gathering gave up, bypassing",
			"identifier", key, "messages", snap.MessageCount)
		return Admission{Forward: true, Record: snap}
	default:
		lang := rec.Language
		missingName := rec.Name == ""
		snap := *rec
		g.mu.Unlock()
		return Admission{
			Forward:   false,
			AutoReply: followUpText(lang, missingName),
			Record:    snap,
		}
	}
}

func (g *Gatherer) transition(key string, state State, mutate func(*CustomerRecord)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[key]
	if !ok {
		return
	}
	rec.State = state
	if mutate != nil {
		mutate(rec)
	}
}

func (g *Gatherer) snapshot(key string) CustomerRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.records[key]; ok {
		return *rec
	}
	return CustomerRecord{}
}

// Record returns a copy of the record for identifier, if present and fresh.
func (g *Gatherer) Record(identifier string) (CustomerRecord, bool) {
	key := NormalizeIdentifier(identifier)
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[key]
	if !ok || g.now().Sub(rec.LastActivity) > g.cfg.RecordTTL {
		return CustomerRecord{}, false
	}
	return *rec, true
}

// Count reports the number of live records.
func (g *Gatherer) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	n := 0
	for _, rec := range g.records {
		if now.Sub(rec.LastActivity) <= g.cfg.RecordTTL {
			n++
		}
	}
	return n
}

// Sweep removes stale records and returns how many were dropped.
func (g *Gatherer) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	removed := 0
	for key, rec := range g.records {
		if now.Sub(rec.LastActivity) > g.cfg.RecordTTL {
			delete(g.records, key)
			removed++
		}
	}
	return removed
}

// Run sweeps stale records on interval until ctx is cancelled.
func (g *Gatherer) Run(ctx context.Context, interval time.Duration) {
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
			if removed := g.Sweep(); removed > 0 {
				g.logger.Debug("customer record sweep", "removed", removed)
			}
		}
	}
}

// NormalizeIdentifier collapses formatting variants of the same identifier:
// "+1 (555) 123-4567" and "15551234567" map to the same record.
func NormalizeIdentifier(identifier string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(identifier)) {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r == '_' || r == '.' || r == '@':
			// Instagram handles and email-shaped IDs keep their separators.
			b.WriteRune(r)
		}
	}
	return b.String()
}

func matchesUrgency(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// infoRequestText is the first auto-reply, matched to the customer's language.
func infoRequestText(lang string) string {
	switch lang {
	case "es":
		return "¡Gracias por escribirnos! Para ayudarle mejor, ¿podría indicarnos su nombre y el nombre de su empresa?"
	case "de":
		return "Danke für Ihre Nachricht! Damit wir Ihnen besser helfen können: Wie lautet Ihr Name und der Name Ihrer Firma?"
	case "fr":
		return "Merci de nous avoir contactés ! Pour mieux vous aider, pouvez-vous nous indiquer votre nom et celui de votre entreprise ?"
	default:
		return "Thanks for reaching out! So we can help you faster, could you share your name and your company's name?"
	}
}

// followUpText asks for the single missing field.
func followUpText(lang string, missingName bool) string {
	if missingName {
		switch lang {
		case "es":
			return "¡Gracias! ¿Y cuál es su nombre?"
		case "de":
			return "Danke! Und wie lautet Ihr Name?"
		case "fr":
			return "Merci ! Et quel est votre nom ?"
		default:
			return "Thanks! And what's your name?"
		}
	}
	switch lang {
	case "es":
		return "¡Gracias! ¿Y cuál es el nombre de su empresa?"
	case "de":
		return "Danke! Und wie heißt Ihre Firma?"
	case "fr":
		return "Merci ! Et quel est le nom de votre entreprise ?"
	default:
		return "Thanks! And what's your company's name?"
	}
}
