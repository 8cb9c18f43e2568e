package translation

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/relaydesk/relaydesk/internal/llm"
	"github.com/relaydesk/relaydesk/pkg/logging"
)

// Detection is a language guess with a confidence score.
type Detection struct {
	Language   string
	Confidence float64
}

// patternConfidenceFloor is the cutoff below which the fast pattern detector
// defers to the AI detector.
const patternConfidenceFloor = 0.8

// Latin-script stop-words per language. Hits are counted per whole word.
// Checked in order, so on a tied hit ratio the earlier language wins.
var stopWordLangs = []string{"en", "es", "de", "fr"}

var stopWords = map[string][]string{
	"en": {"the", "and", "is", "are", "you", "for", "with", "have", "this", "that", "can", "not", "my", "your", "please"},
	"es": {"el", "la", "los", "las", "es", "está", "por", "para", "con", "una", "que", "necesito", "hola", "gracias", "usted"},
	"de": {"der", "die", "das", "und", "ist", "nicht", "ich", "sie", "mit", "für", "eine", "bitte", "danke", "haben", "können"},
	"fr": {"le", "la", "les", "est", "et", "vous", "pour", "avec", "une", "je", "bonjour", "merci", "pas", "mais", "avoir"},
}

// Detector guesses the source language of a message. Script and stop-word
// pattern matching is tried first for speed; only texts whose best pattern
// confidence falls below 0.8 are sent to the AI detector.
type Detector struct {
	client llm.Client
	logger *logging.Logger
}

// NewDetector creates a language detector with an optional AI backend.
func NewDetector(client llm.Client, logger *logging.Logger) *Detector {
	if logger == nil {
		logger = logging.Default()
	}
	return &Detector{client: client, logger: logger}
}

// Detect returns the best language guess for text.
func (d *Detector) Detect(ctx context.Context, text string) Detection {
	pattern := detectByPattern(text)
	if pattern.Confidence >= patternConfidenceFloor || d.client == nil {
		return pattern
	}

	ai := d.detectByAI(ctx, text)
	if ai.Confidence > pattern.Confidence {
		return ai
	}
	return pattern
}

const detectPrompt = `Identify the language of the text below. Respond with only
the two-letter ISO 639-1 code (for example: en, es, de, fr, pt, it, ja, zh, ru, ar).

Text: %s

Code:`

func (d *Detector) detectByAI(ctx context.Context, text string) Detection {
	resp, err := d.client.Complete(ctx, llm.Request{
		Messages:  []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: fmt.Sprintf(detectPrompt, text)}},
		MaxTokens: 5,
	})
	if err != nil {
		d.logger.Warn("ai language detection failed", "error", err)
		return Detection{Language: "en", Confidence: 0}
	}

	code := strings.ToLower(strings.TrimSpace(resp.Text))
	code = strings.Trim(code, ".\"'`")
	if len(code) != 2 || !isASCIILetters(code) {
		return Detection{Language: "en", Confidence: 0}
	}
	return Detection{Language: code, Confidence: 0.9}
}

// detectByPattern scores language-specific character sets first, then
// stop-word ratios for Latin-script text.
func detectByPattern(text string) Detection {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Detection{Language: "en", Confidence: 0}
	}

	// Non-Latin scripts identify a language family outright.
	var total, han, kana, hangul, cyrillic, arabic int
	for _, r := range trimmed {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsDigit(r) {
			continue
		}
		total++
		switch {
		case unicode.Is(unicode.Han, r):
			han++
		case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			kana++
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Arabic, r):
			arabic++
		}
	}
	if total > 0 {
		switch {
		case kana*2 >= total:
			return Detection{Language: "ja", Confidence: 0.95}
		case han*2 >= total:
			return Detection{Language: "zh", Confidence: 0.9}
		case hangul*2 >= total:
			return Detection{Language: "ko", Confidence: 0.95}
		case cyrillic*2 >= total:
			return Detection{Language: "ru", Confidence: 0.9}
		case arabic*2 >= total:
			return Detection{Language: "ar", Confidence: 0.9}
		}
	}

	// Latin script: stop-word hit ratio per candidate language.
	words := strings.Fields(strings.ToLower(trimmed))
	if len(words) == 0 {
		return Detection{Language: "en", Confidence: 0}
	}

	best := Detection{Language: "en", Confidence: 0}
	for _, lang := range stopWordLangs {
		stops := stopWords[lang]
		hits := 0
		for _, w := range words {
			w = strings.Trim(w, ".,!?;:\"'()¿¡")
			for _, stop := range stops {
				if w == stop {
					hits++
					break
				}
			}
		}
		confidence := float64(hits) / float64(len(words))
		// Two stop-word hits in a short message is a strong signal.
		if hits >= 2 && confidence < 0.4 {
			confidence = 0.4
		}
		if hits >= 3 {
			confidence = 0.9
		}
		if confidence > best.Confidence {
			best = Detection{Language: lang, Confidence: confidence}
		}
	}
	return best
}

func isASCIILetters(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
