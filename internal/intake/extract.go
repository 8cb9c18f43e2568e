package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/relaydesk/relaydesk/internal/llm"
	"github.com/relaydesk/relaydesk/pkg/logging"
)

// Extraction holds whatever customer details could be pulled from a message.
// Empty fields mean "not found", never "not applicable".
type Extraction struct {
	Name    string
	Company string
}

// Extractor pulls a customer's name and company out of free-form chat text.
// An AI parser is preferred when a client is configured; regex heuristics are
// the fallback and also backfill fields the AI missed.
type Extractor struct {
	client llm.Client
	logger *logging.Logger
}

// NewExtractor creates an extractor. client may be nil, in which case only
// the rule-based heuristics run.
func NewExtractor(client llm.Client, logger *logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{client: client, logger: logger}
}

// Extract returns the best-effort name/company parse of text.
func (e *Extractor) Extract(ctx context.Context, text string) Extraction {
	text = strings.TrimSpace(text)
	if text == "" {
		return Extraction{}
	}

	result := Extraction{}
	if e.client != nil {
		if ai, ok := e.extractByAI(ctx, text); ok {
			result = ai
		}
	}
	if result.Name == "" || result.Company == "" {
		rules := extractByRules(text)
		if result.Name == "" {
			result.Name = rules.Name
		}
		if result.Company == "" {
			result.Company = rules.Company
		}
	}
	return result
}

const extractPrompt = `Extract the sender's personal name and company name from
the message below. Respond with only a JSON object:
{"name": "<personal name or empty string>", "company": "<company name or empty string>"}

Message: %s`

func (e *Extractor) extractByAI(ctx context.Context, text string) (Extraction, bool) {
	resp, err := e.client.Complete(ctx, llm.Request{
		Messages:  []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: fmt.Sprintf(extractPrompt, text)}},
		MaxTokens: 100,
	})
	if err != nil {
		e.logger.Warn("ai extraction failed, falling back to rules", "error", err)
		return Extraction{}, false
	}

	raw := resp.Text
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Extraction{}, false
	}

	var parsed struct {
		Name    string `json:"name"`
		Company string `json:"company"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		e.logger.Warn("ai extraction returned malformed json", "error", err)
		return Extraction{}, false
	}
	return Extraction{
		Name:    cleanExtracted(parsed.Name),
		Company: cleanExtracted(parsed.Company),
	}, true
}

// cleanExtracted rejects AI answers that are placeholders rather than values.
func cleanExtracted(s string) string {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'`))
	lower := strings.ToLower(s)
	switch lower {
	case "", "null", "none", "n/a", "unknown", "not provided":
		return ""
	}
	if utf8.RuneCountInString(s) > 60 {
		return ""
	}
	return s
}

// ---------- rule-based fallback ----------

const namePhrase = `[A-Za-zÀ-ÿ'’-]+(?:\s+[A-Za-zÀ-ÿ'’-]+)?`

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)my name is\s+(` + namePhrase + `)`),
	regexp.MustCompile(`(?i)\bi'?m\s+(` + namePhrase + `)(?:\s|,|\.|!|$)`),
	regexp.MustCompile(`(?i)\bi am\s+(` + namePhrase + `)(?:\s|,|\.|!|$)`),
	regexp.MustCompile(`(?i)this is\s+(` + namePhrase + `)`),
	regexp.MustCompile(`(?i)call me\s+(` + namePhrase + `)`),
	regexp.MustCompile(`(?i)name'?s\s+(` + namePhrase + `)`),
}

var companyPatterns = []*regexp.Regexp{
	// Capitalized run ending in a corporate suffix, anywhere in the text.
	regexp.MustCompile(`\b((?:[A-Z][\w&'’-]*\s+)*[A-Z][\w&'’-]*\s+(?:Corp|Corporation|Inc|LLC|Ltd|GmbH|Co|Company|Group|Studios?|Media|Records|Labs?)\.?)(?:\s|,|\.|!|$)`),
	// "from/at <Capitalized Company>" without a suffix. Case-sensitive so the
	// capture stays anchored to proper nouns.
	regexp.MustCompile(`(?:[Ww]ork(?:ing)? (?:at|for)|[Ff]rom|[Rr]epresenting)\s+((?:[A-Z][\w&'’-]*)(?:\s+[A-Z][\w&'’-]*){0,3})`),
}

func extractByRules(text string) Extraction {
	result := Extraction{Name: findName(text), Company: findCompany(text)}

	// "Name, Company" replies to an info request arrive with no lead-in
	// phrase at all, so handle the bare comma form directly.
	if result.Name == "" || result.Company == "" {
		if name, company, ok := splitCommaReply(text); ok {
			if result.Name == "" {
				result.Name = name
			}
			if result.Company == "" {
				result.Company = company
			}
		}
	}
	return result
}

func findName(text string) string {
	for _, pattern := range namePatterns {
		match := pattern.FindStringSubmatch(text)
		if len(match) < 2 {
			continue
		}
		// "I'm from Initech" captures "from Initech"; a conversational lead
		// word means the phrase is not a name.
		first := strings.Fields(match[1])
		if len(first) > 0 && isCommonWord(cleanNameToken(first[0])) {
			continue
		}
		if name := joinNameWords(nameWords(match[1])); name != "" {
			return name
		}
	}
	return ""
}

func findCompany(text string) string {
	for _, pattern := range companyPatterns {
		match := pattern.FindStringSubmatch(text)
		if len(match) < 2 {
			continue
		}
		company := strings.TrimSpace(strings.Trim(match[1], ".,"))
		if company == "" || isCommonWord(company) {
			continue
		}
		return company
	}
	return ""
}

// splitCommaReply handles the bare "John, Acme Corp" form.
func splitCommaReply(text string) (name, company string, ok bool) {
	parts := strings.SplitN(text, ",", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	name = joinNameWords(nameWords(parts[0]))
	company = strings.TrimSpace(strings.Trim(parts[1], ".,!?"))
	if name == "" || company == "" {
		return "", "", false
	}
	// The right side must look like a proper noun, not conversation.
	first, _ := utf8.DecodeRuneInString(company)
	if !unicode.IsUpper(first) || isCommonWord(company) {
		return "", "", false
	}
	return name, company, true
}

func nameWords(raw string) []string {
	words := strings.Fields(strings.TrimSpace(raw))
	collected := make([]string, 0, 2)
	for _, word := range words {
		cleaned := cleanNameToken(word)
		if cleaned == "" {
			continue
		}
		if !looksLikeNameWord(cleaned) {
			if len(collected) > 0 {
				break
			}
			continue
		}
		collected = append(collected, capitalizeNameWord(cleaned))
		if len(collected) == 2 {
			break
		}
	}
	return collected
}

func joinNameWords(words []string) string {
	return strings.Join(words, " ")
}

func cleanNameToken(word string) string {
	word = strings.Trim(strings.TrimSpace(word), ".,!?\"()[]{}")
	return strings.Trim(word, "'-")
}

func looksLikeNameWord(word string) bool {
	count := utf8.RuneCountInString(word)
	if count < 2 || count > 30 {
		return false
	}
	firstRune, _ := utf8.DecodeRuneInString(word)
	if !unicode.IsLetter(firstRune) {
		return false
	}
	return !isCommonWord(word)
}

func capitalizeNameWord(word string) string {
	firstRune, size := utf8.DecodeRuneInString(word)
	if firstRune == utf8.RuneError || size == 0 {
		return word
	}
	return strings.ToUpper(string(firstRune)) + strings.ToLower(word[size:])
}

// isCommonWord filters conversational words that regex captures mistake for
// names or companies.
func isCommonWord(word string) bool {
	common := map[string]bool{
		"the": true, "and": true, "for": true, "are": true, "but": true,
		"not": true, "you": true, "all": true, "can": true, "was": true,
		"how": true, "who": true, "what": true, "when": true, "where": true,
		"this": true, "that": true, "with": true, "from": true, "here": true,
		"there": true, "your": true, "just": true, "like": true, "want": true,
		"need": true, "have": true, "will": true, "would": true, "could": true,
		"should": true, "hi": true, "hey": true, "hello": true, "yes": true,
		"no": true, "ok": true, "okay": true, "sure": true, "thanks": true,
		"thank": true, "please": true, "sorry": true, "good": true, "great": true,
		"fine": true, "well": true, "urgent": true, "emergency": true,
		"help": true, "helping": true, "asking": true, "writing": true,
		"wondering": true, "checking": true, "looking": true, "interested": true,
		"reaching": true, "contacting": true, "calling": true, "texting": true,
		"quote": true, "pricing": true, "price": true, "order": true,
		"invoice": true, "support": true, "question": true, "problem": true,
		"issue": true, "error": true, "broken": true, "working": true,
		"in": true, "on": true, "at": true, "to": true, "of": true, "is": true,
		"it": true, "an": true, "as": true, "be": true, "by": true, "do": true,
		"if": true, "or": true, "so": true, "up": true, "we": true, "me": true,
		"my": true, "he": true, "she": true, "new": true, "now": true,
		"still": true, "very": true, "really": true, "about": true,
	}
	return common[strings.ToLower(word)]
}
