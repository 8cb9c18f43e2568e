package routing

import (
	"sort"
	"strings"
)

// Department is the destination classification for an inbound message.
type Department string

const (
	DepartmentSales     Department = "sales"
	DepartmentDesign    Department = "design"
	DepartmentTechnical Department = "technical"
	// DepartmentGeneral is the default bucket when no classifier can decide.
	DepartmentGeneral Department = "general"
)

// Departments lists every routable department, default last.
var Departments = []Department{DepartmentSales, DepartmentDesign, DepartmentTechnical, DepartmentGeneral}

// DecisionSource records which classifier produced a decision.
type DecisionSource string

const (
	SourceKeyword DecisionSource = "keyword"
	SourceAI      DecisionSource = "ai"
	SourceDefault DecisionSource = "default"
	SourceError   DecisionSource = "error"
)

// Decision is the result of classifying one message.
type Decision struct {
	Department      Department
	Confidence      float64
	Source          DecisionSource
	MatchedKeywords []string
}

// defaultLexicons maps each department to its scoring keywords. Scores are
// case-insensitive substring occurrence counts, so multi-word phrases count too.
var defaultLexicons = map[Department][]string{
	DepartmentSales: {
		"price", "pricing", "quote", "cost", "how much", "invoice",
		"buy", "purchase", "order", "payment", "discount", "subscription",
		"upgrade", "plan",
	},
	DepartmentDesign: {
		"design", "logo", "artwork", "soundtrack", "licensing", "branding",
		"layout", "mockup", "illustration", "animation", "font", "asset",
		"template",
	},
	DepartmentTechnical: {
		"bug", "error", "crash", "broken", "not working", "doesn't work",
		"install", "login", "password", "reset", "update", "sync",
		"export", "import", "api",
	},
}

// KeywordClassifier scores messages against per-department lexicons. It is
// deterministic, total, and has no side effects.
type KeywordClassifier struct {
	lexicons map[Department][]string
}

// NewKeywordClassifier builds a classifier with the default lexicons.
func NewKeywordClassifier() *KeywordClassifier {
	return NewKeywordClassifierWithLexicons(defaultLexicons)
}

// NewKeywordClassifierWithLexicons builds a classifier with custom lexicons.
func NewKeywordClassifierWithLexicons(lexicons map[Department][]string) *KeywordClassifier {
	if len(lexicons) == 0 {
		lexicons = defaultLexicons
	}
	return &KeywordClassifier{lexicons: lexicons}
}

// Classify counts keyword occurrences per department. The strictly highest
// score wins with confidence 1.0; ties or all-zero scores return ok=false.
func (c *KeywordClassifier) Classify(text string) (Decision, bool) {
	lowered := strings.ToLower(text)
	if strings.TrimSpace(lowered) == "" {
		return Decision{}, false
	}

	scores := make(map[Department]int, len(c.lexicons))
	matched := make(map[Department][]string, len(c.lexicons))
	for dept, keywords := range c.lexicons {
		for _, kw := range keywords {
			if n := strings.Count(lowered, kw); n > 0 {
				scores[dept] += n
				matched[dept] = append(matched[dept], kw)
			}
		}
	}

	var best Department
	bestScore := 0
	tied := false
	// Iterate in fixed order so tie detection is deterministic.
	for _, dept := range Departments {
		score := scores[dept]
		if score > bestScore {
			best = dept
			bestScore = score
			tied = false
		} else if score == bestScore && score > 0 {
			tied = true
		}
	}

	if bestScore == 0 || tied {
		return Decision{}, false
	}

	keywords := matched[best]
	sort.Strings(keywords)
	return Decision{
		Department:      best,
		Confidence:      1.0,
		Source:          SourceKeyword,
		MatchedKeywords: keywords,
	}, true
}
