package routing

import (
	"context"
	"fmt"
	"strings"

	"github.com/relaydesk/relaydesk/internal/llm"
	"github.com/relaydesk/relaydesk/pkg/logging"
)

const classifyPrompt = `You route customer support messages to a department.
The only valid departments are: sales, design, technical, general.

Respond with exactly one department name, nothing else.

- sales: pricing, quotes, purchases, invoices, subscriptions
- design: creative assets, logos, soundtracks, licensing, branding
- technical: errors, bugs, logins, installs, anything not working
- general: anything that fits none of the above

%sMessage: %s

Department:`

const clarifyPrompt = `A customer wrote the message below and we cannot tell which
department (sales, design, or technical) should handle it. Write one short,
friendly question (max 25 words) asking them what they need help with.
Do not mention departments or routing. Reply with the question only.

Message: %s`

// defaultClarification is used when the LLM cannot produce a question.
const defaultClarification = "Thanks for reaching out! Could you tell me a bit more about what you need help with today?"

// AIClassifier is the fallback classifier, invoked only when the keyword
// classifier yields no decision. It never returns an error to the caller;
// transport failures degrade to the default department.
type AIClassifier struct {
	client llm.Client
	logger *logging.Logger
}

// NewAIClassifier creates an LLM-backed department classifier.
func NewAIClassifier(client llm.Client, logger *logging.Logger) *AIClassifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &AIClassifier{client: client, logger: logger}
}

// Classify asks the backend for a department, parsing the reply defensively.
// An exact label yields confidence 0.9, a substring match 0.7, an unparseable
// reply the default department at 0.2, and a transport failure the default
// department at 0 with source "error".
func (c *AIClassifier) Classify(ctx context.Context, text, conversationContext string) Decision {
	if c.client == nil {
		return Decision{Department: DepartmentGeneral, Confidence: 0, Source: SourceError}
	}

	var contextBlock string
	if strings.TrimSpace(conversationContext) != "" {
		contextBlock = fmt.Sprintf("Earlier in the conversation: %s\n\n", conversationContext)
	}
	prompt := fmt.Sprintf(classifyPrompt, contextBlock, text)

	resp, err := c.client.Complete(ctx, llm.Request{
		Messages:  []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: prompt}},
		MaxTokens: 10,
	})
	if err != nil {
		c.logger.Warn("ai classification failed", "error", err)
		return Decision{Department: DepartmentGeneral, Confidence: 0, Source: SourceError}
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Text))
	answer = strings.Trim(answer, ".!\"'`")

	for _, dept := range Departments {
		if answer == string(dept) {
			return Decision{Department: dept, Confidence: 0.9, Source: SourceAI}
		}
	}
	for _, dept := range Departments {
		if strings.Contains(answer, string(dept)) {
			return Decision{Department: dept, Confidence: 0.7, Source: SourceAI}
		}
	}

	return Decision{Department: DepartmentGeneral, Confidence: 0.2, Source: SourceAI}
}

// ClarificationQuestion produces a follow-up question for an unroutable
// message, falling back to a fixed template when the backend fails.
func (c *AIClassifier) ClarificationQuestion(ctx context.Context, text string) string {
	if c.client == nil {
		return defaultClarification
	}

	resp, err := c.client.Complete(ctx, llm.Request{
		Messages:  []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: fmt.Sprintf(clarifyPrompt, text)}},
		MaxTokens: 60,
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		return defaultClarification
	}

	question := strings.TrimSpace(resp.Text)
	if len(question) > 300 {
		return defaultClarification
	}
	return question
}
