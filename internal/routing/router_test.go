package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(ai *stubLLM) (*Router, *stubLLM) {
	if ai == nil {
		ai = &stubLLM{text: "general"}
	}
	r := NewRouter(NewKeywordClassifier(), NewAIClassifier(ai, nil), DefaultRouterConfig(), nil)
	return r, ai
}

func TestRouter_KeywordDecisionSkipsAI(t *testing.T) {
	r, ai := newTestRouter(&stubLLM{text: "design"})

	result := r.Route(context.Background(), "user-1", "What does the premium plan cost?")

	require.Equal(t, RouteStateRouted, result.State)
	assert.Equal(t, DepartmentSales, result.Department)
	assert.Equal(t, SourceKeyword, result.Source)
	// Keyword decisions always preempt AI; the backend is never called.
	assert.Equal(t, 0, ai.calls)
}

func TestRouter_BareGreetingAsksClarification(t *testing.T) {
	r, ai := newTestRouter(&stubLLM{text: "What brings you here today?"})

	result := r.Route(context.Background(), "user-2", "Hello!")

	assert.Equal(t, RouteStateAwaitingClarification, result.State)
	assert.True(t, result.NeedsClarification)
	assert.NotEmpty(t, result.Clarification)
	// Only the clarification prompt call, never a classification call.
	assert.Equal(t, 1, ai.calls)
	assert.Equal(t, 1, r.PendingCount())
}

func TestRouter_AIRoutesWhenConfident(t *testing.T) {
	r, _ := newTestRouter(&stubLLM{text: "technical"})

	result := r.Route(context.Background(), "user-3", "something odd happens sometimes")

	require.Equal(t, RouteStateRouted, result.State)
	assert.Equal(t, DepartmentTechnical, result.Department)
	assert.Equal(t, 0.9, result.Confidence)
	assert.Equal(t, SourceAI, result.Source)
}

func TestRouter_LowConfidenceAIAsksClarification(t *testing.T) {
	// Unparseable AI reply -> confidence 0.2 < 0.6 -> clarification.
	r, _ := newTestRouter(&stubLLM{text: "no idea honestly"})

	result := r.Route(context.Background(), "user-4", "it's about the thing")

	assert.True(t, result.NeedsClarification)
	assert.Equal(t, RouteStateAwaitingClarification, result.State)
}

func TestRouter_ClarifyingReplyLoweredThreshold(t *testing.T) {
	r, ai := newTestRouter(&stubLLM{text: "hmm"})

	first := r.Route(context.Background(), "user-5", "Hi")
	require.True(t, first.NeedsClarification)

	// Keyword match on the clarifying reply clears the pending state.
	ai.text = "design"
	second := r.Route(context.Background(), "user-5", "My logo looks wrong")
	require.Equal(t, RouteStateRouted, second.State)
	assert.Equal(t, DepartmentDesign, second.Department)
	assert.Equal(t, SourceKeyword, second.Source)
	assert.Equal(t, 0, r.PendingCount())
}

func TestRouter_ClarificationAttemptCap(t *testing.T) {
	// AI that can never classify: every reply is unparseable.
	r, _ := newTestRouter(&stubLLM{text: "???"})

	first := r.Route(context.Background(), "user-6", "Hey")
	require.True(t, first.NeedsClarification)

	second := r.Route(context.Background(), "user-6", "stuff")
	require.True(t, second.NeedsClarification)

	// Second failed clarification attempt hits the cap of 2 and forces the
	// default department instead of looping forever.
	third := r.Route(context.Background(), "user-6", "things")
	require.Equal(t, RouteStateRouted, third.State)
	assert.Equal(t, DepartmentGeneral, third.Department)
	assert.Equal(t, 0.3, third.Confidence)
	assert.Equal(t, SourceDefault, third.Source)
	assert.Equal(t, 0, r.PendingCount())
}

func TestIsBareGreeting(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Hello", true},
		{"hi!", true},
		{"Good morning", true},
		{"Hola", true},
		{"hey there", true},
		{"Hello, my invoice is wrong", false},
		{"", false},
		{"the quick brown fox jumps over everything", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, isBareGreeting(tt.text))
		})
	}
}
