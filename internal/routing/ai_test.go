package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relaydesk/relaydesk/internal/llm"
)

type stubLLM struct {
	text  string
	err   error
	calls int
}

func (s *stubLLM) Complete(_ context.Context, _ llm.Request) (llm.Response, error) {
	s.calls++
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return llm.Response{Text: s.text}, nil
}

func TestAIClassifier_Classify(t *testing.T) {
	tests := []struct {
		name           string
		response       string
		err            error
		wantDept       Department
		wantConfidence float64
		wantSource     DecisionSource
	}{
		{
			name:           "exact label",
			response:       "sales",
			wantDept:       DepartmentSales,
			wantConfidence: 0.9,
			wantSource:     SourceAI,
		},
		{
			name:           "exact label with punctuation",
			response:       "Technical.",
			wantDept:       DepartmentTechnical,
			wantConfidence: 0.9,
			wantSource:     SourceAI,
		},
		{
			name:           "label embedded in prose",
			response:       "I would route this to the design team",
			wantDept:       DepartmentDesign,
			wantConfidence: 0.7,
			wantSource:     SourceAI,
		},
		{
			name:           "unparseable reply",
			response:       "I am not sure what this is about",
			wantDept:       DepartmentGeneral,
			wantConfidence: 0.2,
			wantSource:     SourceAI,
		},
		{
			name:           "transport failure degrades",
			err:            errors.New("connection refused"),
			wantDept:       DepartmentGeneral,
			wantConfidence: 0,
			wantSource:     SourceError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewAIClassifier(&stubLLM{text: tt.response, err: tt.err}, nil)
			decision := c.Classify(context.Background(), "some message", "")

			assert.Equal(t, tt.wantDept, decision.Department)
			assert.Equal(t, tt.wantConfidence, decision.Confidence)
			assert.Equal(t, tt.wantSource, decision.Source)
		})
	}
}

func TestAIClassifier_NilClient(t *testing.T) {
	c := NewAIClassifier(nil, nil)
	decision := c.Classify(context.Background(), "anything", "")
	assert.Equal(t, DepartmentGeneral, decision.Department)
	assert.Equal(t, SourceError, decision.Source)
}

func TestAIClassifier_ClarificationQuestion(t *testing.T) {
	c := NewAIClassifier(&stubLLM{text: "What can I help you with today?"}, nil)
	q := c.ClarificationQuestion(context.Background(), "hmm")
	assert.Equal(t, "What can I help you with today?", q)

	failing := NewAIClassifier(&stubLLM{err: errors.New("down")}, nil)
	q = failing.ClarificationQuestion(context.Background(), "hmm")
	assert.Equal(t, defaultClarification, q)

	empty := NewAIClassifier(&stubLLM{text: "   "}, nil)
	q = empty.ClarificationQuestion(context.Background(), "hmm")
	assert.Equal(t, defaultClarification, q)
}
