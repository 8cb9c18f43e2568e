package intake

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

func TestExtractByRules(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantName    string
		wantCompany string
	}{
		{
			name:        "comma reply",
			text:        "John, Acme Corp",
			wantName:    "John",
			wantCompany: "Acme Corp",
		},
		{
			name:     "my name is",
			text:     "my name is Maria Lopez",
			wantName: "Maria Lopez",
		},
		{
			name:     "contraction",
			text:     "Hi, I'm Dave",
			wantName: "Dave",
		},
		{
			name:        "company only",
			text:        "I'm from Initech LLC and I have a question",
			wantCompany: "Initech LLC",
		},
		{
			name:        "name and company in one sentence",
			text:        "This is Sarah from Northwind Group",
			wantName:    "Sarah",
			wantCompany: "Northwind Group",
		},
		{
			name: "greeting yields nothing",
			text: "Hello",
		},
		{
			name: "question yields nothing",
			text: "Hello, how much does it cost?",
		},
		{
			name:        "works at",
			text:        "I work at Globex Corporation",
			wantCompany: "Globex Corporation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractByRules(tt.text)
			assert.Equal(t, tt.wantName, got.Name)
			assert.Equal(t, tt.wantCompany, got.Company)
		})
	}
}

func TestExtract_AIPreferred(t *testing.T) {
	stub := &stubLLM{text: `Sure, here you go: {"name": "Ana Silva", "company": "Vertex Media"}`}
	e := NewExtractor(stub, nil)

	got := e.Extract(context.Background(), "soy Ana Silva de Vertex Media")
	assert.Equal(t, "Ana Silva", got.Name)
	assert.Equal(t, "Vertex Media", got.Company)
	assert.Equal(t, 1, stub.calls)
}

func TestExtract_AIPartialBackfilledByRules(t *testing.T) {
	stub := &stubLLM{text: `{"name": "", "company": "Acme Corp"}`}
	e := NewExtractor(stub, nil)

	got := e.Extract(context.Background(), "my name is John, Acme Corp")
	assert.Equal(t, "John", got.Name)
	assert.Equal(t, "Acme Corp", got.Company)
}

func TestExtract_AIFailureFallsBackToRules(t *testing.T) {
	stub := &stubLLM{err: errors.New("backend down")}
	e := NewExtractor(stub, nil)

	got := e.Extract(context.Background(), "John, Acme Corp")
	assert.Equal(t, "John", got.Name)
	assert.Equal(t, "Acme Corp", got.Company)
}

func TestExtract_AIGarbageFallsBackToRules(t *testing.T) {
	stub := &stubLLM{text: "I could not find any structured data in that message."}
	e := NewExtractor(stub, nil)

	got := e.Extract(context.Background(), "John, Acme Corp")
	assert.Equal(t, "John", got.Name)
	assert.Equal(t, "Acme Corp", got.Company)
}

func TestExtract_AIPlaceholdersRejected(t *testing.T) {
	stub := &stubLLM{text: `{"name": "unknown", "company": "N/A"}`}
	e := NewExtractor(stub, nil)

	got := e.Extract(context.Background(), "hello there")
	assert.Empty(t, got.Name)
	assert.Empty(t, got.Company)
}

func TestExtract_NoClientUsesRulesOnly(t *testing.T) {
	e := NewExtractor(nil, nil)

	got := e.Extract(context.Background(), "my name is Pierre")
	assert.Equal(t, "Pierre", got.Name)
}
