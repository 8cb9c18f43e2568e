package intake

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/translation"
)

func newTestGatherer() *Gatherer {
	return NewGatherer(
		NewExtractor(nil, nil),
		translation.NewDetector(nil, nil),
		DefaultGathererConfig(),
		nil,
	)
}

func TestAdmit_FirstContactHeldWithInfoRequest(t *testing.T) {
	g := newTestGatherer()

	adm := g.Admit(context.Background(), "+1 555 0100", "whatsapp", "Hello")
	assert.False(t, adm.Forward)
	assert.NotEmpty(t, adm.AutoReply)
	assert.Equal(t, StateGatheringInfo, adm.Record.State)
	assert.True(t, adm.Record.InfoRequestSent)
	assert.Equal(t, 1, adm.Record.MessageCount)
}

func TestAdmit_NameAndCompanyCompletes(t *testing.T) {
	g := newTestGatherer()
	ctx := context.Background()

	g.Admit(ctx, "+1 555 0100", "whatsapp", "Hello")

	adm := g.Admit(ctx, "+1 555 0100", "whatsapp", "John, Acme Corp")
	assert.True(t, adm.Forward)
	assert.Empty(t, adm.AutoReply)
	assert.Equal(t, StateComplete, adm.Record.State)
	assert.Equal(t, "John", adm.Record.Name)
	assert.Equal(t, "Acme Corp", adm.Record.BusinessName)

	// Once complete, everything forwards with no gating.
	adm = g.Admit(ctx, "+1 555 0100", "whatsapp", "great, thanks")
	assert.True(t, adm.Forward)
	assert.Empty(t, adm.AutoReply)
}

func TestAdmit_PartialExtractionAsksForMissingField(t *testing.T) {
	g := newTestGatherer()
	ctx := context.Background()

	g.Admit(ctx, "user1", "instagram", "Hi")

	adm := g.Admit(ctx, "user1", "instagram", "my name is Maria Lopez")
	assert.False(t, adm.Forward)
	assert.Contains(t, adm.AutoReply, "company")
	assert.Equal(t, StateGatheringInfo, adm.Record.State)
	assert.Equal(t, "Maria Lopez", adm.Record.Name)

	adm = g.Admit(ctx, "user1", "instagram", "Contoso Ltd")
	assert.True(t, adm.Forward)
	assert.Equal(t, StateComplete, adm.Record.State)
	assert.Equal(t, "Contoso Ltd", adm.Record.BusinessName)
}

func TestAdmit_BypassAfterMaxMessages(t *testing.T) {
	g := newTestGatherer()
	ctx := context.Background()

	adm := g.Admit(ctx, "user2", "whatsapp", "hey")
	require.False(t, adm.Forward)

	// Unparseable replies keep the gate closed until the message cap.
	for i := 2; i < 5; i++ {
		adm = g.Admit(ctx, "user2", "whatsapp", "no")
		assert.False(t, adm.Forward, "message %d should still be held", i)
		assert.Equal(t, i, adm.Record.MessageCount)
	}

	adm = g.Admit(ctx, "user2", "whatsapp", "no")
	assert.True(t, adm.Forward)
	assert.Equal(t, StateBypass, adm.Record.State)

	// Bypass is permanent for the record's lifetime.
	adm = g.Admit(ctx, "user2", "whatsapp", "still nothing useful")
	assert.True(t, adm.Forward)
	assert.Empty(t, adm.AutoReply)
}

func TestAdmit_UrgencySkipsGathering(t *testing.T) {
	g := newTestGatherer()
	ctx := context.Background()

	adm := g.Admit(ctx, "user3", "whatsapp", "URGENT: our stream is down during a live event")
	assert.True(t, adm.Forward)
	assert.Empty(t, adm.AutoReply)
	assert.Equal(t, StateBypass, adm.Record.State)

	adm = g.Admit(ctx, "user3", "whatsapp", "any update?")
	assert.True(t, adm.Forward)
}

func TestAdmit_InfoRequestMatchesLanguage(t *testing.T) {
	g := newTestGatherer()

	adm := g.Admit(context.Background(), "user4", "whatsapp", "Hola, necesito ayuda por favor")
	assert.False(t, adm.Forward)
	assert.Contains(t, adm.AutoReply, "nombre")
	assert.Equal(t, "es", adm.Record.Language)
}

func TestAdmit_IdentifierNormalization(t *testing.T) {
	g := newTestGatherer()
	ctx := context.Background()

	g.Admit(ctx, "+1 (555) 123-4567", "whatsapp", "Hello")
	adm := g.Admit(ctx, "15551234567", "whatsapp", "John, Acme Corp")

	// Both formats hit the same record, so the second message completes it.
	assert.True(t, adm.Forward)
	assert.Equal(t, StateComplete, adm.Record.State)
	assert.Equal(t, 2, adm.Record.MessageCount)

	rec, ok := g.Record("+1-555-123-4567")
	require.True(t, ok)
	assert.Equal(t, "15551234567", rec.Identifier)
}

func TestAdmit_StaleRecordResets(t *testing.T) {
	g := newTestGatherer()
	ctx := context.Background()
	base := time.Now()
	g.now = func() time.Time { return base }

	g.Admit(ctx, "user5", "whatsapp", "Hello")
	g.Admit(ctx, "user5", "whatsapp", "John, Acme Corp")
	rec, ok := g.Record("user5")
	require.True(t, ok)
	require.Equal(t, StateComplete, rec.State)

	// A day of silence resets the customer to a fresh first contact.
	g.now = func() time.Time { return base.Add(25 * time.Hour) }
	adm := g.Admit(ctx, "user5", "whatsapp", "Hello again")
	assert.False(t, adm.Forward)
	assert.NotEmpty(t, adm.AutoReply)
	assert.Equal(t, 1, adm.Record.MessageCount)
}

func TestGatherer_SweepAndCount(t *testing.T) {
	g := newTestGatherer()
	ctx := context.Background()
	base := time.Now()
	g.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		g.Admit(ctx, fmt.Sprintf("old-%d", i), "whatsapp", "Hello")
	}
	g.now = func() time.Time { return base.Add(12 * time.Hour) }
	g.Admit(ctx, "fresh", "whatsapp", "Hello")

	g.now = func() time.Time { return base.Add(25 * time.Hour) }
	assert.Equal(t, 1, g.Count())
	assert.Equal(t, 3, g.Sweep())
	assert.Equal(t, 1, g.Count())
}

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1 (555) 123-4567", "15551234567"},
		{"15551234567", "15551234567"},
		{"  User_Name.99  ", "user_name.99"},
		{"IG:Handle", "ighandle"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeIdentifier(tt.in), tt.in)
	}
}

func TestInfoRequestText_AllLanguagesNonEmpty(t *testing.T) {
	for _, lang := range []string{"en", "es", "de", "fr", "pt"} {
		assert.NotEmpty(t, infoRequestText(lang), lang)
		assert.NotEmpty(t, followUpText(lang, true), lang)
		assert.NotEmpty(t, followUpText(lang, false), lang)
	}
	assert.True(t, strings.HasPrefix(infoRequestText("pt"), "Thanks"))
}
