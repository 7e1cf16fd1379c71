package llm

import (
	"testing"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
	if _, err := NewClient(Config{APIKey: "sk-test"}); err != nil {
		t.Fatalf("NewClient: %v", err)
	}
}

func TestConvertMessagesMapsRoles(t *testing.T) {
	t.Parallel()

	c := &openaiClient{model: DefaultModel}
	got := c.convertMessages([]Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Name: "ada_lovelace", Content: "question"},
		{Role: RoleUser, Content: "anonymous question"},
		{Role: RoleAssistant, Content: "answer"},
	})

	if len(got) != 4 {
		t.Fatalf("got %d messages want 4", len(got))
	}
	if got[0].OfSystem == nil {
		t.Fatalf("system message not mapped")
	}
	if got[1].OfUser == nil || got[1].OfUser.Name.Value != "ada_lovelace" {
		t.Fatalf("named user message not mapped: %+v", got[1])
	}
	if got[2].OfUser == nil {
		t.Fatalf("anonymous user message not mapped")
	}
	if got[3].OfAssistant == nil {
		t.Fatalf("assistant message not mapped")
	}
}

func TestNewEmbedderDefaultsModel(t *testing.T) {
	t.Parallel()

	if _, err := NewEmbedder(Config{}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
	e, err := NewEmbedder(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	if e.model != DefaultEmbeddingModel {
		t.Fatalf("got model %q want default", e.model)
	}
}
