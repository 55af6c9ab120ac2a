package chatmodel

import (
	"testing"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

func TestConvertMessagesMapsRolesAndSystemInstruction(t *testing.T) {
	req := &model.LLMRequest{
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText("be brief", genai.RoleUser),
		},
		Contents: []*genai.Content{
			genai.NewContentFromText("hello", genai.RoleUser),
			genai.NewContentFromText("hi", genai.RoleModel),
			{Role: "user", Parts: []*genai.Part{{Text: "   "}}},
		},
	}

	msgs := convertMessages(req)
	if len(msgs) != 3 {
		t.Fatalf("expected system + 2 messages, got %d", len(msgs))
	}
	if msgs[0].OfSystem == nil {
		t.Fatal("expected first message to be the system instruction")
	}
	if msgs[1].OfUser == nil {
		t.Fatal("expected user message second")
	}
	if msgs[2].OfAssistant == nil {
		t.Fatal("expected model content to map to an assistant message")
	}
}

func TestNewDefaultsModelName(t *testing.T) {
	m := New(Config{APIKey: "k"})
	if m.Name() != "gpt-4o-mini" {
		t.Fatalf("expected default model, got %q", m.Name())
	}
}
