// Package llm defines the language-model port consumed by the queue workers
// and an OpenAI-compatible HTTP client implementing it.
package llm

import (
	"context"
	"encoding/json"

	"github.com/questdeck/questdeck/internal/domain"
)

// ToolDef describes a tool the model may propose calling. Proposed calls are
// never executed here; they ride along into the approval gate.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is a call the model proposed in its response.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Response is a structured NPC generation result.
type Response struct {
	NPCDialogue       string
	InternalReasoning string
	ProposedToolCalls []ToolCall

	ChallengeSuggestion      *domain.ChallengeSuggestion
	NarrativeEventSuggestion *domain.NarrativeEventSuggestion
}

// Client is the language-model port. Implementations may fail with transport
// or model errors; callers map those to Failed queue items.
// Mocking this interface in tests gives full control over model behaviour
// without network calls.
type Client interface {
	Generate(ctx context.Context, req domain.PromptRequest) (*Response, error)
	GenerateWithTools(ctx context.Context, req domain.PromptRequest, tools []ToolDef) (*Response, error)
}
