package domain

// RequestKind tags the closed union of language-model request types flowing
// through the llm_requests topic. The dispatcher switches over it
// exhaustively; new kinds require a new constant and a new dispatch arm,
// never an open-ended handler registry.
type RequestKind string

const (
	KindNPCResponse        RequestKind = "npc_response"
	KindSuggestion         RequestKind = "suggestion"
	KindChallengeReasoning RequestKind = "challenge_reasoning"
)

// PromptRequest is the already-built prompt text for one model call.
// Prompt construction itself is a collaborator concern; queue payloads only
// carry the finished text.
type PromptRequest struct {
	NPCName string `json:"npc_name"`
	System  string `json:"system"`
	User    string `json:"user"`
}

// SuggestionContext describes a content-field suggestion request
// (for example, a location description the DM asked the model to draft).
type SuggestionContext struct {
	FieldType string `json:"field_type"`
	EntityID  string `json:"entity_id,omitempty"`
	Context   string `json:"context,omitempty"`
}

// LLMRequest is the payload of the llm_requests topic.
type LLMRequest struct {
	Kind      RequestKind `json:"kind"`
	SessionID string      `json:"session_id,omitempty"`

	// NPCResponse: the player-action queue item this request answers.
	SourceActionID string         `json:"source_action_id,omitempty"`
	Prompt         *PromptRequest `json:"prompt,omitempty"`

	// Suggestion
	Suggestion *SuggestionContext `json:"suggestion,omitempty"`

	// ChallengeReasoning
	ChallengeID string `json:"challenge_id,omitempty"`

	// CallbackID routes the eventual result back to its requester.
	CallbackID string `json:"callback_id"`
}

func (r LLMRequest) SessionKey() string { return r.SessionID }
