package session

// Message is the wire-agnostic envelope delivered to participants. The
// transport layer (WebSocket framing, reconnect handling) lives outside this
// package; here a participant is just a buffered channel of messages.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Message type tags. Clients switch on these.
const (
	TypeDialogueResponse   = "dialogue_response"
	TypeApprovalRequired   = "approval_required"
	TypeLLMProcessing      = "llm_processing"
	TypeChallengeResolved  = "challenge_resolved"
	TypeOutcomePending     = "outcome_pending"
	TypeSuggestionReady    = "suggestion_ready"
	TypeSceneChanged       = "scene_changed"
	TypeEventTriggered     = "event_triggered"
	TypeError              = "error"
)

// DialogueData is an approved NPC line delivered to players.
type DialogueData struct {
	SpeakerID   string `json:"speaker_id"`
	SpeakerName string `json:"speaker_name"`
	Text        string `json:"text"`
}

// ErrorData is a coded error delivered to a single client.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func DialogueResponse(speaker, text string) Message {
	return Message{Type: TypeDialogueResponse, Data: DialogueData{
		SpeakerID:   speaker,
		SpeakerName: speaker,
		Text:        text,
	}}
}

func ErrorMessage(code, msg string) Message {
	return Message{Type: TypeError, Data: ErrorData{Code: code, Message: msg}}
}

// LLMProcessing tells the DM a rejected request is being reworked.
func LLMProcessing(requestID string) Message {
	return Message{Type: TypeLLMProcessing, Data: map[string]string{"request_id": requestID}}
}
