package domain

import "encoding/json"

// DecisionType classifies what kind of machine-generated output is awaiting
// the DM's decision.
type DecisionType string

const (
	DecisionTypeNPCResponse         DecisionType = "npc_response"
	DecisionTypeToolUsage           DecisionType = "tool_usage"
	DecisionTypeChallengeSuggestion DecisionType = "challenge_suggestion"
	DecisionTypeSceneTransition     DecisionType = "scene_transition"
)

// Urgency is a total order used as the approval queue's priority band.
// It is distinct from the queue's own numeric priority field: approval items
// are enqueued with priority = int(urgency).
type Urgency int

const (
	UrgencyNormal Urgency = iota
	UrgencyAwaitingPlayer
	UrgencySceneCritical
)

func (u Urgency) String() string {
	switch u {
	case UrgencyNormal:
		return "normal"
	case UrgencyAwaitingPlayer:
		return "awaiting_player"
	case UrgencySceneCritical:
		return "scene_critical"
	}
	return "unknown"
}

func (u Urgency) IsValid() bool {
	return u >= UrgencyNormal && u <= UrgencySceneCritical
}

// ProposedTool is a tool call the model wants to execute as part of an NPC
// response. Tools are never executed before the DM approves them.
type ProposedTool struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Arguments   json.RawMessage `json:"arguments"`
}

// ChallengeSuggestion is an optional skill-challenge the model proposes
// alongside an NPC response.
type ChallengeSuggestion struct {
	ChallengeID       string `json:"challenge_id"`
	ChallengeName     string `json:"challenge_name"`
	SkillName         string `json:"skill_name"`
	DifficultyDisplay string `json:"difficulty_display"`
	Confidence        string `json:"confidence"`
	Reasoning         string `json:"reasoning"`
}

// NarrativeEventSuggestion is an optional story-event trigger the model
// proposes alongside an NPC response.
type NarrativeEventSuggestion struct {
	EventID         string   `json:"event_id"`
	EventName       string   `json:"event_name"`
	Description     string   `json:"description"`
	SceneDirection  string   `json:"scene_direction"`
	Confidence      string   `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	MatchedTriggers []string `json:"matched_triggers,omitempty"`
}

// ApprovalItem is the payload of the human-gate queue: a machine-drafted NPC
// response waiting for the DM's decision before it reaches players.
type ApprovalItem struct {
	SessionID                string                    `json:"session_id"`
	SourceActionID           string                    `json:"source_action_id"`
	DecisionType             DecisionType              `json:"decision_type"`
	Urgency                  Urgency                   `json:"urgency"`
	NPCName                  string                    `json:"npc_name"`
	ProposedDialogue         string                    `json:"proposed_dialogue"`
	InternalReasoning        string                    `json:"internal_reasoning"`
	ProposedTools            []ProposedTool            `json:"proposed_tools"`
	RetryCount               int                       `json:"retry_count"`
	ChallengeSuggestion      *ChallengeSuggestion      `json:"challenge_suggestion,omitempty"`
	NarrativeEventSuggestion *NarrativeEventSuggestion `json:"narrative_event_suggestion,omitempty"`
}

// SessionKey implements queue.Payload.
func (a ApprovalItem) SessionKey() string { return a.SessionID }
