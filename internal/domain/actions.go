package domain

import "time"

// PlayerAction is a player's in-game action waiting to be turned into a
// language-model request.
type PlayerAction struct {
	SessionID  string    `json:"session_id"`
	PlayerID   string    `json:"player_id"`
	ActionType string    `json:"action_type"`
	Target     string    `json:"target,omitempty"`
	Dialogue   string    `json:"dialogue,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (a PlayerAction) SessionKey() string { return a.SessionID }

// DMActionKind tags the closed set of DM actions carried on the dm_actions
// topic. Adding a kind means adding a constant and a dispatch arm.
type DMActionKind string

const (
	DMActionApprovalDecision DMActionKind = "approval_decision"
	DMActionDirectNPCControl DMActionKind = "direct_npc_control"
	DMActionTriggerEvent     DMActionKind = "trigger_event"
	DMActionTransitionScene  DMActionKind = "transition_scene"
)

// DMAction is a DM command queued for ordered processing. Only the fields
// relevant to Kind are populated.
type DMAction struct {
	SessionID string       `json:"session_id"`
	DMID      string       `json:"dm_id"`
	Kind      DMActionKind `json:"kind"`

	// ApprovalDecision
	RequestID string            `json:"request_id,omitempty"`
	Decision  *ApprovalDecision `json:"decision,omitempty"`

	// DirectNPCControl
	NPCName  string `json:"npc_name,omitempty"`
	Dialogue string `json:"dialogue,omitempty"`

	// TriggerEvent
	EventID string `json:"event_id,omitempty"`

	// TransitionScene
	SceneID string `json:"scene_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

func (a DMAction) SessionKey() string { return a.SessionID }

// AssetRequest is a queued request for image-asset generation.
type AssetRequest struct {
	SessionID  string `json:"session_id,omitempty"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	WorkflowID string `json:"workflow_id"`
	Prompt     string `json:"prompt"`
	Count      int    `json:"count"`
}

func (a AssetRequest) SessionKey() string { return a.SessionID }
