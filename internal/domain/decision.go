package domain

// DecisionKind enumerates the DM's possible decisions on a pending NPC
// response. The set is closed: deciders switch over it exhaustively.
type DecisionKind string

const (
	DecisionAccept                 DecisionKind = "accept"
	DecisionAcceptWithModification DecisionKind = "accept_with_modification"
	DecisionReject                 DecisionKind = "reject"
	DecisionTakeOver               DecisionKind = "take_over"
)

// ApprovalDecision carries a DM decision. Only the fields relevant to Kind
// are read; the rest stay zero.
type ApprovalDecision struct {
	Kind DecisionKind `json:"kind"`

	// AcceptWithModification
	ModifiedDialogue string   `json:"modified_dialogue,omitempty"`
	ApprovedTools    []string `json:"approved_tools,omitempty"`
	RejectedTools    []string `json:"rejected_tools,omitempty"`

	// Reject
	Feedback string `json:"feedback,omitempty"`

	// TakeOver
	DMResponse string `json:"dm_response,omitempty"`
}

// ApprovalResult reports what happened to a pending approval after a decision.
// ApprovedTools is the proposed-tool subset the DM let through on an
// accept-with-modification.
type ApprovalResult struct {
	RequestID          string         `json:"request_id"`
	BroadcastSent      bool           `json:"broadcast_sent"`
	RetryCount         int            `json:"retry_count,omitempty"`
	MaxRetriesExceeded bool           `json:"max_retries_exceeded,omitempty"`
	ApprovedTools      []ProposedTool `json:"approved_tools,omitempty"`
}

// OutcomeDecisionKind enumerates the DM's decisions on a pending challenge
// resolution.
type OutcomeDecisionKind string

const (
	OutcomeAccept  OutcomeDecisionKind = "accept"
	OutcomeEdit    OutcomeDecisionKind = "edit"
	OutcomeSuggest OutcomeDecisionKind = "suggest"
)

// OutcomeDecision carries a DM decision on a challenge-roll outcome.
type OutcomeDecision struct {
	Kind OutcomeDecisionKind `json:"kind"`

	// Edit
	ModifiedDescription string `json:"modified_description,omitempty"`

	// Suggest
	Guidance string `json:"guidance,omitempty"`
}

// OutcomeResult reports what happened to a pending challenge resolution.
type OutcomeResult struct {
	ResolutionID         string `json:"resolution_id"`
	BroadcastSent        bool   `json:"broadcast_sent"`
	SuggestionsRequested bool   `json:"suggestions_requested,omitempty"`
}

// ChallengeResolution is a player's challenge roll waiting for the DM to
// approve, edit, or request suggestions for the narrated outcome.
type ChallengeResolution struct {
	ResolutionID       string `json:"resolution_id"`
	SessionID          string `json:"session_id"`
	ChallengeID        string `json:"challenge_id"`
	ChallengeName      string `json:"challenge_name"`
	CharacterID        string `json:"character_id"`
	CharacterName      string `json:"character_name"`
	Roll               int    `json:"roll"`
	Modifier           int    `json:"modifier"`
	Total              int    `json:"total"`
	OutcomeType        string `json:"outcome_type"`
	OutcomeDescription string `json:"outcome_description"`
	RollBreakdown      string `json:"roll_breakdown,omitempty"`
}
