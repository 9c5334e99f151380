package llm

import "encoding/json"

// DefaultTools returns the tool set offered to the model on every NPC
// generation. Proposed calls are never executed directly; they ride into the
// approval gate as DecisionTypeToolUsage items for the DM to rule on.
func DefaultTools() []ToolDef {
	return []ToolDef{
		{
			Name:        "create_challenge",
			Description: "Propose a skill challenge for the acting player, such as a persuasion or athletics check.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"challenge_name": {"type": "string", "description": "Short name for the challenge"},
					"skill_name": {"type": "string", "description": "The skill being tested"},
					"difficulty": {"type": "string", "enum": ["trivial", "easy", "medium", "hard", "heroic"]},
					"reasoning": {"type": "string", "description": "Why this moment calls for a check"}
				},
				"required": ["challenge_name", "skill_name", "difficulty"]
			}`),
		},
		{
			Name:        "trigger_narrative_event",
			Description: "Propose firing a prepared story event whose triggers the current action appears to match.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"event_name": {"type": "string", "description": "Name of the prepared event"},
					"scene_direction": {"type": "string", "description": "How the scene should shift if it fires"},
					"matched_triggers": {"type": "array", "items": {"type": "string"}},
					"reasoning": {"type": "string"}
				},
				"required": ["event_name"]
			}`),
		},
		{
			Name:        "update_npc_disposition",
			Description: "Propose changing this NPC's standing toward the party based on the exchange.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"disposition": {"type": "string", "enum": ["hostile", "wary", "neutral", "friendly", "devoted"]},
					"reasoning": {"type": "string", "description": "What in the exchange moved the needle"}
				},
				"required": ["disposition"]
			}`),
		},
	}
}
