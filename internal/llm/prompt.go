package llm

import (
	"fmt"
	"strings"

	"github.com/questdeck/questdeck/internal/domain"
)

// PromptBuilder turns a player action into a finished prompt. The full
// world-aware prompt assembly lives with the content services; this basic
// builder covers sessions without one.
type PromptBuilder interface {
	BuildNPCPrompt(action domain.PlayerAction) (*domain.PromptRequest, error)
}

// BasicPromptBuilder formats a minimal prompt from the action fields alone.
type BasicPromptBuilder struct{}

func (BasicPromptBuilder) BuildNPCPrompt(action domain.PlayerAction) (*domain.PromptRequest, error) {
	npc := action.Target
	if npc == "" {
		npc = "Narrator"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The player performs action %q", action.ActionType)
	if action.Target != "" {
		fmt.Fprintf(&b, " targeting %s", action.Target)
	}
	if action.Dialogue != "" {
		fmt.Fprintf(&b, " and says: %q", action.Dialogue)
	}
	b.WriteString(".\nRespond in character.")

	return &domain.PromptRequest{
		NPCName: npc,
		System: fmt.Sprintf(
			"You are %s, a non-player character in a tabletop RPG session. "+
				"Answer with a JSON object containing npc_dialogue and internal_reasoning.", npc),
		User: b.String(),
	}, nil
}

var _ PromptBuilder = BasicPromptBuilder{}
