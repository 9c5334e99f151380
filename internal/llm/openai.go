package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/questdeck/questdeck/internal/domain"
)

// OpenAIClient talks to an OpenAI-compatible chat-completions endpoint
// (Ollama serves one). The base URL and model are injected from config so
// tests can point at a local mock.
//
// A token-bucket limiter caps outgoing requests per second; burst equals the
// rate so the cap cannot be saved up.
type OpenAIClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewOpenAIClient(baseURL, model string, timeout time.Duration, ratePerSec int) *OpenAIClient {
	if ratePerSec < 1 {
		ratePerSec = 1
	}
	return &OpenAIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string      `json:"type"`
	Function chatToolDef `json:"function"`
}

type chatToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []chatTool    `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string          `json:"name"`
					Arguments json.RawMessage `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// npcPayload is the structured JSON body the model is prompted to answer
// with for NPC generation. A plain-text answer falls back to dialogue-only.
type npcPayload struct {
	NPCDialogue              string                           `json:"npc_dialogue"`
	InternalReasoning        string                           `json:"internal_reasoning"`
	ChallengeSuggestion      *domain.ChallengeSuggestion      `json:"challenge_suggestion"`
	NarrativeEventSuggestion *domain.NarrativeEventSuggestion `json:"narrative_event_suggestion"`
}

func (c *OpenAIClient) Generate(ctx context.Context, req domain.PromptRequest) (*Response, error) {
	return c.complete(ctx, req, nil)
}

func (c *OpenAIClient) GenerateWithTools(ctx context.Context, req domain.PromptRequest, tools []ToolDef) (*Response, error) {
	return c.complete(ctx, req, tools)
}

func (c *OpenAIClient) complete(ctx context.Context, req domain.PromptRequest, tools []ToolDef) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}
	for _, t := range tools {
		body.Tools = append(body.Tools, chatTool{
			Type: "function",
			Function: chatToolDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected model status: %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}

	msg := chat.Choices[0].Message
	out := parseNPCContent(msg.Content)
	for _, tc := range msg.ToolCalls {
		out.ProposedToolCalls = append(out.ProposedToolCalls, ToolCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// parseNPCContent accepts either the structured JSON body or plain prose.
func parseNPCContent(content string) *Response {
	trimmed := strings.TrimSpace(content)
	var p npcPayload
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal([]byte(trimmed), &p) == nil && p.NPCDialogue != "" {
		return &Response{
			NPCDialogue:              p.NPCDialogue,
			InternalReasoning:        p.InternalReasoning,
			ChallengeSuggestion:      p.ChallengeSuggestion,
			NarrativeEventSuggestion: p.NarrativeEventSuggestion,
		}
	}
	return &Response{NPCDialogue: trimmed}
}

var _ Client = (*OpenAIClient)(nil)
