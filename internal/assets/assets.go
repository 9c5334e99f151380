// Package assets defines the image-generation port consumed by the asset
// queue worker, plus an HTTP adapter for a ComfyUI-style workflow server.
package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/questdeck/questdeck/internal/domain"
)

// Result identifies the generation jobs started for a request.
type Result struct {
	JobIDs []string `json:"job_ids"`
}

// Generator is the image-generation port.
type Generator interface {
	Generate(ctx context.Context, req domain.AssetRequest) (*Result, error)
}

// HTTPGenerator submits workflow prompts to a ComfyUI-compatible server.
type HTTPGenerator struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPGenerator(baseURL string, timeout time.Duration) *HTTPGenerator {
	return &HTTPGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type promptRequest struct {
	WorkflowID string `json:"workflow_id"`
	Prompt     string `json:"prompt"`
}

type promptResponse struct {
	PromptID string `json:"prompt_id"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, req domain.AssetRequest) (*Result, error) {
	count := req.Count
	if count < 1 {
		count = 1
	}

	res := &Result{}
	for i := 0; i < count; i++ {
		body, err := json.Marshal(promptRequest{
			WorkflowID: req.WorkflowID,
			Prompt:     req.Prompt,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal prompt: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			g.baseURL+"/prompt", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := g.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("submit workflow: %w", err)
		}

		var pr promptResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&pr)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected generator status: %d", resp.StatusCode)
		}
		if decodeErr != nil {
			return nil, fmt.Errorf("decode generator response: %w", decodeErr)
		}
		res.JobIDs = append(res.JobIDs, pr.PromptID)
	}
	return res, nil
}

var _ Generator = (*HTTPGenerator)(nil)
