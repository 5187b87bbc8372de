// Package drafting provides the LLM gateway integration that turns a
// section name plus author notes into drafted manuscript text. The gateway
// is treated as a black box with unknown latency and a nonzero failure rate;
// all failures surface through a single error path.
package drafting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/templates"
)

// Client handles communication with the drafting gateway for section generation
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	registry   *templates.Registry
	httpClient *http.Client
	stubMode   bool
}

// NewClient creates a new drafting client. The timeout bounds the full
// gateway round trip per section; the orchestrator itself imposes none.
// In stub mode the client returns deterministic text without network calls.
func NewClient(baseURL, apiKey, model string, registry *templates.Registry, timeout time.Duration, stubMode bool) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		registry:   registry,
		httpClient: &http.Client{Timeout: timeout},
		stubMode:   stubMode,
	}
}

// draftRequest is the gateway wire format for one section call
type draftRequest struct {
	Model        string `json:"model"`
	Section      string `json:"section"`
	Guidance     string `json:"guidance,omitempty"`
	NotesContext string `json:"notes_context"`
}

type draftResponse struct {
	Text string `json:"text"`
}

// DraftSection generates text for a single manuscript section from the
// shared notes context. Synchronous; may take arbitrarily long up to the
// client timeout and may fail.
func (c *Client) DraftSection(ctx context.Context, section, notesContext string) (string, error) {
	if c.stubMode {
		// Deterministic output keeps local development and demos usable
		// without gateway credentials.
		time.Sleep(500 * time.Millisecond)
		return fmt.Sprintf("%s draft content", section), nil
	}

	var guidance string
	if c.registry != nil {
		guidance = c.registry.Guidance(section)
	}

	jsonData, err := json.Marshal(draftRequest{
		Model:        c.model,
		Section:      section,
		Guidance:     guidance,
		NotesContext: notesContext,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/draft", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("draft gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var content draftResponse
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if content.Text == "" {
		return "", fmt.Errorf("draft gateway returned empty text for section %q", section)
	}

	return content.Text, nil
}
