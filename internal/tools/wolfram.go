package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nightjar/internal/llm"
)

const (
	// WolframToolName is the wire name of the computational-query tool.
	WolframToolName = "wolfram_query"

	wolframEndpoint = "https://www.wolframalpha.com/api/v1/llm-api"
)

// WolframTool answers computational and factual queries through the
// Wolfram|Alpha LLM API.
type WolframTool struct {
	client   *http.Client
	appID    string
	endpoint string
}

func NewWolframTool(appID string) *WolframTool {
	return &WolframTool{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		appID:    appID,
		endpoint: wolframEndpoint,
	}
}

func (t *WolframTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        WolframToolName,
		Description: "Submit a short computational or factual query to Wolfram|Alpha: arithmetic, unit conversions, dates, constants, figures. Pass a plain question, not prose.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The query, e.g. \"integrate x^2 sin x\" or \"population of Portugal\"",
				},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
	}
}

func (t *WolframTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var payload struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &payload); err != nil {
		return "", fmt.Errorf("parse wolfram_query args: %w", err)
	}
	if payload.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	// No credential, no network attempt: the short-circuit text tells
	// the model what to relay to the user.
	if t.appID == "" {
		return "Error: no Wolfram|Alpha App ID is configured. This query cannot run. " +
			"Tell the user to add a wolfram_app_id under Settings before using this tool, " +
			"and answer from your own knowledge if you can.", nil
	}

	query := url.Values{}
	query.Set("input", payload.Query)
	query.Set("appid", t.appID)

	req, err := http.NewRequestWithContext(ctx, "GET", t.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error querying Wolfram|Alpha: %v", err), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return fmt.Sprintf("Error reading Wolfram|Alpha response: %v", err), nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The LLM API answers unusable queries with a plain-text hint;
		// pass it through when it is short enough to be one.
		hint := strings.TrimSpace(string(body))
		if hint != "" && len(hint) <= 500 {
			return fmt.Sprintf("Wolfram|Alpha error (HTTP %d): %s", resp.StatusCode, hint), nil
		}
		return fmt.Sprintf("Error: HTTP %d - Wolfram|Alpha could not answer this query.", resp.StatusCode), nil
	}

	return strings.TrimSpace(string(body)), nil
}
