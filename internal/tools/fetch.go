package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"nightjar/internal/llm"
)

const (
	// FetchPageToolName is the wire name of the page-fetch tool.
	FetchPageToolName = "fetch_page"

	// maxFetchBytes bounds how much of a response body is read before
	// extraction.
	maxFetchBytes = 1 << 20
)

// FetchPageTool fetches a web page and reduces it to readable text.
type FetchPageTool struct {
	client *http.Client
}

func NewFetchPageTool() *FetchPageTool {
	return &FetchPageTool{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (t *FetchPageTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        FetchPageToolName,
		Description: "Fetch a web page and return its readable text with markup stripped. Use this when an answer depends on current or niche information from a specific page.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "The URL to fetch",
				},
			},
			"required":             []string{"url"},
			"additionalProperties": false,
		},
	}
}

func (t *FetchPageTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var payload struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &payload); err != nil {
		return "", fmt.Errorf("parse fetch_page args: %w", err)
	}
	if payload.URL == "" {
		return "", fmt.Errorf("url is required")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", normalizeURL(payload.URL), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		// Network failures go back as content so the model can respond
		// gracefully instead of failing the turn.
		return fmt.Sprintf("Error fetching URL: %v", err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusText := http.StatusText(resp.StatusCode)
		if statusText == "" {
			statusText = "Unknown"
		}
		return fmt.Sprintf("Error: HTTP %d %s - unable to fetch this page.", resp.StatusCode, statusText), nil
	}

	text := extractText(io.LimitReader(resp.Body, maxFetchBytes))
	if text == "" {
		return "(the page contained no readable text)", nil
	}
	return text, nil
}

// normalizeURL defaults scheme-less URLs to https.
func normalizeURL(url string) string {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "https://" + url
	}
	return url
}

// silentTags are elements whose entire subtree carries no readable
// content.
var silentTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
	"iframe":   true,
	"svg":      true,
	"template": true,
}

// blockTags get a line break so extracted text keeps paragraph
// structure.
var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"li": true, "tr": true, "br": true, "blockquote": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// extractText walks the markup and keeps only text content. The
// tokenizer decodes entities; silent subtrees are dropped wholesale.
func extractText(r io.Reader) string {
	tokenizer := html.NewTokenizer(r)
	var sb strings.Builder
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return collapseWhitespace(sb.String())
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if silentTags[tag] {
				skipDepth++
			} else if blockTags[tag] {
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if silentTags[tag] {
				if skipDepth > 0 {
					skipDepth--
				}
			} else if blockTags[tag] {
				sb.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			if blockTags[string(name)] {
				sb.WriteByte('\n')
			}
		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(tokenizer.Text())
			}
		}
	}
}

var (
	spaceRun   = regexp.MustCompile(`[ \t\r\f]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

func collapseWhitespace(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.Join(lines, "\n")
	s = newlineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
