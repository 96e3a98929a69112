package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func fetchArgs(t *testing.T, url string) json.RawMessage {
	t.Helper()
	args, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		t.Fatal(err)
	}
	return args
}

func TestFetchPageCleansMarkup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html>
<html><head><title>ignored</title><style>body { color: red }</style></head>
<body>
<script>alert("never seen");</script>
<h1>Tides   &amp;   Currents</h1>
<p>Spring tides occur when the sun &lt;and&gt; moon align.</p>
<div>  Neap   tides   are   weaker.  </div>
</body></html>`)
	}))
	defer server.Close()

	tool := NewFetchPageTool()
	out, err := tool.Execute(context.Background(), fetchArgs(t, server.URL))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if strings.Contains(out, "alert(") || strings.Contains(out, "color: red") {
		t.Errorf("script/style content leaked: %q", out)
	}
	if strings.Contains(out, "ignored") {
		t.Errorf("head content leaked: %q", out)
	}
	if !strings.Contains(out, "Tides & Currents") {
		t.Errorf("entities not decoded or heading lost: %q", out)
	}
	if !strings.Contains(out, "Spring tides occur when the sun <and> moon align.") {
		t.Errorf("paragraph text mangled: %q", out)
	}
	if strings.Contains(out, "  ") {
		t.Errorf("whitespace not collapsed: %q", out)
	}
}

func TestFetchPageHTTPErrorBecomesText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	tool := NewFetchPageTool()
	out, err := tool.Execute(context.Background(), fetchArgs(t, server.URL))
	if err != nil {
		t.Fatalf("HTTP failure must not be an error: %v", err)
	}
	if !strings.Contains(out, "HTTP 404") {
		t.Errorf("out = %q, want an HTTP 404 message", out)
	}
}

func TestFetchPageMissingURL(t *testing.T) {
	tool := NewFetchPageTool()
	if _, err := tool.Execute(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Fatal("want error for missing url")
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"example.com/a":         "https://example.com/a",
		"http://example.com/a":  "http://example.com/a",
		"https://example.com/a": "https://example.com/a",
	}
	for in, want := range cases {
		if got := normalizeURL(in); got != want {
			t.Errorf("normalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCollapseWhitespace(t *testing.T) {
	in := "  a \t b  \n\n\n\n c  \n"
	want := "a b\n\nc"
	if got := collapseWhitespace(in); got != want {
		t.Errorf("collapseWhitespace = %q, want %q", got, want)
	}
}
