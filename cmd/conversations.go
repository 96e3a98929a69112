package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"nightjar/internal/store"
)

var (
	conversationsFilter string
	conversationsLimit  int
	conversationsJSON   bool
)

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Manage saved conversations",
	Long: `List, inspect, search, and delete saved conversations.

Examples:
  nightjar conversations                      # list recent conversations
  nightjar conversations list --filter sqlite # fuzzy-match titles
  nightjar conversations search "fts5 index"  # full-text search across messages
  nightjar conversations show 4f8a2c1b
  nightjar conversations delete 4f8a2c1b`,
	RunE: runConversationsList,
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE:  runConversationsList,
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsShow,
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsDelete,
}

var conversationsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search across message content",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runConversationsSearch,
}

func init() {
	conversationsListCmd.Flags().StringVar(&conversationsFilter, "filter", "", "Fuzzy-filter by title")
	conversationsListCmd.Flags().IntVar(&conversationsLimit, "limit", 20, "Maximum number of conversations to list")
	conversationsCmd.Flags().StringVar(&conversationsFilter, "filter", "", "Fuzzy-filter by title")
	conversationsCmd.Flags().IntVar(&conversationsLimit, "limit", 20, "Maximum number of conversations to list")
	conversationsShowCmd.Flags().BoolVar(&conversationsJSON, "json", false, "Output as JSON")
	conversationsSearchCmd.Flags().IntVar(&conversationsLimit, "limit", 20, "Maximum number of hits")

	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
	conversationsCmd.AddCommand(conversationsSearchCmd)

	rootCmd.AddCommand(conversationsCmd)
}

func runConversationsList(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	st, err := openConversationStore(s)
	if err != nil {
		return err
	}
	defer st.Close()

	summaries := filterSummaries(st.List(), conversationsFilter)
	if conversationsLimit > 0 && len(summaries) > conversationsLimit {
		summaries = summaries[:conversationsLimit]
	}
	if len(summaries) == 0 {
		fmt.Println("No conversations found.")
		return nil
	}

	fmt.Printf("%-10s %-40s %5s %s\n", "ID", "TITLE", "MSGS", "UPDATED")
	fmt.Println(strings.Repeat("-", 68))
	for _, sum := range summaries {
		fmt.Printf("%-10s %-40s %5d %s\n",
			shortID(sum.ID), truncateTitle(sum.Title, 40), sum.MessageCount, formatRelativeTime(sum.UpdatedAt))
	}
	return nil
}

func runConversationsShow(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	st, err := openConversationStore(s)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := resolveConversation(st, args[0])
	if err != nil {
		return err
	}
	conv, err := st.Get(id)
	if err != nil {
		return err
	}

	if conversationsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(conv)
	}

	fmt.Printf("Conversation: %s\n", conv.ID)
	fmt.Printf("Title: %s\n", conv.Title)
	fmt.Printf("Created: %s\n", conv.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated: %s\n", conv.UpdatedAt.Format(time.RFC3339))
	fmt.Printf("Messages: %d\n", len(conv.Messages))

	for i, m := range conv.Messages {
		fmt.Printf("\n[%d] %s\n", i, m.Role)
		for _, use := range m.ToolUses {
			fmt.Printf("  • %s\n", use.Name)
		}
		fmt.Println(m.Content)
	}
	return nil
}

func runConversationsDelete(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	st, err := openConversationStore(s)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := resolveConversation(st, args[0])
	if err != nil {
		return err
	}
	if err := st.Delete(id); err != nil {
		return err
	}
	fmt.Printf("Deleted conversation %s.\n", shortID(id))
	return nil
}

func runConversationsSearch(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	st, err := openConversationStore(s)
	if err != nil {
		return err
	}
	defer st.Close()

	hits, err := st.Search(context.Background(), strings.Join(args, " "), conversationsLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(hits) == 0 {
		fmt.Println("No matches found.")
		return nil
	}

	for _, hit := range hits {
		fmt.Printf("%-10s %-30s %s\n", shortID(hit.ConversationID), truncateTitle(hit.Title, 30), hit.Snippet)
	}
	return nil
}

// summarySource adapts conversation summaries to fuzzy matching on titles.
type summarySource []store.Summary

func (s summarySource) String(i int) string { return s[i].Title }

func (s summarySource) Len() int { return len(s) }

func filterSummaries(summaries []store.Summary, query string) []store.Summary {
	if query == "" {
		return summaries
	}
	matches := fuzzy.FindFrom(query, summarySource(summaries))
	out := make([]store.Summary, 0, len(matches))
	for _, m := range matches {
		out = append(out, summaries[m.Index])
	}
	return out
}

// resolveConversation accepts a full conversation ID or a unique prefix.
func resolveConversation(st *store.Store, ref string) (string, error) {
	if _, err := st.Get(ref); err == nil {
		return ref, nil
	}
	var match string
	for _, sum := range st.List() {
		if strings.HasPrefix(sum.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("conversation ID %q is ambiguous", ref)
			}
			match = sum.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("conversation %q not found", ref)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateTitle(title string, max int) string {
	if len(title) <= max {
		return title
	}
	return title[:max-3] + "..."
}

func formatRelativeTime(t time.Time) string {
	dur := time.Since(t)
	switch {
	case dur < time.Minute:
		return "just now"
	case dur < time.Hour:
		return fmt.Sprintf("%dm ago", int(dur.Minutes()))
	case dur < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(dur.Hours()))
	case dur < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(dur.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
