package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"marketcal/internal/gateway"
)

const (
	defaultHeadlineLimit = 10
	maxHeadlineLimit     = 25
	headlineMaxAge       = 7 * 24 * time.Hour
)

type headlinesArgs struct {
	Limit int `json:"limit"`
}

type headline struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Published string `json:"published,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

// HeadlineFetcher serves recent items from a news RSS feed.
type HeadlineFetcher struct {
	parser  *gofeed.Parser
	feedURL string
}

func NewHeadlineFetcher(feedURL string) *HeadlineFetcher {
	return &HeadlineFetcher{parser: gofeed.NewParser(), feedURL: feedURL}
}

// Tool returns the latest_headlines tool definition backed by this fetcher.
func (f *HeadlineFetcher) Tool() gateway.Tool {
	return gateway.Tool{
		Name:        "latest_headlines",
		Description: "Get the most recent financial news headlines from the configured news feed.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of headlines to return (default 10, max 25)",
				},
			},
		},
		Handler:     f.handle,
		EmptyResult: headlinesAreEmpty,
	}
}

func (f *HeadlineFetcher) handle(ctx context.Context, args json.RawMessage) (string, error) {
	var a headlinesArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return "", fmt.Errorf("parsing headlines arguments: %w", err)
		}
	}
	limit := a.Limit
	if limit <= 0 {
		limit = defaultHeadlineLimit
	}
	if limit > maxHeadlineLimit {
		limit = maxHeadlineLimit
	}

	feed, err := f.parser.ParseURLWithContext(f.feedURL, ctx)
	if err != nil {
		return "", fmt.Errorf("fetching headlines: %w", err)
	}

	cutoff := time.Now().Add(-headlineMaxAge)
	headlines := make([]headline, 0, limit)
	for _, item := range feed.Items {
		if len(headlines) >= limit {
			break
		}
		h := headline{Title: item.Title, Link: item.Link}
		if item.PublishedParsed != nil {
			if item.PublishedParsed.Before(cutoff) {
				continue
			}
			h.Published = item.PublishedParsed.Format("2006-01-02")
		}
		if desc := stripHTML(item.Description); desc != "" {
			h.Summary = truncate(desc, 200)
		}
		headlines = append(headlines, h)
	}

	b, err := json.Marshal(headlines)
	if err != nil {
		return "", fmt.Errorf("serializing headlines: %w", err)
	}
	return string(b), nil
}

func headlinesAreEmpty(result string) bool {
	var items []headline
	if err := json.Unmarshal([]byte(result), &items); err != nil {
		return false
	}
	return len(items) == 0
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
