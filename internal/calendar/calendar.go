// Package calendar parses and renders the calendar documents produced by
// the final pipeline stage.
package calendar

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Event is a single calendar entry.
type Event struct {
	Title       string `json:"title"`
	Relevance   string `json:"relevance"`
	Description string `json:"description"`
}

// DayEvents groups the events of one calendar day.
type DayEvents struct {
	Date   string  `json:"date"`
	Events []Event `json:"events"`
}

type MonthlyCalendar struct {
	Events []DayEvents `json:"events"`
}

type CategorySummary struct {
	Category    string `json:"category"`
	Description string `json:"description"`
}

type WeeklyHighlights struct {
	WeekRange      string  `json:"weekRange"`
	Description    string  `json:"description"`
	UpcomingEvents []Event `json:"upcomingEvents"`
}

type DayPreview struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

type DailyHighlights struct {
	Date            string     `json:"date"`
	TodaysKeyEvents []Event    `json:"todaysKeyEvents"`
	NextDayPreview  DayPreview `json:"nextDayPreview"`
}

// Calendar is the full tiered calendar document.
type Calendar struct {
	Title                 string            `json:"title"`
	Monthly               MonthlyCalendar   `json:"monthlyCalendar"`
	MonthlyPastSummary    []CategorySummary `json:"monthlyPastEventsSummary"`
	MonthlyUpcomingEvents []Event           `json:"monthlyUpcomingEventsSummary"`
	Weekly                WeeklyHighlights  `json:"weeklyHighlights"`
	Daily                 DailyHighlights   `json:"dailyHighlights"`

	// Raw holds the original body when it could not be parsed as the
	// calendar document; rendering falls back to it verbatim.
	Raw string `json:"-"`
}

var fenceRE = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON pulls the JSON document out of a model response. The body may
// be bare JSON or JSON inside a markdown code fence, possibly surrounded by
// commentary.
func ExtractJSON(body string) string {
	if m := fenceRE.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}

	trimmed := strings.TrimSpace(body)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}
	return trimmed
}

// Parse decodes a stored calendar body. When the body is not a valid
// calendar document the Raw field carries it unchanged, so a run whose
// model ignored the output format still produces something viewable.
func Parse(body string) *Calendar {
	var c Calendar
	if err := json.Unmarshal([]byte(ExtractJSON(body)), &c); err != nil || c.empty() {
		return &Calendar{Raw: body}
	}
	return &c
}

func (c *Calendar) empty() bool {
	return c.Title == "" && len(c.Monthly.Events) == 0 &&
		c.Weekly.WeekRange == "" && c.Daily.Date == ""
}

// Parsed reports whether the body decoded as a structured calendar.
func (c *Calendar) Parsed() bool {
	return c.Raw == ""
}

func (e Event) String() string {
	if e.Relevance != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Title, e.Relevance, e.Description)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Description)
}
