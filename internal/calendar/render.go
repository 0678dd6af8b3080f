package calendar

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorPrimary = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	colorDim     = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#F25D94", Dark: "#F25D94"}
	colorGreen   = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#25D366"}
	colorBody    = lipgloss.AdaptiveColor{Light: "#3D3D3D", Dark: "#ABABAB"}

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			MarginBottom(1)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			MarginTop(1)

	dateStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGreen)

	eventTitleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary)

	relevanceStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Italic(true)

	bodyStyle = lipgloss.NewStyle().
			Foreground(colorBody).
			PaddingLeft(2)
)

// Render formats a calendar for terminal display. Unparsed calendars are
// shown verbatim.
func Render(c *Calendar) string {
	if !c.Parsed() {
		return c.Raw
	}

	var b strings.Builder
	if c.Title != "" {
		b.WriteString(titleStyle.Render(c.Title) + "\n")
	}

	if c.Daily.Date != "" {
		b.WriteString(sectionStyle.Render("Today — "+c.Daily.Date) + "\n")
		writeEvents(&b, c.Daily.TodaysKeyEvents)
		if c.Daily.NextDayPreview.Description != "" {
			b.WriteString(sectionStyle.Render("Tomorrow — "+c.Daily.NextDayPreview.Date) + "\n")
			b.WriteString(bodyStyle.Render(c.Daily.NextDayPreview.Description) + "\n")
		}
	}

	if c.Weekly.WeekRange != "" {
		b.WriteString(sectionStyle.Render("Week of "+c.Weekly.WeekRange) + "\n")
		if c.Weekly.Description != "" {
			b.WriteString(bodyStyle.Render(c.Weekly.Description) + "\n")
		}
		writeEvents(&b, c.Weekly.UpcomingEvents)
	}

	if len(c.Monthly.Events) > 0 {
		b.WriteString(sectionStyle.Render("Monthly Calendar") + "\n")
		for _, day := range c.Monthly.Events {
			b.WriteString(dateStyle.Render(day.Date) + "\n")
			writeEvents(&b, day.Events)
		}
	}

	if len(c.MonthlyUpcomingEvents) > 0 {
		b.WriteString(sectionStyle.Render("Upcoming This Month") + "\n")
		writeEvents(&b, c.MonthlyUpcomingEvents)
	}

	if len(c.MonthlyPastSummary) > 0 {
		b.WriteString(sectionStyle.Render("Past Events Summary") + "\n")
		for _, s := range c.MonthlyPastSummary {
			b.WriteString(eventTitleStyle.Render(s.Category) + "\n")
			b.WriteString(bodyStyle.Render(s.Description) + "\n")
		}
	}

	return b.String()
}

func writeEvents(b *strings.Builder, events []Event) {
	for _, e := range events {
		line := eventTitleStyle.Render(e.Title)
		if e.Relevance != "" {
			line += " " + relevanceStyle.Render(fmt.Sprintf("(%s)", e.Relevance))
		}
		b.WriteString(line + "\n")
		if e.Description != "" {
			b.WriteString(bodyStyle.Render(e.Description) + "\n")
		}
	}
}
