// Package pipeline orchestrates a full research run: collect keyword
// summaries concurrently, consolidate them into an analysis, and turn the
// analysis into a calendar. Later stages are gated on the earlier ones.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"marketcal/internal/gateway"
	"marketcal/internal/keyword"
	"marketcal/internal/prompt"
	"marketcal/internal/store"
)

// Generator runs one logical model call.
type Generator interface {
	Generate(ctx context.Context, spec gateway.CallSpec) gateway.Result
}

// SummaryCache is the TTL cache for keyword summaries. A nil SummaryCache
// disables caching; every keyword is generated fresh.
type SummaryCache interface {
	Check(category, keyword string) (string, bool)
	Update(category, keyword, summary string) error
}

// Archive is the append-only per-user result store.
type Archive interface {
	AddSummary(userID int64, subtype, keyword, body string) (int64, error)
	AddCalendar(userID int64, body string) (int64, error)
	SummaryByDate(userID int64, subtype string, day time.Time) (*store.Summary, error)
	CalendarByDate(userID int64, day time.Time) (*store.Calendar, error)
}

// AnalysisSubtype tags the consolidated stage-two summary in the archive.
// Individual keyword reports are stored under their item category.
const (
	AnalysisSubtype = "analysis"
	AnalysisKeyword = "aggregate"
)

// Options tune a pipeline run.
type Options struct {
	MaxToolIterations int
	CallTimeout       time.Duration
	AnalyzeTimeout    time.Duration
	CalendarTimeout   time.Duration
	// Force skips the summary cache and same-date reuse.
	Force bool
	// Now is the run clock; nil means time.Now.
	Now func() time.Time
}

// RunStats summarizes what a run did.
type RunStats struct {
	Attempted   int
	CacheHits   int
	Generated   int
	Failed      int
	AnalyzeRan  bool
	AnalyzeOK   bool
	CalendarRan bool
	CalendarOK  bool
	SkipReason  string
	Duration    time.Duration
}

// Outcome is the result of a full run.
type Outcome struct {
	Stats    RunStats
	Calendar string
}

type Pipeline struct {
	gen     Generator
	cache   SummaryCache
	archive Archive
	opts    Options
}

func New(gen Generator, cache SummaryCache, archive Archive, opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{gen: gen, cache: cache, archive: archive, opts: opts}
}

type collected struct {
	item keyword.Item
	body string
	hit  bool
}

// Run executes the three stages for the given user and work items.
// Individual keyword failures are tolerated; the run only errors when the
// archive cannot be written.
func (p *Pipeline) Run(ctx context.Context, userID int64, items []keyword.Item) (*Outcome, error) {
	start := p.opts.Now()
	outcome := &Outcome{}
	outcome.Stats.Attempted = len(items)

	summaries := p.collect(ctx, userID, items, &outcome.Stats)
	if len(summaries) == 0 {
		outcome.Stats.SkipReason = "no summaries collected"
		outcome.Stats.Duration = p.opts.Now().Sub(start)
		p.logStats(outcome.Stats)
		return outcome, nil
	}

	analysis, err := p.analyze(ctx, userID, summaries, &outcome.Stats)
	if err != nil {
		return nil, err
	}
	if analysis == "" {
		outcome.Stats.Duration = p.opts.Now().Sub(start)
		p.logStats(outcome.Stats)
		return outcome, nil
	}

	calendar, err := p.calendar(ctx, userID, analysis, &outcome.Stats)
	if err != nil {
		return nil, err
	}
	outcome.Calendar = calendar

	outcome.Stats.Duration = p.opts.Now().Sub(start)
	p.logStats(outcome.Stats)
	return outcome, nil
}

// collect gathers a summary per work item, serving from cache where
// possible. All items run concurrently; the gateway bounds model calls.
func (p *Pipeline) collect(ctx context.Context, userID int64, items []keyword.Item, stats *RunStats) []string {
	var (
		mu      sync.Mutex
		results []collected
		wg      sync.WaitGroup
	)

	for _, it := range items {
		wg.Add(1)
		go func(it keyword.Item) {
			defer wg.Done()
			body, hit := p.summarize(ctx, it)
			if body == "" {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			results = append(results, collected{item: it, body: body, hit: hit})
		}(it)
	}
	wg.Wait()

	var bodies []string
	for _, r := range results {
		if r.hit {
			stats.CacheHits++
		} else {
			stats.Generated++
			if _, err := p.archive.AddSummary(userID, string(r.item.Category), r.item.Keyword, r.body); err != nil {
				slog.Warn("failed to archive summary", "keyword", r.item.Keyword, "error", err)
			}
		}
		bodies = append(bodies, r.body)
	}
	stats.Failed = stats.Attempted - len(results)
	return bodies
}

// summarize produces the summary for one work item, returning the body and
// whether it came from cache. An empty body means the item failed.
func (p *Pipeline) summarize(ctx context.Context, it keyword.Item) (string, bool) {
	if p.cache != nil && !p.opts.Force {
		if body, ok := p.cache.Check(string(it.Category), it.Keyword); ok {
			slog.Info("cache hit", "category", it.Category, "keyword", it.Keyword)
			return body, true
		}
	}

	var system string
	switch it.Category {
	case keyword.CategoryPortfolio:
		system = prompt.Portfolio(it.Keyword, p.opts.Now())
	default:
		system = prompt.Market(it.Keyword, p.opts.Now())
	}

	res := p.gen.Generate(ctx, gateway.CallSpec{
		System:            system,
		User:              prompt.User(it.Keyword),
		MaxToolIterations: p.opts.MaxToolIterations,
		Timeout:           p.opts.CallTimeout,
	})
	if !res.OK() {
		slog.Error("keyword summary failed",
			"category", it.Category, "keyword", it.Keyword,
			"reason", res.Reason, "detail", res.Message)
		return "", false
	}

	if p.cache != nil {
		if err := p.cache.Update(string(it.Category), it.Keyword, res.Text); err != nil {
			slog.Warn("failed to cache summary", "keyword", it.Keyword, "error", err)
		}
	}
	return res.Text, false
}

// analyze consolidates the collected summaries. A same-day analysis is
// reused unless the run is forced. Returns empty text when the stage fails,
// which gates the calendar stage off.
func (p *Pipeline) analyze(ctx context.Context, userID int64, summaries []string, stats *RunStats) (string, error) {
	now := p.opts.Now()
	if !p.opts.Force {
		existing, err := p.archive.SummaryByDate(userID, AnalysisSubtype, now)
		if err == nil {
			slog.Info("reusing analysis from earlier today", "summary_id", existing.ID)
			stats.AnalyzeOK = true
			return existing.Body, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
	}

	stats.AnalyzeRan = true
	res := p.gen.Generate(ctx, gateway.CallSpec{
		System:  prompt.Analyze(now),
		User:    strings.Join(summaries, "\n---\n"),
		Timeout: p.opts.AnalyzeTimeout,
	})
	if !res.OK() {
		slog.Error("analysis failed", "reason", res.Reason, "detail", res.Message)
		stats.SkipReason = "analysis failed"
		return "", nil
	}

	if _, err := p.archive.AddSummary(userID, AnalysisSubtype, AnalysisKeyword, res.Text); err != nil {
		return "", err
	}
	stats.AnalyzeOK = true
	return res.Text, nil
}

// calendar turns the analysis into the tiered calendar document. A same-day
// calendar is reused unless the run is forced.
func (p *Pipeline) calendar(ctx context.Context, userID int64, analysis string, stats *RunStats) (string, error) {
	now := p.opts.Now()
	if !p.opts.Force {
		existing, err := p.archive.CalendarByDate(userID, now)
		if err == nil {
			slog.Info("reusing calendar from earlier today", "calendar_id", existing.ID)
			stats.CalendarOK = true
			return existing.Body, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
	}

	stats.CalendarRan = true
	res := p.gen.Generate(ctx, gateway.CallSpec{
		System:  prompt.Calendar(now),
		User:    analysis,
		Timeout: p.opts.CalendarTimeout,
	})
	if !res.OK() {
		slog.Error("calendar generation failed", "reason", res.Reason, "detail", res.Message)
		stats.SkipReason = "calendar generation failed"
		return "", nil
	}

	if _, err := p.archive.AddCalendar(userID, res.Text); err != nil {
		return "", err
	}
	stats.CalendarOK = true
	return res.Text, nil
}

func (p *Pipeline) logStats(s RunStats) {
	slog.Info("run complete",
		"attempted", s.Attempted,
		"cache_hits", s.CacheHits,
		"generated", s.Generated,
		"failed", s.Failed,
		"analyze_ok", s.AnalyzeOK,
		"calendar_ok", s.CalendarOK,
		"skip_reason", s.SkipReason,
		"duration", s.Duration.Round(time.Millisecond),
	)
}
