// Package keyword builds the deduplicated set of work items for a pipeline
// run: a fixed list of market keywords plus keywords derived from the
// user's portfolio holdings.
package keyword

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Category string

const (
	CategoryMarket    Category = "market"
	CategoryPortfolio Category = "portfolio"
)

// Item is one unit of work: a keyword to research under a category.
type Item struct {
	Category Category
	Keyword  string
}

// Cadence tags group the market keywords by how often the underlying events
// move; they are metadata only — the pipeline treats every market keyword
// uniformly per run.
var marketKeywords = []struct {
	cadence  string
	keywords []string
}{
	{"daily", []string{
		"Fed monetary policy news",
		"European Central Bank (ECB) monetary policy news",
		"breaking press conference news",
		"geopolitical news",
		"regulatory changes news",
		"financial news",
		"market volatility update",
		"interest rate update",
		"quantitative easing news",
		"US political uncertainty news",
		"tariff news",
		"trade dispute news",
		"war updates",
		"M&A deals",
		"major companies product launches news",
		"stock split announcements",
		"US election news",
		"terrorist economy news",
		"US sanctions news",
	}},
	{"weekly", []string{
		"FOMC meetings calendar",
		"central bank meetings calendar",
		"weekly financial market data",
		"initial jobless claims latest",
		"options expiration this week",
		"nonfarm payrolls latest",
		"economic data releases schedule",
		"unemployment rate US latest",
		"Consumer Price Index (CPI) latest",
		"industrial production update",
		"Personal Consumption Expenditures (PCE) update",
		"US manufacturing data",
		"China manufacturing data",
		"US retail sales data",
		"US housing starts data",
		"US consumer confidence index",
		"US stock market dividend announcements news",
	}},
	{"monthly", []string{
		"earnings event calendar",
		"quarterly reports schedule US stock market",
		"US GDP update",
		"monetary policy announcements",
		"BoJ monetary policy news",
	}},
}

// Static returns the fixed market keyword list in declaration order.
func Static() []Item {
	var items []Item
	for _, group := range marketKeywords {
		for _, kw := range group.keywords {
			items = append(items, Item{Category: CategoryMarket, Keyword: kw})
		}
	}
	return items
}

// Holding is one portfolio position as stored in the portfolio file.
type Holding struct {
	Security string `json:"security"`
	Ticker   string `json:"ticker"`
}

// Portfolio derives earnings-research keywords from the holdings file.
// A missing or unreadable file yields an empty list, not an error; malformed
// holdings are skipped.
func Portfolio(path string, now time.Time) []Item {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("portfolio file unreadable, skipping portfolio keywords",
			"path", path, "error", err)
		return nil
	}

	var holdings []Holding
	if err := json.Unmarshal(data, &holdings); err != nil {
		slog.Warn("portfolio file is not valid JSON, skipping portfolio keywords",
			"path", path, "error", err)
		return nil
	}

	var items []Item
	for _, h := range holdings {
		if h.Security == "" || h.Ticker == "" {
			slog.Warn("skipping holding with missing security or ticker",
				"security", h.Security, "ticker", h.Ticker)
			continue
		}
		q, year := earningsQuarter(h.Ticker, now)
		items = append(items, Item{
			Category: CategoryPortfolio,
			Keyword:  fmt.Sprintf("%s earnings Q%d FY%d", h.Security, q, year),
		})
	}
	return items
}

// earningsQuarter maps the run date to the quarter a holding's next
// interesting earnings report covers. BDR tickers (marker "34") trail the
// underlying by two quarters, so the target shifts forward; ordinary
// tickers report on the previous quarter.
func earningsQuarter(ticker string, now time.Time) (quarter, year int) {
	quarter = (int(now.Month())-1)/3 + 1
	year = now.Year()

	if strings.Contains(strings.ToLower(ticker), "34") {
		quarter += 2
		if quarter > 4 {
			quarter -= 4
			year++
		}
	} else {
		quarter--
		if quarter < 1 {
			quarter = 4
			year--
		}
	}
	return quarter, year
}

// Dedupe removes duplicate work items, keyed by (category, keyword).
// First occurrence wins.
func Dedupe(items []Item) []Item {
	seen := make(map[Item]bool, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if seen[it] {
			slog.Debug("skipping duplicate keyword", "category", it.Category, "keyword", it.Keyword)
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
