// Package tools provides the auxiliary functions the model may call during
// report generation: live stock quotes and recent headlines.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	finnhub "github.com/Finnhub-Stock-API/finnhub-go/v2"

	"marketcal/internal/gateway"
)

type quoteArgs struct {
	Symbol string `json:"symbol"`
}

type quotePayload struct {
	Symbol        string  `json:"symbol"`
	Current       float32 `json:"current"`
	Change        float32 `json:"change"`
	PercentChange float32 `json:"percent_change"`
	High          float32 `json:"high"`
	Low           float32 `json:"low"`
	Open          float32 `json:"open"`
	PrevClose     float32 `json:"previous_close"`
}

// QuoteClient wraps the Finnhub quote endpoint.
type QuoteClient struct {
	api *finnhub.DefaultApiService
}

func NewQuoteClient(apiKey string) *QuoteClient {
	cfg := finnhub.NewConfiguration()
	cfg.AddDefaultHeader("X-Finnhub-Token", apiKey)
	return &QuoteClient{api: finnhub.NewAPIClient(cfg).DefaultApi}
}

// Tool returns the stock_quote tool definition backed by this client.
func (c *QuoteClient) Tool() gateway.Tool {
	return gateway.Tool{
		Name:        "stock_quote",
		Description: "Get the latest quote for a stock symbol: current price, daily change, high, low, open, and previous close.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"symbol": map[string]interface{}{
					"type":        "string",
					"description": "The stock ticker symbol, e.g. AAPL",
				},
			},
			"required": []string{"symbol"},
		},
		Handler:     c.handle,
		EmptyResult: quoteIsEmpty,
	}
}

func (c *QuoteClient) handle(ctx context.Context, args json.RawMessage) (string, error) {
	var a quoteArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("parsing quote arguments: %w", err)
	}
	symbol := strings.ToUpper(strings.TrimSpace(a.Symbol))
	if symbol == "" {
		return "", fmt.Errorf("missing symbol")
	}

	quote, _, err := c.api.Quote(ctx).Symbol(symbol).Execute()
	if err != nil {
		return "", fmt.Errorf("fetching quote for %s: %w", symbol, err)
	}

	payload := quotePayload{Symbol: symbol}
	if quote.C != nil {
		payload.Current = *quote.C
	}
	if quote.D != nil {
		payload.Change = *quote.D
	}
	if quote.Dp != nil {
		payload.PercentChange = *quote.Dp
	}
	if quote.H != nil {
		payload.High = *quote.H
	}
	if quote.L != nil {
		payload.Low = *quote.L
	}
	if quote.O != nil {
		payload.Open = *quote.O
	}
	if quote.Pc != nil {
		payload.PrevClose = *quote.Pc
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("serializing quote for %s: %w", symbol, err)
	}
	return string(b), nil
}

// quoteIsEmpty reports whether a serialized quote carries no price data.
// Finnhub returns all-zero quotes for unknown symbols.
func quoteIsEmpty(result string) bool {
	var p quotePayload
	if err := json.Unmarshal([]byte(result), &p); err != nil {
		return false
	}
	return p.Current == 0 && p.PrevClose == 0 && p.High == 0 && p.Low == 0
}
