package source

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rnovak/newswatch/internal/config"
)

const defaultMarketBaseURL = "https://finnhub.io/api/v1"

type marketArticle struct {
	ID       int64  `json:"id"`
	Category string `json:"category"`
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// NewMarketFetch builds the market-news fetch function against a
// Finnhub-style general news endpoint. Requires an API token.
func NewMarketFetch(cfg config.MarketConfig) FetchFunc {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultMarketBaseURL
	}
	category := cfg.Category
	if category == "" {
		category = "general"
	}
	client := &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}

	return func(ctx context.Context) ([]Candidate, error) {
		url := fmt.Sprintf("%s/news?category=%s&token=%s", baseURL, category, cfg.APIKey)
		var articles []marketArticle
		if err := getJSON(ctx, client, url, &articles); err != nil {
			return nil, fmt.Errorf("market fetch: %w", err)
		}

		candidates := make([]Candidate, 0, len(articles))
		for _, art := range articles {
			candidates = append(candidates, Candidate{
				ID:          strconv.FormatInt(art.ID, 10),
				Title:       art.Headline,
				URL:         art.URL,
				Description: art.Summary,
				PublishedAt: time.Unix(art.Datetime, 0),
				Raw:         art,
			})
		}
		return candidates, nil
	}
}
