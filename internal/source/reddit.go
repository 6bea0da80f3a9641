package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rnovak/newswatch/internal/config"
)

const defaultRedditBaseURL = "https://www.reddit.com"

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID         string  `json:"id"`
				Title      string  `json:"title"`
				URL        string  `json:"url"`
				Permalink  string  `json:"permalink"`
				Author     string  `json:"author"`
				Selftext   string  `json:"selftext"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// NewRedditFetch builds the social-aggregator fetch function: newest posts
// from one subreddit. No credentials required for the public listing.
func NewRedditFetch(cfg config.SocialConfig) FetchFunc {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultRedditBaseURL
	}
	client := &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}

	return func(ctx context.Context) ([]Candidate, error) {
		url := fmt.Sprintf("%s/r/%s/new.json?limit=25", baseURL, cfg.Subreddit)
		var listing redditListing
		if err := getJSON(ctx, client, url, &listing); err != nil {
			return nil, fmt.Errorf("reddit fetch: %w", err)
		}

		candidates := make([]Candidate, 0, len(listing.Data.Children))
		for _, child := range listing.Data.Children {
			post := child.Data
			link := post.URL
			if link == "" && post.Permalink != "" {
				link = defaultRedditBaseURL + post.Permalink
			}
			candidates = append(candidates, Candidate{
				ID:          post.ID,
				Title:       post.Title,
				URL:         link,
				Description: post.Selftext,
				Author:      post.Author,
				PublishedAt: time.Unix(int64(post.CreatedUTC), 0),
				Raw:         post,
			})
		}
		return candidates, nil
	}
}
