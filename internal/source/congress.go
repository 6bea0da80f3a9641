package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rnovak/newswatch/internal/config"
)

const defaultCongressBaseURL = "https://api.congress.gov/v3"

type congressBillList struct {
	Bills []struct {
		Number       string `json:"number"`
		Title        string `json:"title"`
		Congress     int    `json:"congress"`
		Type         string `json:"type"`
		URL          string `json:"url"`
		LatestAction struct {
			ActionDate string `json:"actionDate"`
			Text       string `json:"text"`
		} `json:"latestAction"`
	} `json:"bills"`
}

// NewCongressFetch builds the legislative-data fetch function: bills ordered
// by latest action. Requires an API key; without one the source is not
// configured.
func NewCongressFetch(cfg config.LegislativeConfig) FetchFunc {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultCongressBaseURL
	}
	client := &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}

	return func(ctx context.Context) ([]Candidate, error) {
		url := fmt.Sprintf("%s/bill?format=json&limit=20&api_key=%s", baseURL, cfg.APIKey)
		var list congressBillList
		if err := getJSON(ctx, client, url, &list); err != nil {
			return nil, fmt.Errorf("congress fetch: %w", err)
		}

		candidates := make([]Candidate, 0, len(list.Bills))
		for _, bill := range list.Bills {
			actionDate, err := time.ParseInLocation("2006-01-02", bill.LatestAction.ActionDate, time.Local)
			if err != nil {
				// Leave the zero time; the recency stage discards it.
				actionDate = time.Time{}
			}
			id := fmt.Sprintf("%d-%s-%s", bill.Congress, strings.ToLower(bill.Type), bill.Number)
			link := fmt.Sprintf("https://www.congress.gov/bill/%dth-congress/%s/%s",
				bill.Congress, billTypeSlug(bill.Type), bill.Number)
			candidates = append(candidates, Candidate{
				ID:          id,
				Title:       bill.Title,
				URL:         link,
				Description: bill.LatestAction.Text,
				PublishedAt: actionDate,
				Raw:         bill,
			})
		}
		return candidates, nil
	}
}

func billTypeSlug(billType string) string {
	switch strings.ToUpper(billType) {
	case "S":
		return "senate-bill"
	case "HR":
		return "house-bill"
	case "SRES":
		return "senate-resolution"
	case "HRES":
		return "house-resolution"
	case "SJRES":
		return "senate-joint-resolution"
	case "HJRES":
		return "house-joint-resolution"
	default:
		return "bill"
	}
}
