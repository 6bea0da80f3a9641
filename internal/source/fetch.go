package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const userAgent = "newswatch/1.0"

// getJSON performs one GET and decodes the JSON body. 402/403/429 are
// surfaced as QuotaError so callers can tell auth/quota trouble from
// transient failures.
func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusPaymentRequired, http.StatusForbidden, http.StatusTooManyRequests:
		return &QuotaError{Status: resp.StatusCode, Body: truncateBody(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, truncateBody(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// QuotaError marks an auth or rate-limit refusal from a source API. It does
// not count against daily request quotas.
type QuotaError struct {
	Status int
	Body   string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota/auth refusal http %d: %s", e.Status, e.Body)
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
