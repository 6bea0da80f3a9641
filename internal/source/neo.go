package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rnovak/newswatch/internal/config"
)

const defaultNeoBaseURL = "https://api.nasa.gov/neo/rest/v1"

type neoFeed struct {
	NearEarthObjects map[string][]neoObject `json:"near_earth_objects"`
}

type neoObject struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	JPLURL            string `json:"nasa_jpl_url"`
	Hazardous         bool   `json:"is_potentially_hazardous_asteroid"`
	EstimatedDiameter struct {
		Meters struct {
			Min float64 `json:"estimated_diameter_min"`
			Max float64 `json:"estimated_diameter_max"`
		} `json:"meters"`
	} `json:"estimated_diameter"`
	CloseApproachData []struct {
		Date         string `json:"close_approach_date"`
		MissDistance struct {
			Kilometers string `json:"kilometers"`
		} `json:"miss_distance"`
		RelativeVelocity struct {
			KilometersPerHour string `json:"kilometers_per_hour"`
		} `json:"relative_velocity"`
	} `json:"close_approach_data"`
}

// NewNeoFetch builds the near-Earth-object fetch function: today's close
// approaches from the NeoWs feed. Requires an API key. This is the source
// the daily request ceiling protects.
func NewNeoFetch(cfg config.NeoConfig) FetchFunc {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultNeoBaseURL
	}
	client := &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}

	return func(ctx context.Context) ([]Candidate, error) {
		today := time.Now().Format("2006-01-02")
		url := fmt.Sprintf("%s/feed?start_date=%s&end_date=%s&api_key=%s", baseURL, today, today, cfg.APIKey)
		var feed neoFeed
		if err := getJSON(ctx, client, url, &feed); err != nil {
			return nil, fmt.Errorf("neo fetch: %w", err)
		}

		var candidates []Candidate
		for _, objects := range feed.NearEarthObjects {
			for _, obj := range objects {
				c := Candidate{
					ID:          obj.ID,
					Title:       fmt.Sprintf("Near-Earth object %s approaching today", obj.Name),
					URL:         obj.JPLURL,
					Details:     describeNeo(obj),
					PublishedAt: time.Now(),
					Raw:         obj,
				}
				if len(obj.CloseApproachData) > 0 {
					if approach, err := time.ParseInLocation("2006-01-02", obj.CloseApproachData[0].Date, time.Local); err == nil {
						c.PublishedAt = approach
					}
				}
				candidates = append(candidates, c)
			}
		}
		return candidates, nil
	}
}

func describeNeo(obj neoObject) string {
	details := fmt.Sprintf("Estimated diameter %.0f-%.0f m",
		obj.EstimatedDiameter.Meters.Min, obj.EstimatedDiameter.Meters.Max)
	if len(obj.CloseApproachData) > 0 {
		approach := obj.CloseApproachData[0]
		details += fmt.Sprintf(", miss distance %s km at %s km/h",
			approach.MissDistance.Kilometers, approach.RelativeVelocity.KilometersPerHour)
	}
	if obj.Hazardous {
		details += ". Classified potentially hazardous"
	}
	return details
}
