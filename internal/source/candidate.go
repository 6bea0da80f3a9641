// Package source implements the fetch-and-filter side of the pipeline: one
// parameterized adapter runs a fixed filter pipeline over candidates pulled
// from a feed-specific fetch function.
package source

import "time"

// Candidate is a not-yet-accepted item fetched from a source. Transient;
// either accepted into delivery or discarded.
type Candidate struct {
	ID          string
	Title       string
	URL         string
	Description string
	Details     string
	Language    string // explicit source language tag, "" when absent
	Author      string
	PublishedAt time.Time
	Raw         any // source payload kept for rendering/debugging
}
