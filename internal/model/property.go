package model

import "time"

// Property is the user's own property under analysis (the subject).
type Property struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	City      string    `json:"city,omitempty"`
	State     string    `json:"state,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusDiscovering JobStatus = "discovering"
	JobStatusResolved    JobStatus = "resolved"
	JobStatusFailed      JobStatus = "failed"
)

// ScrapeJob is one discovery run for a property. Its listings form the batch
// that subject resolution operates on.
type ScrapeJob struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	SearchURL  string    `json:"search_url"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
