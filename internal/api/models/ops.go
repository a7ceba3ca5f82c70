package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Readiness reports whether every view can be served.
type Readiness struct {
	Status  HealthStatus `json:"status"`
	Time    Timestamp    `json:"time"`
	Pending []string     `json:"pending,omitempty"`
}

// SystemStatus represents the overall system status.
type SystemStatus struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Sources []SourceStatus `json:"sources"`
}

// SourceStatus represents the refresh status of one data source.
type SourceStatus struct {
	Source              string       `json:"source"`
	Kind                string       `json:"kind"`
	Status              HealthStatus `json:"status"`
	Ready               bool         `json:"ready"`
	Stale               bool         `json:"stale"`
	IntervalSeconds     float64      `json:"intervalSeconds"`
	AgeSeconds          float64      `json:"ageSeconds"`
	LastUpdated         *Timestamp   `json:"lastUpdated,omitempty"`
	LastAttemptAt       *Timestamp   `json:"lastAttemptAt,omitempty"`
	LastError           *string      `json:"lastError,omitempty"`
	LastErrorAt         *Timestamp   `json:"lastErrorAt,omitempty"`
	Refreshes           int64        `json:"refreshes"`
	Failures            int64        `json:"failures"`
	LastDurationSeconds float64      `json:"lastDurationSeconds"`
}

// RefreshAccepted is returned when a refresh has been queued.
type RefreshAccepted struct {
	Source string `json:"source"`
	Status string `json:"status"`
}
