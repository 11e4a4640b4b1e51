package domain

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status      string          `json:"status"` // healthy, degraded, unhealthy
	Services    []ServiceHealth `json:"services"`
	ActiveFlows int             `json:"activeFlows"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	Detail      string `json:"detail,omitempty"`
	LastChecked string `json:"lastChecked"`
}
