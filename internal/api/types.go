package api

import "github.com/mattjoyce/herald/internal/audit"

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Delivered     uint64 `json:"delivered"`
	Rejected      uint64 `json:"rejected"`
	Listeners     int    `json:"listeners"`
}

// AuditRecentResponse is returned by GET /audit/recent.
type AuditRecentResponse struct {
	Records []audit.Record `json:"records"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}
