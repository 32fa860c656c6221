package apimodel

import "time"

// Status is the snapshot of the control loop exposed by GET /api/status.
type Status struct {
	Version      string     `json:"version"`
	Mode         string     `json:"mode"`
	Screen       string     `json:"screen"`
	Current      string     `json:"current,omitempty"`
	Images       int        `json:"images"`
	NextRotation *time.Time `json:"next_rotation,omitempty"`
	NextRefresh  *time.Time `json:"next_refresh,omitempty"`
	Failures     int        `json:"failures"`
	Restarts     int        `json:"restarts"`
	LastError    string     `json:"last_error,omitempty"`
}
