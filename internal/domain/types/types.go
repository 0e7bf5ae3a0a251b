// Package types contains read shapes shared between the driver and the HTTP layer.
package types

// Stats is a point-in-time view of the driver loop.
type Stats struct {
	Name       string           `json:"name"`
	State      string           `json:"state"`
	Iterations map[string]int64 `json:"iterations"`
	LastTaskID string           `json:"last_task_id,omitempty"`
	LastPR     string           `json:"last_pr,omitempty"`
	LastError  string           `json:"last_error,omitempty"`
	LastEvent  int64            `json:"last_event_unix,omitempty"`
}

// ServiceStats wraps the driver view with service-level facts.
type ServiceStats struct {
	Started    bool   `json:"started"`
	Subject    string `json:"subject"`
	LedgerPath string `json:"ledger_path"`
	Policy     string `json:"on_error"`
	Seen       int64  `json:"dedupe_size"`
	Driver     Stats  `json:"driver"`
}
