package models

import "time"

// SyncStats aggregates record counts by sync status
type SyncStats struct {
	Total              int `json:"total"`
	Pending            int `json:"pending"`
	Synced             int `json:"synced"`
	Failed             int `json:"failed"`
	DeletedPendingSync int `json:"deletedPendingSync"`
}

// Add applies a delta for one record entering (+1) or leaving (-1) a status
func (s *SyncStats) Add(status SyncStatus, delta int) {
	switch status {
	case StatusPending:
		s.Pending += delta
	case StatusSynced:
		s.Synced += delta
	case StatusFailed:
		s.Failed += delta
	case StatusDeletedPendingSync:
		s.DeletedPendingSync += delta
	}
}

// SkipReason explains why a sync pass did no work
type SkipReason string

const (
	SkipAlreadyRunning SkipReason = "already_running"
	SkipOffline        SkipReason = "offline"
	SkipCancelled      SkipReason = "cancelled"
	SkipNoTarget       SkipReason = "no_remote_target"
)

// SyncResult summarizes one sync pass
type SyncResult struct {
	TotalPending int           `json:"totalPending"`
	Synced       int           `json:"synced"`
	Failed       int           `json:"failed"`
	Deleted      int           `json:"deleted"`
	DeleteFailed int           `json:"deleteFailed"`
	Requeued     int           `json:"requeued"`
	Skipped      bool          `json:"skipped"`
	SkipReason   SkipReason    `json:"skipReason,omitempty"`
	Error        string        `json:"error,omitempty"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
}

// SkippedResult is the zero-effect result of a pass that did not run
func SkippedResult(reason SkipReason) SyncResult {
	return SyncResult{Skipped: true, SkipReason: reason, StartedAt: time.Now().UTC()}
}

// Connection types reported by the network monitor
const (
	ConnectionWiFi     = "wifi"
	ConnectionCellular = "cellular"
	ConnectionNone     = "none"
	ConnectionUnknown  = "unknown"
)

// NetworkStatus is the last known connectivity snapshot
type NetworkStatus struct {
	Connected      bool      `json:"connected"`
	ConnectionType string    `json:"connectionType"`
	CheckedAt      time.Time `json:"checkedAt"`
}
