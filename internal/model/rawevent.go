package model

import "time"

// RawEvent is the unprocessed ingestion record persisted before
// aggregation runs, so malformed or dropped events can be replayed.
type RawEvent struct {
	ProjectID  string    `json:"projectId"`
	ReceivedAt time.Time `json:"receivedAt"`
	Report     ReportDTO `json:"report"`
}
