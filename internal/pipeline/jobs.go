// Package pipeline wires the ingestion stages (error-processing,
// error-aggregation, sourcemap-processing, email-notification, optional
// ai-diagnosis) into one Processor whose methods are installed as
// queue.Pool handlers by cmd/monitor-server.
package pipeline

import (
	"time"

	"github.com/lqt0707/monitor/internal/model"
)

// ReportJob is the error-processing queue's job: one normalized report
// record, already authenticated against its project.
type ReportJob struct {
	ProjectID  string
	Report     model.ReportDTO
	ReceivedAt time.Time
}

// SourcemapJob is the sourcemap-processing queue's job: resolve one
// minified (file, line, col) position and fold it into the aggregation
// it belongs to.
type SourcemapJob struct {
	ProjectID string
	ErrorHash string
	File      string
	Line      int
	Col       int
}
