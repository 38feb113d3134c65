package store

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/lqt0707/monitor/internal/model"
)

// RawEventSink is the append-only record of every accepted report, kept
// independently of aggregation so a bad aggregation run can be replayed.
type RawEventSink interface {
	Append(ctx context.Context, event *model.RawEvent) error
}

// rawEventKey is RFC3339Nano-prefixed so a bucket scan visits events in
// arrival order; the content hash suffix breaks ties within the same tick.
func rawEventKey(event *model.RawEvent) []byte {
	ts := event.ReceivedAt.UTC().Format(time.RFC3339Nano)
	suffix := contentKey(event.ProjectID, event.Report.ErrorMessage, event.Report.RequestURL, ts)
	return []byte(ts + "\x00" + suffix)
}

func (d *DB) Append(ctx context.Context, event *model.RawEvent) error {
	err := d.bolt.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketRawEvents, rawEventKey(event), event)
	})
	if err != nil {
		return fmt.Errorf("append raw event: %w", err)
	}
	return nil
}
