package store

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/lqt0707/monitor/internal/model"
)

// GetAggregation implements aggregation.Repository.
func (d *DB) GetAggregation(ctx context.Context, projectID, errorHash string) (*model.ErrorAggregation, error) {
	var agg model.ErrorAggregation
	var found bool
	err := d.bolt.View(func(tx *bolt.Tx) error {
		var err error
		found, err = getJSON(tx, bucketAggregations, aggregationKey(projectID, errorHash), &agg)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get aggregation: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &agg, nil
}

// PutAggregation implements aggregation.Repository.
func (d *DB) PutAggregation(ctx context.Context, agg *model.ErrorAggregation) error {
	err := d.bolt.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketAggregations, aggregationKey(agg.ProjectID, agg.ErrorHash), agg)
	})
	if err != nil {
		return fmt.Errorf("put aggregation: %w", err)
	}
	return nil
}

// ListAggregations implements aggregation.Repository.
func (d *DB) ListAggregations(ctx context.Context, projectID string) ([]*model.ErrorAggregation, error) {
	var out []*model.ErrorAggregation
	prefix := []byte(projectID + "\x00")
	err := d.bolt.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAggregations).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var agg model.ErrorAggregation
			if err := unmarshalInto(v, &agg); err != nil {
				return err
			}
			out = append(out, &agg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list aggregations for %s: %w", projectID, err)
	}
	return out, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
