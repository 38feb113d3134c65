package store

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/lqt0707/monitor/internal/model"
)

// AlertRuleRepo exposes the enabled rules for a project. Rule CRUD from
// the admin surface is out of scope; this repository only supports the
// read path the evaluator needs plus PutAlertRule for seeding/tests.
type AlertRuleRepo interface {
	ListEnabled(ctx context.Context, projectID string) ([]*model.AlertRule, error)
	PutAlertRule(ctx context.Context, rule *model.AlertRule) error
}

// AlertHistoryRepo is the append-only history of fired alerts.
type AlertHistoryRepo interface {
	Append(ctx context.Context, entry *model.AlertHistory) error
	HasFired(ctx context.Context, ruleID, errorHash string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status model.AlertHistoryStatus) error
}

func ruleKey(projectID, ruleID string) []byte {
	return []byte(projectID + "\x00" + ruleID)
}

func (d *DB) ListEnabled(ctx context.Context, projectID string) ([]*model.AlertRule, error) {
	var out []*model.AlertRule
	prefix := []byte(projectID + "\x00")
	err := d.bolt.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAlertRules).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var rule model.AlertRule
			if err := unmarshalInto(v, &rule); err != nil {
				return err
			}
			if rule.Enabled {
				out = append(out, &rule)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list enabled rules for %s: %w", projectID, err)
	}
	return out, nil
}

func (d *DB) PutAlertRule(ctx context.Context, rule *model.AlertRule) error {
	err := d.bolt.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketAlertRules, ruleKey(rule.ProjectID, rule.ID), rule)
	})
	if err != nil {
		return fmt.Errorf("put alert rule %s: %w", rule.ID, err)
	}
	return nil
}

// historyKey is sortable: ruleID/errorHash/id, so HasFired can prefix-scan
// cheaply for a given (rule, aggregation) pair.
func historyKey(ruleID, errorHash, id string) []byte {
	return []byte(ruleID + "\x00" + errorHash + "\x00" + id)
}

func (d *DB) Append(ctx context.Context, entry *model.AlertHistory) error {
	err := d.bolt.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketAlertHistory, historyKey(entry.RuleID, entry.ErrorHash, entry.ID), entry)
	})
	if err != nil {
		return fmt.Errorf("append alert history: %w", err)
	}
	return nil
}

func (d *DB) HasFired(ctx context.Context, ruleID, errorHash string) (bool, error) {
	prefix := []byte(ruleID + "\x00" + errorHash + "\x00")
	fired := false
	err := d.bolt.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAlertHistory).Cursor()
		k, _ := c.Seek(prefix)
		fired = k != nil && hasPrefix(k, prefix)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("has fired: %w", err)
	}
	return fired, nil
}

func (d *DB) UpdateStatus(ctx context.Context, id string, status model.AlertHistoryStatus) error {
	err := d.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAlertHistory)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var entry model.AlertHistory
			if err := unmarshalInto(v, &entry); err != nil {
				return err
			}
			if entry.ID == id {
				entry.Status = status
				return putJSON(tx, bucketAlertHistory, k, &entry)
			}
		}
		return fmt.Errorf("alert history entry %s not found", id)
	})
	if err != nil {
		return fmt.Errorf("update alert history status: %w", err)
	}
	return nil
}
