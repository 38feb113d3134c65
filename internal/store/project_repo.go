package store

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/lqt0707/monitor/internal/model"
)

// ProjectConfigRepo is the read-mostly project configuration repository.
type ProjectConfigRepo interface {
	GetByID(ctx context.Context, projectID string) (*model.ProjectConfig, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*model.ProjectConfig, error)
	Put(ctx context.Context, cfg *model.ProjectConfig) error
}

func (d *DB) GetByID(ctx context.Context, projectID string) (*model.ProjectConfig, error) {
	var cfg model.ProjectConfig
	var found bool
	err := d.bolt.View(func(tx *bolt.Tx) error {
		var err error
		found, err = getJSON(tx, bucketProjects, []byte(projectID), &cfg)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", projectID, err)
	}
	if !found {
		return nil, nil
	}
	return &cfg, nil
}

func (d *DB) GetByAPIKey(ctx context.Context, apiKey string) (*model.ProjectConfig, error) {
	var found *model.ProjectConfig
	err := d.bolt.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketProjects).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var cfg model.ProjectConfig
			if err := unmarshalInto(v, &cfg); err != nil {
				return err
			}
			if cfg.APIKey == apiKey {
				found = &cfg
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get project by api key: %w", err)
	}
	return found, nil
}

func (d *DB) Put(ctx context.Context, cfg *model.ProjectConfig) error {
	err := d.bolt.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketProjects, []byte(cfg.ProjectID), cfg)
	})
	if err != nil {
		return fmt.Errorf("put project %s: %w", cfg.ProjectID, err)
	}
	return nil
}
