package store

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/lqt0707/monitor/internal/model"
)

// SourceArchiveRepo persists SourceCodeVersion metadata (the archive
// bytes themselves live in the blob store, see blob.go).
type SourceArchiveRepo interface {
	PutVersion(ctx context.Context, v *model.SourceCodeVersion) error
	GetVersion(ctx context.Context, projectID, version string) (*model.SourceCodeVersion, error)
	GetActive(ctx context.Context, projectID string) (*model.SourceCodeVersion, error)
}

func sourceCodeKey(projectID, version string) []byte {
	return []byte(projectID + "\x00" + version)
}

// PutVersion writes v, and if v.IsActive clears the flag on every other
// version of the same project so at most one stays active.
func (d *DB) PutVersion(ctx context.Context, v *model.SourceCodeVersion) error {
	err := d.bolt.Update(func(tx *bolt.Tx) error {
		if v.IsActive {
			prefix := []byte(v.ProjectID + "\x00")
			c := tx.Bucket(bucketSourceCode).Cursor()
			for k, val := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, val = c.Next() {
				var other model.SourceCodeVersion
				if err := unmarshalInto(val, &other); err != nil {
					return err
				}
				if other.Version != v.Version && other.IsActive {
					other.IsActive = false
					if err := putJSON(tx, bucketSourceCode, k, &other); err != nil {
						return err
					}
				}
			}
		}
		return putJSON(tx, bucketSourceCode, sourceCodeKey(v.ProjectID, v.Version), v)
	})
	if err != nil {
		return fmt.Errorf("put source code version: %w", err)
	}
	return nil
}

func (d *DB) GetVersion(ctx context.Context, projectID, version string) (*model.SourceCodeVersion, error) {
	var v model.SourceCodeVersion
	var found bool
	err := d.bolt.View(func(tx *bolt.Tx) error {
		var err error
		found, err = getJSON(tx, bucketSourceCode, sourceCodeKey(projectID, version), &v)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get source code version: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &v, nil
}

func (d *DB) GetActive(ctx context.Context, projectID string) (*model.SourceCodeVersion, error) {
	var found *model.SourceCodeVersion
	prefix := []byte(projectID + "\x00")
	err := d.bolt.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSourceCode).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var sv model.SourceCodeVersion
			if err := unmarshalInto(v, &sv); err != nil {
				return err
			}
			if sv.IsActive {
				found = &sv
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get active source code version: %w", err)
	}
	return found, nil
}
