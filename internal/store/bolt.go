// Package store — bolt.go
//
// bbolt-backed repository implementations for ProjectConfig,
// ErrorAggregation, AlertRule, AlertHistory, and SourceCodeVersion, plus
// the append-only raw-event sink. One bucket per entity kind, JSON-encoded
// values, NUL-joined keys where an entity's natural key is composite; only
// raw-event keys carry a sha256 suffix.
//
// Schema: a "meta" bucket records schema_version on first open. The stored
// value is not compared against schemaVersion and no migration runs.

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const schemaVersion = "1"

var (
	bucketProjects     = []byte("projects")
	bucketAggregations = []byte("aggregations")
	bucketAlertRules   = []byte("alert_rules")
	bucketAlertHistory = []byte("alert_history")
	bucketSourceCode   = []byte("source_code_versions")
	bucketRawEvents    = []byte("raw_events")
	bucketMeta         = []byte("meta")
)

// DB wraps a bbolt database and the entity-specific repositories over it.
type DB struct {
	bolt *bolt.DB
}

// Open creates (if absent) and opens the database file at path, ensuring
// every bucket exists and writing the schema version if none is recorded.
func Open(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("open bbolt database %s: %w", path, err)
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{
			bucketProjects, bucketAggregations, bucketAlertRules,
			bucketAlertHistory, bucketSourceCode, bucketRawEvents, bucketMeta,
		} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get([]byte("schema_version")); v == nil {
			return meta.Put([]byte("schema_version"), []byte(schemaVersion))
		}
		return nil
	})
	if err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &DB{bolt: bdb}, nil
}

// Close closes the underlying database file.
func (d *DB) Close() error { return d.bolt.Close() }

// aggregationKey builds the composite key for (projectID, errorHash).
func aggregationKey(projectID, errorHash string) []byte {
	return []byte(projectID + "\x00" + errorHash)
}

// contentKey returns a sha256-hex key over parts; rawEventKey uses it as
// the tie-breaking suffix of a raw event's key.
func contentKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func putJSON(tx *bolt.Tx, bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return tx.Bucket(bucket).Put(key, data)
}

func getJSON(tx *bolt.Tx, bucket, key []byte, v interface{}) (bool, error) {
	data := tx.Bucket(bucket).Get(key)
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal: %w", err)
	}
	return true, nil
}
