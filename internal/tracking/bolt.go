package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const runsBucket = "runs"

// BoltTracker stores runs in a local BoltDB file. Keys are
// "starttime_id" so a cursor walks runs in start order.
type BoltTracker struct {
	db *bbolt.DB
}

// NewBolt opens or creates the run store at path.
func NewBolt(path string) (*BoltTracker, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create tracking dir: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open tracking database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltTracker{db: db}, nil
}

// Close closes the database.
func (b *BoltTracker) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// LogRun stores run, assigning an ID when it has none.
func (b *BoltTracker) LogRun(ctx context.Context, run Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(runsBucket))

		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}

		key := fmt.Sprintf("%020d_%s", run.StartTime.UnixNano(), run.ID)
		return bucket.Put([]byte(key), data)
	})
}

// ListRuns returns every stored run in start order.
func (b *BoltTracker) ListRuns() ([]Run, error) {
	var runs []Run
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).ForEach(func(_, v []byte) error {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("unmarshal run: %w", err)
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}
