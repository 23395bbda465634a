// Package journal persists provider registrations so providers left behind by a
// crashed process can be removed on the next start.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

const registrationsBucket = "registrations"

// Journal is a bbolt-backed provider.Journal. Each backend gets a nested bucket
// keyed by provider id; values hold the registration time.
type Journal struct {
	db     *bolt.DB
	logger zerolog.Logger
}

// Open opens or creates the journal file at path.
func Open(path string, log zerolog.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(registrationsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal buckets: %w", err)
	}

	log.Debug().Str("path", path).Msg("Registration journal opened")
	return &Journal{db: db, logger: log}, nil
}

// Record marks id as registered on backend.
func (j *Journal) Record(backend, id string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket([]byte(registrationsBucket)).CreateBucketIfNotExists([]byte(backend))
		if err != nil {
			return err
		}
		return b.Put([]byte(id), []byte(time.Now().UTC().Format(time.RFC3339Nano)))
	})
}

// Forget removes id from the journal. Missing entries are ignored.
func (j *Journal) Forget(backend, id string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(registrationsBucket)).Bucket([]byte(backend))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
}

// Pending lists ids recorded for backend and not yet forgotten.
func (j *Journal) Pending(backend string) ([]string, error) {
	var ids []string
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(registrationsBucket)).Bucket([]byte(backend))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// Backends lists every backend that has pending registrations.
func (j *Journal) Backends() ([]string, error) {
	var names []string
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(registrationsBucket)).ForEachBucket(func(k []byte) error {
			if tx.Bucket([]byte(registrationsBucket)).Bucket(k).Stats().KeyN > 0 {
				names = append(names, string(k))
			}
			return nil
		})
	})
	return names, err
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
