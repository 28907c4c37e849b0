package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "records"

var (
	// ErrNotFound is returned when an owner has no record with the given ID
	ErrNotFound = errors.New("record not found")
	// ErrPersistence wraps storage and database failures
	ErrPersistence = errors.New("persistence failure")
)

// DB defines the interface for database operations. Every lookup is
// scoped to an owner.
type DB interface {
	// SaveRecord inserts or replaces a record
	SaveRecord(record *Record) error

	// GetRecord retrieves a record by owner and ID
	GetRecord(owner, id string) (*Record, error)

	// ListRecords returns an owner's records, newest first
	ListRecords(owner string) ([]*Record, error)

	// DeleteRecord removes a record
	DeleteRecord(owner, id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB. Records live in one
// nested bucket per owner.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveRecord saves a record to the database
func (b *BoltDB) SaveRecord(record *Record) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket([]byte(bucketName)).CreateBucketIfNotExists([]byte(record.Owner))
		if err != nil {
			return fmt.Errorf("creating owner bucket: %w", err)
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		return bucket.Put([]byte(record.ID), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// GetRecord retrieves a record by owner and ID
func (b *BoltDB) GetRecord(owner, id string) (*Record, error) {
	var record *Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName)).Bucket([]byte(owner))
		if bucket == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("unmarshaling record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError(err)
	}
	return record, nil
}

// ListRecords returns an owner's records, newest first
func (b *BoltDB) ListRecords(owner string) ([]*Record, error) {
	records := make([]*Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName)).Bucket([]byte(owner))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling record: %w", err)
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	slices.SortStableFunc(records, func(a, b *Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return records, nil
}

// DeleteRecord removes a record from the database
func (b *BoltDB) DeleteRecord(owner, id string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName)).Bucket([]byte(owner))
		if bucket == nil || bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
	return persistenceError(err)
}

// persistenceError passes lookup misses through and marks everything else
// as a persistence failure.
func persistenceError(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
