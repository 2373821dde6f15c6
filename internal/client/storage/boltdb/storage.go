package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/coursesync/internal/client/storage"
)

var (
	// BoltDB bucket names
	bucketOperations  = []byte("operations")
	bucketQueue       = []byte("queue")
	bucketEntityOps   = []byte("entity_ops")
	bucketApplied     = []byte("applied")
	bucketEntities    = []byte("entities")
	bucketReferences  = []byte("references")
	bucketStatus      = []byte("status")
	bucketConflicts   = []byte("conflicts")
	bucketSideRecords = []byte("side_records")
	bucketQuarantine  = []byte("quarantine")
	bucketMetadata    = []byte("metadata")

	allBuckets = [][]byte{
		bucketOperations,
		bucketQueue,
		bucketEntityOps,
		bucketApplied,
		bucketEntities,
		bucketReferences,
		bucketStatus,
		bucketConflicts,
		bucketSideRecords,
		bucketQuarantine,
		bucketMetadata,
	}
)

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db *bbolt.DB
}

var _ storage.Store = (*Storage)(nil)

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}

	// Инициализируем buckets
	if err := s.initBuckets(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Update runs fn in a read-write transaction.
// Any error returned by fn rolls the whole transaction back.
func (s *Storage) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// View runs fn in a read-only transaction.
func (s *Storage) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// boltTx реализует storage.Tx поверх транзакции bbolt.
// Записи в read-only транзакции возвращают ошибку bbolt.
type boltTx struct {
	tx *bbolt.Tx
}

var _ storage.Tx = (*boltTx)(nil)

func (t *boltTx) bucket(name []byte) (*bbolt.Bucket, error) {
	b := t.tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("%s bucket not found", name)
	}
	return b, nil
}
