package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

// boltLedgerStorage keeps one nested bucket per loan under the
// ledger bucket. Events are keyed by the nested bucket sequence.
type boltLedgerStorage struct {
	logger *zap.Logger
	client *bolt.DB
	config *BoltDBConfig
}

// GetBoltDBClient setup the database and the ledger bucket then provides a ready to use client.
func GetBoltDBClient(config *Config) (*bolt.DB, error) {
	db, err := bolt.Open(config.BoltDB.FilePath, 0o600, &bolt.Options{Timeout: config.BoltDB.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open the database, %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, errB := tx.CreateBucketIfNotExists([]byte(config.BoltDB.BucketName)); errB != nil {
			return fmt.Errorf("failed to create %s bucket: %v", config.BoltDB.BucketName, errB)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up bucket: %v", err)
	}
	return db, nil
}

// NewBoltLedgerStorage provides an instance of bolt-based loans ledger.
func NewBoltLedgerStorage(logger *zap.Logger, boltConfig *BoltDBConfig, client *bolt.DB) LedgerStorage {
	return &boltLedgerStorage{
		logger: logger,
		client: client,
		config: boltConfig,
	}
}

// Close shuts down the bolt-based ledger.
func (bs *boltLedgerStorage) Close() error {
	return bs.client.Close()
}

// itob returns an 8-byte big endian representation of v.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Append adds an event at the end of its loan history.
func (bs *boltLedgerStorage) Append(_ context.Context, event LoanEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return bs.client.Update(func(tx *bolt.Tx) error {
		loans, err := tx.Bucket([]byte(bs.config.BucketName)).CreateBucketIfNotExists(itob(uint64(event.LoanID)))
		if err != nil {
			return err
		}
		seq, err := loans.NextSequence()
		if err != nil {
			return err
		}
		return loans.Put(itob(seq), data)
	})
}

// History retrieves the events of a loan in insertion order.
// An unknown loan gives an empty history.
func (bs *boltLedgerStorage) History(_ context.Context, loanID int64) ([]LoanEvent, error) {
	tx, err := bs.client.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	events := []LoanEvent{}
	loans := tx.Bucket([]byte(bs.config.BucketName)).Bucket(itob(uint64(loanID)))
	if loans == nil {
		return events, nil
	}
	c := loans.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var event LoanEvent
		if err = json.Unmarshal(v, &event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
