// Package history provides a durable append-only log of execution records.
// Records are stored in bbolt under big-endian sequence keys, so key order
// is insertion order. Listings are ordered by the record's execution
// timestamp, newest first: parallel executions on different paths can finish
// out of start-time order, so insertion order alone is not enough and only
// breaks ties. CreatedAt is stamped inside the write transaction, which
// keeps it monotonically non-decreasing in key order under bbolt's
// single-writer serialization without any external lock. Reads run in their
// own transactions and may proceed concurrently with writes.

package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

const historyBucket = "execution_history"

// Store persists execution records.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(historyBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Append durably writes one record. CreatedAt is stamped at insertion time.
func (s *Store) Append(rec ExecutionRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rec.CreatedAt = time.Now().UTC()
		b := tx.Bucket([]byte(historyBucket))

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		return b.Put(itob(seq), data)
	})
}

// List returns up to limit records ordered by timestamp descending.
// A non-positive limit returns everything.
func (s *Store) List(limit int) ([]ExecutionRecord, error) {
	return s.list(nil, limit)
}

// ListByFile returns up to limit records for one file path, newest first.
func (s *Store) ListByFile(filePath string, limit int) ([]ExecutionRecord, error) {
	return s.list(func(rec *ExecutionRecord) bool {
		return rec.FilePath == filePath
	}, limit)
}

// ListBySection returns up to limit records for one section, newest first.
func (s *Store) ListBySection(section string, limit int) ([]ExecutionRecord, error) {
	return s.list(func(rec *ExecutionRecord) bool {
		return rec.Section == section
	}, limit)
}

// list collects the records matching filter (nil matches all), orders them
// by timestamp descending, and clips to limit. The scan walks newest
// insertion first, so the stable sort keeps insertion order as the tiebreak
// for records with equal timestamps.
func (s *Store) list(filter func(*ExecutionRecord) bool, limit int) ([]ExecutionRecord, error) {
	var records []ExecutionRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(historyBucket))
		c := b.Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec ExecutionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			if filter == nil || filter(&rec) {
				records = append(records, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Stats computes aggregate statistics with a full scan.
func (s *Store) Stats() (ExecutionStats, error) {
	return s.statsWhere(nil)
}

// SectionStats computes aggregate statistics restricted to one section.
func (s *Store) SectionStats(section string) (ExecutionStats, error) {
	return s.statsWhere(func(rec *ExecutionRecord) bool {
		return rec.Section == section
	})
}

// statsWhere aggregates the records matching filter (nil matches all).
func (s *Store) statsWhere(filter func(*ExecutionRecord) bool) (ExecutionStats, error) {
	var stats ExecutionStats
	perFile := make(map[string]uint64)
	var totalTime float64
	var last time.Time

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(historyBucket))

		return b.ForEach(func(_, v []byte) error {
			var rec ExecutionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			if filter != nil && !filter(&rec) {
				return nil
			}

			stats.TotalExecutions++
			if rec.Success {
				stats.SuccessfulExecutions++
			} else {
				stats.FailedExecutions++
			}
			totalTime += rec.ExecutionTime
			perFile[rec.FilePath]++
			if rec.Timestamp.After(last) {
				last = rec.Timestamp
			}
			return nil
		})
	})
	if err != nil {
		return ExecutionStats{}, err
	}

	if stats.TotalExecutions == 0 {
		return stats, nil
	}

	stats.AverageExecutionTime = totalTime / float64(stats.TotalExecutions)
	stats.LastExecution = &last

	var best uint64
	for path, count := range perFile {
		if count > best || (count == best && path < stats.MostExecutedFile) {
			best = count
			stats.MostExecutedFile = path
		}
	}

	return stats, nil
}

// Clear deletes all records and returns how many were removed.
// Confirmation is a caller concern; the store's delete is unconditional.
func (s *Store) Clear() (int, error) {
	var deleted int

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(historyBucket))
		deleted = b.Stats().KeyN

		if err := tx.DeleteBucket([]byte(historyBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(historyBucket))
		return err
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

// Prune deletes records whose timestamp is before cutoff and returns the
// number removed. Used by the retention job.
func (s *Store) Prune(cutoff time.Time) (int, error) {
	var deleted int

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(historyBucket))
		c := b.Cursor()

		// Collect keys first: deleting while iterating a bucket cursor
		// forward is not safe across all bbolt versions.
		var stale [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec ExecutionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			if rec.Timestamp.Before(cutoff) {
				key := make([]byte, len(k))
				copy(key, k)
				stale = append(stale, key)
			}
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(historyBucket))
		count = b.Stats().KeyN
		return nil
	})
	return count, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// itob converts uint64 to big-endian bytes for ordered keys.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
