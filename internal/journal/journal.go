// Package journal keeps a persistent record of messages that passed through
// the IPC channels, for inspection after the fact. Entries are kept in
// insertion order in a bbolt bucket and pruned to a configured size.

package journal

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

const entriesBucket = "entries"

// Entry is one recorded message.
type Entry struct {
	ID        uint64    `json:"id"`
	Channel   string    `json:"channel"`
	Direction string    `json:"direction"`
	RequestID string    `json:"request_id,omitempty"`
	Payload   string    `json:"payload"`
	At        time.Time `json:"at"`
}

// Journal provides persistent storage for entries
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal database
func Open(dbPath string) (*Journal, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(entriesBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Record appends an entry, assigning its ID
func (j *Journal) Record(e *Entry) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))

		id, _ := b.NextSequence()
		e.ID = id
		if e.At.IsZero() {
			e.At = time.Now()
		}

		data, err := json.Marshal(e)
		if err != nil {
			return err
		}

		return b.Put(itob(id), data)
	})
}

// List returns up to limit entries, oldest first
func (j *Journal) List(limit int) ([]*Entry, error) {
	var entries []*Entry

	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))
		c := b.Cursor()

		for k, v := c.First(); k != nil && len(entries) < limit; k, v = c.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			entries = append(entries, &e)
		}
		return nil
	})

	return entries, err
}

// Prune deletes the oldest entries so that at most keep remain.
// Returns the number removed.
func (j *Journal) Prune(keep int) (int, error) {
	removed := 0
	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))
		excess := b.Stats().KeyN - keep
		if excess <= 0 {
			return nil
		}

		// Collect first; deleting while iterating a cursor skips keys
		keys := make([][]byte, 0, excess)
		c := b.Cursor()
		for k, _ := c.First(); k != nil && len(keys) < excess; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Count returns the number of recorded entries
func (j *Journal) Count() (int, error) {
	var count int
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))
		count = b.Stats().KeyN
		return nil
	})
	return count, err
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}

// itob converts uint64 to big-endian bytes for ordered keys
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
