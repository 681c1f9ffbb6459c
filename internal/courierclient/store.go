// Package courierclient is the courier device side: a durable offline queue,
// the REST and socket clients and the agent that ties them together.
package courierclient

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketQueue = []byte("queue")
	bucketState = []byte("state")
	keyState    = []byte("state")
)

// Action types.
const (
	ActionStatus   = "status_update"
	ActionComplete = "complete_delivery"
)

// Action is a status change the courier performed.
type Action struct {
	Type    string `json:"type"`
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
	Note    string `json:"note,omitempty"`
	// Proof is a base64 image or data URL for ActionComplete.
	Proof string `json:"proof,omitempty"`
}

// Entry is a queued action. Seq is the device-local sequence.
type Entry struct {
	Seq             uint64    `json:"seq"`
	Action          Action    `json:"action"`
	ClientTimestamp time.Time `json:"client_timestamp"`
}

// State is the device state kept across restarts.
type State struct {
	CourierID int64 `json:"courier_id"`
	OnShift   bool  `json:"on_shift"`
	Online    bool  `json:"online"`
}

// Store persists queue entries and device state in a bbolt file.
type Store struct {
	db *bolt.DB
}

// OpenStore opens or creates the file at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open queue %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketQueue, bucketState} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init queue buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the file.
func (s *Store) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Append stores a at the next sequence. The sequence never repeats, even
// after entries are removed or the process restarts.
func (s *Store) Append(a Action, at time.Time) (Entry, error) {
	var e Entry
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		e = Entry{Seq: seq, Action: a, ClientTimestamp: at.UTC()}
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), raw)
	})
	if err != nil {
		return Entry{}, fmt.Errorf("append action: %w", err)
	}
	return e, nil
}

// First returns the entry with the lowest sequence, nil when empty.
func (s *Store) First() (*Entry, error) {
	var e *Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		_, v := tx.Bucket(bucketQueue).Cursor().First()
		if v == nil {
			return nil
		}
		e = &Entry{}
		return json.Unmarshal(v, e)
	})
	if err != nil {
		return nil, fmt.Errorf("read first entry: %w", err)
	}
	return e, nil
}

// Remove deletes the entry. Removing a missing entry is not an error.
func (s *Store) Remove(seq uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQueue).Delete(seqKey(seq))
	})
}

// Entries returns all entries in sequence order.
func (s *Store) Entries() ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQueue).ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// Len returns the number of queued entries.
func (s *Store) Len() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketQueue).Stats().KeyN
		return nil
	})
	return n, err
}

// SaveState replaces the stored device state.
func (s *Store) SaveState(st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketState).Put(keyState, raw)
	})
}

// LoadState returns the stored device state, zero when none was saved.
func (s *Store) LoadState() (State, error) {
	var st State
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketState).Get(keyState)
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &st)
	})
	if err != nil {
		return State{}, fmt.Errorf("load device state: %w", err)
	}
	return st, nil
}
