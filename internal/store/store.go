// Package store journals the last state of every extracted signal in a
// bbolt database so it survives restarts.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketSignals = "signals"

const recordLen = 1 + 8 + 8

// ErrCorrupt reports a stored record that cannot be decoded.
var ErrCorrupt = errors.New("corrupt signal record")

// SignalRecord is the persisted view of one signal.
type SignalRecord struct {
	Name        string
	State       bool
	Transitions uint64
	At          time.Time
}

// Store wraps a bbolt database holding the signals bucket.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database at path and ensures the bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSignals))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init state db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error { return s.db.Close() }

// RecordSignal stores the new state of name. The transition counter grows
// only when the state differs from the stored one.
func (s *Store) RecordSignal(name string, on bool, at time.Time) (SignalRecord, error) {
	rec := SignalRecord{Name: name, State: on, At: at}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSignals))
		if v := b.Get([]byte(name)); v != nil {
			prev, err := decode(name, v)
			if err != nil {
				return err
			}
			rec.Transitions = prev.Transitions
			if prev.State != on {
				rec.Transitions++
			}
		} else {
			rec.Transitions = 1
		}
		return b.Put([]byte(name), encode(rec))
	})
	return rec, err
}

// LastSignal returns the stored record for name; ok is false when the
// signal was never recorded.
func (s *Store) LastSignal(name string) (rec SignalRecord, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketSignals)).Get([]byte(name))
		if v == nil {
			return nil
		}
		rec, err = decode(name, v)
		ok = err == nil
		return err
	})
	return rec, ok, err
}

// Signals returns every stored record ordered by name.
func (s *Store) Signals() ([]SignalRecord, error) {
	var out []SignalRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSignals)).ForEach(func(k, v []byte) error {
			rec, err := decode(string(k), v)
			if err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

func encode(r SignalRecord) []byte {
	buf := make([]byte, recordLen)
	if r.State {
		buf[0] = 1
	}
	binary.BigEndian.PutUint64(buf[1:9], r.Transitions)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.At.UnixNano()))
	return buf
}

func decode(name string, v []byte) (SignalRecord, error) {
	if len(v) != recordLen {
		return SignalRecord{}, fmt.Errorf("%w: %q has %d bytes", ErrCorrupt, name, len(v))
	}
	return SignalRecord{
		Name:        name,
		State:       v[0] == 1,
		Transitions: binary.BigEndian.Uint64(v[1:9]),
		At:          time.Unix(0, int64(binary.BigEndian.Uint64(v[9:17]))),
	}, nil
}
