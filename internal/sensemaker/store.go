// Package sensemaker is the shared cell that keeps scoring state for
// content and agents, addressed by path.
//
// Each (path, tag) pair owns an append-only log of entries in a bbolt
// bucket. The entry with the highest sequence number is the current one.
// Writes that read current state and append new state run in one bbolt
// write transaction, so concurrent updates to one path are serialized and
// none is lost.
package sensemaker

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pbaille/happz/internal/codec"
	"github.com/pbaille/happz/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketPaths   = "paths"
	bucketEntries = "entries"
)

// Record is one version of the state under a (path, tag).
type Record struct {
	Seq        uint64                 `json:"seq"`
	EntryHash  domain.EntryHash       `json:"entry_hash"`
	ActionHash domain.ActionHash      `json:"action_hash"`
	Entry      domain.SensemakerEntry `json:"entry"`
	Author     domain.AgentPubKey     `json:"author"`
	Timestamp  int64                  `json:"timestamp"`
}

// Time returns when the record was written.
func (r Record) Time() time.Time {
	return time.UnixMicro(r.Timestamp)
}

type recordAction struct {
	Path      string             `json:"path"`
	Tag       string             `json:"tag"`
	Seq       uint64             `json:"seq"`
	Entry     domain.EntryHash   `json:"entry"`
	Author    domain.AgentPubKey `json:"author"`
	Timestamp int64              `json:"timestamp"`
}

type boltStore struct {
	db  *bolt.DB
	now func() time.Time
}

func openStore(path string) (*boltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open sensemaker db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketPaths, bucketEntries} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init sensemaker db: %w", err)
	}
	return &boltStore{db: db, now: time.Now}, nil
}

func (s *boltStore) close() error {
	return s.db.Close()
}

// logBucket returns the bucket for (path, tag), or nil if it has never been
// written and create is false.
func logBucket(tx *bolt.Tx, path, tag string, create bool) (*bolt.Bucket, error) {
	paths := tx.Bucket([]byte(bucketPaths))
	if !create {
		pb := paths.Bucket([]byte(path))
		if pb == nil {
			return nil, nil
		}
		return pb.Bucket([]byte(tag)), nil
	}
	pb, err := paths.CreateBucketIfNotExists([]byte(path))
	if err != nil {
		return nil, err
	}
	return pb.CreateBucketIfNotExists([]byte(tag))
}

func latest(tx *bolt.Tx, path, tag string) (Record, bool, error) {
	b, err := logBucket(tx, path, tag, false)
	if err != nil || b == nil {
		return Record{}, false, err
	}
	k, v := b.Cursor().Last()
	if k == nil {
		return Record{}, false, nil
	}
	var r Record
	if err := codec.Unmarshal(v, &r); err != nil {
		return Record{}, false, fmt.Errorf("decode %s %s: %w", path, tag, err)
	}
	return r, true, nil
}

func putEntry(tx *bolt.Tx, entry domain.SensemakerEntry) (domain.EntryHash, error) {
	eh, body, err := domain.HashEntry(entry)
	if err != nil {
		return domain.EntryHash{}, err
	}
	if err := tx.Bucket([]byte(bucketEntries)).Put(eh[:], body); err != nil {
		return domain.EntryHash{}, fmt.Errorf("put entry: %w", err)
	}
	return eh, nil
}

func (s *boltStore) appendRecord(tx *bolt.Tx, author domain.AgentPubKey, path, tag string, entry domain.SensemakerEntry) (Record, error) {
	eh, err := putEntry(tx, entry)
	if err != nil {
		return Record{}, err
	}
	b, err := logBucket(tx, path, tag, true)
	if err != nil {
		return Record{}, fmt.Errorf("create log %s %s: %w", path, tag, err)
	}
	seq, err := b.NextSequence()
	if err != nil {
		return Record{}, err
	}

	ts := s.now().UnixMicro()
	ah, err := domain.HashAction(recordAction{
		Path: path, Tag: tag, Seq: seq, Entry: eh, Author: author, Timestamp: ts,
	})
	if err != nil {
		return Record{}, err
	}

	r := Record{Seq: seq, EntryHash: eh, ActionHash: ah, Entry: entry, Author: author, Timestamp: ts}
	body, err := codec.Marshal(r)
	if err != nil {
		return Record{}, fmt.Errorf("encode record: %w", err)
	}
	if err := b.Put(marshalSeq(seq), body); err != nil {
		return Record{}, fmt.Errorf("put record: %w", err)
	}
	return r, nil
}

// Latest returns the current record under (path, tag).
func (s *boltStore) Latest(path, tag string) (Record, bool, error) {
	var (
		r     Record
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		r, found, err = latest(tx, path, tag)
		return err
	})
	return r, found, err
}

// History returns every record under (path, tag) in sequence order.
func (s *boltStore) History(path, tag string) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := logBucket(tx, path, tag, false)
		if err != nil || b == nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			var r Record
			if err := codec.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode record %d: %w", unmarshalSeq(k), err)
			}
			records = append(records, r)
			return nil
		})
	})
	return records, err
}

// Entry returns the entry with the given hash.
func (s *boltStore) Entry(eh domain.EntryHash) (domain.SensemakerEntry, error) {
	var entry domain.SensemakerEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketEntries)).Get(eh[:])
		if v == nil {
			return fmt.Errorf("entry %s: %w", eh, ErrNoEntry)
		}
		return codec.Unmarshal(v, &entry)
	})
	return entry, err
}

func marshalSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func unmarshalSeq(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
