// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package tail

import (
	"errors"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/skysonde/skysonde/internal/logging"
)

// Cursor remembers where a consumer stopped reading a source: which
// file it was on and the byte offset of the next unread row.
type Cursor struct {
	File   string `json:"file"`
	Offset int64  `json:"offset"`
}

// Store persists cursors across consumer restarts.
type Store interface {
	Load(consumer, source string) (Cursor, bool)
	Save(consumer, source string, c Cursor) error
	Close() error
}

// MemoryStore keeps cursors for the process lifetime only. It is the
// default: a restarted consumer re-reads the current file from the
// start, which is safe because merge output is last-row-wins.
type MemoryStore struct {
	cursors map[string]Cursor
}

// NewMemoryStore creates an empty in-process cursor store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cursors: make(map[string]Cursor)}
}

func (s *MemoryStore) Load(consumer, source string) (Cursor, bool) {
	c, ok := s.cursors[cursorKey(consumer, source)]
	return c, ok
}

func (s *MemoryStore) Save(consumer, source string, c Cursor) error {
	s.cursors[cursorKey(consumer, source)] = c
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// BadgerStore persists cursors in an embedded Badger database so a
// restarted consumer resumes at the recorded offset instead of
// re-reading the whole file.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) the cursor database for one
// consumer under root. Consumers run as separate OS processes, and
// badger holds an exclusive directory lock, so each consumer gets its
// own subdirectory rather than sharing one database.
func OpenBadgerStore(root, consumer string) (*BadgerStore, error) {
	path := filepath.Join(root, consumer)
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cursor store %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Load(consumer, source string) (Cursor, bool) {
	var c Cursor
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cursorKey(consumer, source)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &c)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logging.Warn().Str("consumer", consumer).Str("source", source).Err(err).
				Msg("cursor load failed, starting from scratch")
		}
		return Cursor{}, false
	}
	return c, true
}

func (s *BadgerStore) Save(consumer, source string, c Cursor) error {
	val, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(cursorKey(consumer, source)), val)
	})
	if err != nil {
		return fmt.Errorf("save cursor %s/%s: %w", consumer, source, err)
	}
	return nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func cursorKey(consumer, source string) string {
	return "cursor/" + consumer + "/" + source
}
