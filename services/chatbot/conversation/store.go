// Package conversation provides the append-only conversation store and the
// context-window builder that turns stored history into the prompt sequence
// for the model.
//
// The store is backed by BadgerDB, the service's embedded local storage
// tier. Turns are keyed by session, timestamp, and an insertion sequence so
// that a reverse prefix scan yields the most recent turns first.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/datatypes"
)

// ErrHistoryFetch marks a failed read of a session's recent turns. The
// pipeline surfaces it as a fallback reply; no retry happens here.
var ErrHistoryFetch = errors.New("conversation history fetch failed")

// Store is the external-collaborator contract for conversation persistence.
// Append writes one turn; RecentTurns returns up to limit turns for a
// session, newest first. Both respect the caller's context deadline.
type Store interface {
	Append(ctx context.Context, turn datatypes.ConversationTurn) error
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]datatypes.ConversationTurn, error)
}

// turnKeyPrefix namespaces turn records inside the shared database.
const turnKeyPrefix = "turn/"

// Config holds configuration for the badger-backed store.
type Config struct {
	// Path is the directory for BadgerDB files. Required unless InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence). For tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. Nil disables it.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: durable synchronous writes.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests: no disk I/O.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore is the BadgerDB-backed Store implementation.
//
// The per-process seq counter breaks timestamp ties in insertion order, so
// two turns written within the same second keep their write order on read.
type BadgerStore struct {
	db  *badger.DB
	seq atomic.Uint64
}

// Open creates and opens a BadgerStore with the given configuration.
// The caller must Close the store when done.
func Open(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemory opens a throwaway in-memory store for tests.
func OpenInMemory() (*BadgerStore, error) {
	return Open(InMemoryConfig())
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// turnKey builds "turn/<session>/<timestamp>/<seq>" with fixed-width numeric
// fields so lexicographic key order equals (timestamp, insertion) order.
func turnKey(sessionID string, timestamp int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%012d/%08d", turnKeyPrefix, sessionID, timestamp, seq))
}

// Append durably writes one turn. Turns are never mutated or deleted here;
// retention is an external concern.
func (s *BadgerStore) Append(ctx context.Context, turn datatypes.ConversationTurn) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	value, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	key := turnKey(turn.SessionID, turn.Timestamp, s.seq.Add(1))
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("append turn for session %s: %w", turn.SessionID, err)
	}
	return nil
}

// RecentTurns returns up to limit turns for the session, newest first.
// A limit <= 0 returns an empty slice.
func (s *BadgerStore) RecentTurns(ctx context.Context, sessionID string, limit int) ([]datatypes.ConversationTurn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHistoryFetch, err)
	}
	if limit <= 0 {
		return []datatypes.ConversationTurn{}, nil
	}

	prefix := []byte(turnKeyPrefix + sessionID + "/")
	turns := make([]datatypes.ConversationTurn, 0, limit)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration must seek past the last key in the prefix range.
		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix) && len(turns) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var turn datatypes.ConversationTurn
				if err := json.Unmarshal(val, &turn); err != nil {
					return fmt.Errorf("decode turn %s: %w", it.Item().Key(), err)
				}
				turns = append(turns, turn)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: %w", ErrHistoryFetch, sessionID, err)
	}
	return turns, nil
}
