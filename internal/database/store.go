package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mnhsh/digital-capsule/internal/capsule"
	"github.com/mnhsh/digital-capsule/internal/source"
)

// NotifyChannel is the postgres channel the schema trigger announces new
// entry ids on.
const NotifyChannel = "capsule_entries_added"

//go:embed schema.sql
var Schema string

var ErrUnsupportedDriver = errors.New("unsupported sql driver")

// Store provides all functions to execute db queries and transactions
type Store interface {
	Querier
	source.Source
	Snapshot(ctx context.Context) (map[string]capsule.Entry, error)
}

var _ Store = (*SQLStore)(nil)

// SQLStore reads capsule entries from a SQL table. With a listener DSN it
// also follows postgres notifications for live updates.
type SQLStore struct {
	db *sql.DB
	*Queries
	listenDSN string
	logger    *zap.Logger
}

// Open connects with pool limits suited to a handful of readers.
func Open(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "postgres", "sqlite3":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("%w: sql dsn is not set", source.ErrConfigurationMissing)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// NewStore creates a new store. listenDSN is the postgres connection string
// used for LISTEN; leave it empty for a snapshot-only store.
func NewStore(db *sql.DB, listenDSN string, logger *zap.Logger) *SQLStore {
	return &SQLStore{
		db:        db,
		Queries:   New(db),
		listenDSN: listenDSN,
		logger:    logger.Named("database"),
	}
}

func (s *SQLStore) execTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	q := New(tx)
	err = fn(q)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// Snapshot reads every entry in one transaction.
func (s *SQLStore) Snapshot(ctx context.Context) (map[string]capsule.Entry, error) {
	var rows []EntryRow
	err := s.execTx(ctx, func(q *Queries) error {
		var err error
		rows, err = q.ListEntries(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", source.ErrFetchFailure, err)
	}

	entries := make(map[string]capsule.Entry, len(rows))
	for _, row := range rows {
		e, err := capsule.DecodeEntry(row.Payload)
		if err != nil {
			s.logger.Warn("Skipping unreadable entry", zap.String("id", row.ID), zap.Error(err))
			continue
		}
		entries[row.ID] = e
	}
	return entries, nil
}

func (s *SQLStore) entry(ctx context.Context, id string) (capsule.Entry, bool, error) {
	row, err := s.GetEntry(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return capsule.Entry{}, false, nil
	}
	if err != nil {
		return capsule.Entry{}, false, fmt.Errorf("%w: %w", source.ErrFetchFailure, err)
	}
	e, err := capsule.DecodeEntry(row.Payload)
	if err != nil {
		s.logger.Warn("Skipping unreadable entry", zap.String("id", id), zap.Error(err))
		return capsule.Entry{}, false, nil
	}
	return e, true, nil
}

// Subscribe implements source.Source. Without a listener DSN the channel
// closes after the first value event.
func (s *SQLStore) Subscribe(ctx context.Context) (<-chan source.Event, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", source.ErrFetchFailure, err)
	}

	ch := make(chan source.Event, 16)
	go func() {
		defer close(ch)

		if s.listenDSN == "" {
			s.sendSnapshot(ctx, ch)
			return
		}

		listener := pq.NewListener(s.listenDSN, time.Second, time.Minute, s.listenerEvent)
		stop := context.AfterFunc(ctx, func() { listener.Close() })
		defer stop()
		defer listener.Close()

		// Listen blocks until the first connection is up
		if err := listener.Listen(NotifyChannel); err != nil {
			if ctx.Err() == nil {
				sendEvent(ctx, ch, source.ErrorEvent(fmt.Errorf("%w: listen %s: %w", source.ErrFetchFailure, NotifyChannel, err)))
			}
			return
		}

		if !s.sendSnapshot(ctx, ch) {
			return
		}

		for {
			select {
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				// nil after a reconnect; notifications may have been missed
				if n == nil {
					if !s.sendSnapshot(ctx, ch) {
						return
					}
					continue
				}
				e, found, err := s.entry(ctx, n.Extra)
				if err != nil {
					sendEvent(ctx, ch, source.ErrorEvent(err))
					return
				}
				if !found {
					continue
				}
				if !sendEvent(ctx, ch, source.ChildEvent(n.Extra, e)) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (s *SQLStore) sendSnapshot(ctx context.Context, ch chan<- source.Event) bool {
	entries, err := s.Snapshot(ctx)
	if err != nil {
		sendEvent(ctx, ch, source.ErrorEvent(err))
		return false
	}
	return sendEvent(ctx, ch, source.ValueEvent(entries))
}

func (s *SQLStore) listenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		s.logger.Info("Listening for new entries", zap.String("channel", NotifyChannel))
	case pq.ListenerEventDisconnected:
		s.logger.Warn("Entry listener disconnected", zap.Error(err))
	case pq.ListenerEventReconnected:
		s.logger.Info("Entry listener reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		s.logger.Warn("Entry listener connection attempt failed", zap.Error(err))
	}
}

func sendEvent(ctx context.Context, ch chan<- source.Event, ev source.Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
