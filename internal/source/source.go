package source

import (
	"context"
	"errors"

	"github.com/mnhsh/digital-capsule/internal/capsule"
)

var (
	// ErrConfigurationMissing means the store connection settings are absent.
	ErrConfigurationMissing = errors.New("remote store configuration missing")
	// ErrFetchFailure means a read or subscription was rejected or failed.
	ErrFetchFailure = errors.New("remote store fetch failed")
)

type EventKind int

const (
	// EventValue carries the full mapping at the data path.
	EventValue EventKind = iota + 1
	// EventChildAdded carries one new or changed entry.
	EventChildAdded
	// EventError ends the subscription.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventValue:
		return "value"
	case EventChildAdded:
		return "child_added"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind    EventKind
	ID      string
	Entry   capsule.Entry
	Entries map[string]capsule.Entry
	Err     error
}

func ValueEvent(entries map[string]capsule.Entry) Event {
	if entries == nil {
		entries = map[string]capsule.Entry{}
	}
	return Event{Kind: EventValue, Entries: entries}
}

func ChildEvent(id string, e capsule.Entry) Event {
	return Event{Kind: EventChildAdded, ID: id, Entry: e}
}

func ErrorEvent(err error) Event {
	return Event{Kind: EventError, Err: err}
}

// Source is a read-only view of the remote entry store. Subscribe delivers
// a value event for the initial read followed by child events as entries
// arrive. The channel is closed when ctx is done or after an error event.
type Source interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// send delivers ev unless ctx is done first.
func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Static serves a fixed set of entries.
type Static struct {
	Entries map[string]capsule.Entry
}

func (s *Static) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, 1)
	entries := make(map[string]capsule.Entry, len(s.Entries))
	for id, e := range s.Entries {
		entries[id] = e
	}
	go func() {
		defer close(ch)
		send(ctx, ch, ValueEvent(entries))
	}()
	return ch, nil
}

// Unavailable is used when the store could not be configured; every
// subscription fails with the stored error.
type Unavailable struct {
	Err error
}

func (u Unavailable) Subscribe(context.Context) (<-chan Event, error) {
	return nil, u.Err
}

// Snapshot reads the first value event from src.
func Snapshot(ctx context.Context, src Source) (map[string]capsule.Entry, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := src.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	entries := map[string]capsule.Entry{}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return entries, nil
			}
			switch ev.Kind {
			case EventValue:
				return ev.Entries, nil
			case EventChildAdded:
				entries[ev.ID] = ev.Entry
			case EventError:
				return nil, ev.Err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
