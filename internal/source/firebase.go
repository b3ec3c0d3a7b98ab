package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/mnhsh/digital-capsule/internal/capsule"
	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"
	"gopkg.in/cenkalti/backoff.v1"
)

// FirebaseConfig points at a Realtime Database instance.
type FirebaseConfig struct {
	DatabaseURL string
	AuthToken   string
}

// Firebase streams a Realtime Database path over its REST event stream.
type Firebase struct {
	endpoint string
	redacted string
	client   *http.Client
	logger   *zap.Logger
}

func NewFirebase(cfg FirebaseConfig, path string, client *http.Client, logger *zap.Logger) (*Firebase, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("%w: firebase database_url is not set", ErrConfigurationMissing)
	}
	base, err := url.Parse(strings.TrimRight(cfg.DatabaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid firebase database_url %q", ErrConfigurationMissing, cfg.DatabaseURL)
	}
	base.Path += "/" + strings.Trim(path, "/") + ".json"
	redacted := base.String()
	if cfg.AuthToken != "" {
		q := base.Query()
		q.Set("auth", cfg.AuthToken)
		base.RawQuery = q.Encode()
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Firebase{
		endpoint: base.String(),
		redacted: redacted,
		client:   client,
		logger:   logger.Named("firebase"),
	}, nil
}

func (f *Firebase) Subscribe(ctx context.Context) (<-chan Event, error) {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan Event, 16)

	client := sse.NewClient(f.endpoint)
	client.Connection = f.client
	// one attempt per subscription
	client.ReconnectStrategy = &backoff.StopBackOff{}

	go func() {
		defer close(ch)
		defer cancel()

		f.logger.Info("Subscribing to entry stream", zap.String("url", f.redacted))
		t := newTree()
		err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			for _, ev := range t.apply(string(msg.Event), msg.Data) {
				if !send(ctx, ch, ev) {
					return
				}
				if ev.Kind == EventError {
					cancel()
					return
				}
			}
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			send(ctx, ch, ErrorEvent(fmt.Errorf("%w: %w", ErrFetchFailure, err)))
			return
		}
		f.logger.Warn("Entry stream closed by server", zap.String("url", f.redacted))
	}()

	return ch, nil
}

type streamPayload struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

// tree mirrors the children under the subscribed path so partial updates
// can be turned into whole entries.
type tree struct {
	children map[string]map[string]json.RawMessage
}

func newTree() *tree {
	return &tree{children: make(map[string]map[string]json.RawMessage)}
}

func (t *tree) apply(event string, data []byte) []Event {
	switch event {
	case "put", "patch":
	case "cancel":
		return []Event{ErrorEvent(fmt.Errorf("%w: stream cancelled: %s", ErrFetchFailure, strings.TrimSpace(string(data))))}
	case "auth_revoked":
		return []Event{ErrorEvent(fmt.Errorf("%w: credential revoked", ErrFetchFailure))}
	default:
		// keep-alive and unknown events
		return nil
	}

	var p streamPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return []Event{ErrorEvent(fmt.Errorf("%w: malformed %s payload: %w", ErrFetchFailure, event, err))}
	}

	segs := splitPath(p.Path)
	switch {
	case len(segs) == 0 && event == "put":
		t.children = make(map[string]map[string]json.RawMessage)
		for id, raw := range objectOf(p.Data) {
			if fields := objectOf(raw); fields != nil {
				t.children[id] = fields
			}
		}
		return []Event{ValueEvent(t.entries())}
	case len(segs) == 0:
		kids := objectOf(p.Data)
		ids := make([]string, 0, len(kids))
		for id := range kids {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		var events []Event
		for _, id := range ids {
			if ev, ok := t.replace(id, kids[id]); ok {
				events = append(events, ev)
			}
		}
		return events
	case len(segs) == 1 && event == "put":
		if ev, ok := t.replace(segs[0], p.Data); ok {
			return []Event{ev}
		}
		return nil
	case len(segs) == 1:
		return t.merge(segs[0], objectOf(p.Data))
	case len(segs) == 2:
		return t.merge(segs[0], map[string]json.RawMessage{segs[1]: p.Data})
	default:
		// entries are flat records
		return nil
	}
}

// replace swaps a whole child. Removals are ignored; entries are never
// taken off the page.
func (t *tree) replace(id string, raw json.RawMessage) (Event, bool) {
	fields := objectOf(raw)
	if fields == nil {
		return Event{}, false
	}
	t.children[id] = fields
	return ChildEvent(id, decodeFields(fields)), true
}

func (t *tree) merge(id string, update map[string]json.RawMessage) []Event {
	if len(update) == 0 {
		return nil
	}
	fields, ok := t.children[id]
	if !ok {
		fields = make(map[string]json.RawMessage)
		t.children[id] = fields
	}
	for k, v := range update {
		if isNull(v) {
			delete(fields, k)
			continue
		}
		fields[k] = v
	}
	return []Event{ChildEvent(id, decodeFields(fields))}
}

func (t *tree) entries() map[string]capsule.Entry {
	out := make(map[string]capsule.Entry, len(t.children))
	for id, fields := range t.children {
		out[id] = decodeFields(fields)
	}
	return out
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// objectOf returns nil for anything that is not a JSON object.
func objectOf(raw json.RawMessage) map[string]json.RawMessage {
	if isNull(raw) {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

func decodeFields(fields map[string]json.RawMessage) capsule.Entry {
	b, err := json.Marshal(fields)
	if err != nil {
		return capsule.Entry{}
	}
	e, _ := capsule.DecodeEntry(b)
	return e
}
