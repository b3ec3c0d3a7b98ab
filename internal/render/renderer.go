package render

import (
	"context"
	"sort"

	"github.com/mnhsh/digital-capsule/internal/capsule"
	"go.uber.org/zap"
)

// ErrorText is what the entries area shows when entries cannot be loaded.
const ErrorText = "Error loading entries."

// Surface is the page the renderer draws on.
type Surface interface {
	SetCountdown(c capsule.Countdown)
	Unlock()
	Clear()
	Append(el Element)
	Replace(el Element)
	ShowError(msg string)
}

// Renderer turns entries into elements on a Surface. It holds the entries
// that arrive while the capsule is locked and releases them on unlock.
// Methods must be called from a single goroutine.
type Renderer struct {
	surface  Surface
	resolver URLResolver
	format   TimeFormat
	logger   *zap.Logger

	unlocked bool
	pending  map[string]capsule.Entry
	shown    map[string]struct{}
}

type Option func(*Renderer)

func WithResolver(r URLResolver) Option {
	return func(rd *Renderer) {
		if r != nil {
			rd.resolver = r
		}
	}
}

func WithTimeFormat(tf TimeFormat) Option {
	return func(rd *Renderer) {
		rd.format = tf
	}
}

func NewRenderer(surface Surface, logger *zap.Logger, opts ...Option) *Renderer {
	r := &Renderer{
		surface:  surface,
		resolver: passthrough{},
		format:   TimeFormat{Layout: DefaultLayout},
		logger:   logger.Named("renderer"),
		shown:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) Unlocked() bool {
	return r.unlocked
}

// Pending returns how many entries are buffered.
func (r *Renderer) Pending() int {
	return len(r.pending)
}

// Render clears the surface and draws entries ordered by timestamp.
func (r *Renderer) Render(ctx context.Context, entries map[string]capsule.Entry) {
	r.surface.Clear()
	r.shown = make(map[string]struct{}, len(entries))
	for _, id := range SortedIDs(entries) {
		el := r.element(ctx, id, entries[id])
		r.surface.Append(el)
		r.shown[id] = struct{}{}
	}
	r.logger.Debug("Rendered entries", zap.Int("count", len(entries)))
}

// Add handles one new or changed entry.
func (r *Renderer) Add(ctx context.Context, id string, e capsule.Entry) {
	if !r.unlocked {
		r.buffer(id, e)
		return
	}
	el := r.element(ctx, id, e)
	if _, ok := r.shown[id]; ok {
		r.surface.Replace(el)
		return
	}
	r.surface.Append(el)
	r.shown[id] = struct{}{}
}

// Load handles a full read of the store.
func (r *Renderer) Load(ctx context.Context, entries map[string]capsule.Entry) {
	if r.unlocked {
		r.pending = nil
		r.Render(ctx, entries)
		return
	}
	for id, e := range entries {
		r.buffer(id, e)
	}
}

// Unlock reveals the entries area and renders anything buffered so far.
func (r *Renderer) Unlock(ctx context.Context) {
	if !r.unlocked {
		r.unlocked = true
		r.surface.Unlock()
	}
	r.FlushPending(ctx)
}

// FlushPending renders the buffer once the capsule is open. It reports
// whether anything was drawn.
func (r *Renderer) FlushPending(ctx context.Context) bool {
	if !r.unlocked || r.pending == nil {
		return false
	}
	pending := r.pending
	r.pending = nil
	r.Render(ctx, pending)
	return true
}

// Fail reports a load failure on the surface. The countdown is unaffected.
func (r *Renderer) Fail(err error) {
	r.logger.Error("Failed to load entries", zap.Error(err))
	r.surface.ShowError(ErrorText)
}

func (r *Renderer) buffer(id string, e capsule.Entry) {
	if r.pending == nil {
		r.pending = make(map[string]capsule.Entry)
	}
	r.pending[id] = e
}

func (r *Renderer) element(ctx context.Context, id string, e capsule.Entry) Element {
	el, err := buildElement(ctx, id, e, r.format, r.resolver)
	if err != nil {
		// keep the stored URL rather than dropping the attachment
		r.logger.Warn("Failed to resolve attachment URL",
			zap.String("id", id),
			zap.String("url", e.FileURL),
			zap.Error(err))
		el, _ = buildElement(ctx, id, e, r.format, passthrough{})
	}
	return el
}

// SortedIDs orders entry ids by ascending timestamp. Missing timestamps
// count as zero; ties fall back to the id.
func SortedIDs(entries map[string]capsule.Entry) []string {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := entries[ids[i]].Timestamp.SortKey(), entries[ids[j]].Timestamp.SortKey()
		if ti != tj {
			return ti < tj
		}
		return ids[i] < ids[j]
	})
	return ids
}
