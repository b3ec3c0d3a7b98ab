package web

import (
	"embed"
	"html/template"
	"io"
	"sync"

	"github.com/mnhsh/digital-capsule/internal/capsule"
	"github.com/mnhsh/digital-capsule/internal/render"
	"go.uber.org/zap"
)

//go:embed templates/page.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

// EntryHTML is one rendered entry as it sits in the entries grid.
type EntryHTML struct {
	ID   string        `json:"id"`
	HTML template.HTML `json:"html"`
}

// Snapshot is everything a browser needs to draw the page from scratch.
type Snapshot struct {
	Fields   [4]string   `json:"fields"`
	Unlocked bool        `json:"unlocked"`
	Entries  []EntryHTML `json:"entries"`
	Error    string      `json:"error,omitempty"`
}

// Info is the static part of the page.
type Info struct {
	Title      string
	RevealText string
	FormURL    string
}

// Page is the server-side copy of the capsule page. It implements
// render.Surface and mirrors every change to connected browsers.
type Page struct {
	mu      sync.Mutex
	hub     *Hub
	logger  *zap.Logger
	state   Snapshot
	indexOf map[string]int
}

// NewPage creates a locked, empty page. hub may be nil when nothing
// needs live updates.
func NewPage(hub *Hub, logger *zap.Logger) *Page {
	return &Page{
		hub:     hub,
		logger:  logger.Named("page"),
		state:   Snapshot{Fields: capsule.Countdown{}.Fields()},
		indexOf: make(map[string]int),
	}
}

func (p *Page) SetCountdown(c capsule.Countdown) {
	fields := c.Fields()
	p.mu.Lock()
	defer p.mu.Unlock()
	if fields == p.state.Fields {
		return
	}
	p.state.Fields = fields
	p.publish(&Message{Type: MsgCountdown, Fields: fields[:]})
}

func (p *Page) Unlock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Unlocked {
		return
	}
	p.state.Unlocked = true
	p.publish(&Message{Type: MsgUnlock})
}

func (p *Page) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Entries = nil
	p.state.Error = ""
	p.indexOf = make(map[string]int)
	p.publish(&Message{Type: MsgClear})
}

func (p *Page) Append(el render.Element) {
	html, ok := p.html(el)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appendLocked(el.ID, html)
}

// Replace swaps an entry in place, or appends it if the page never had it.
func (p *Page) Replace(el render.Element) {
	html, ok := p.html(el)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	i, found := p.indexOf[el.ID]
	if !found {
		p.appendLocked(el.ID, html)
		return
	}
	p.state.Entries[i].HTML = html
	p.publish(&Message{Type: MsgReplace, ID: el.ID, HTML: string(html)})
}

func (p *Page) ShowError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Error = msg
	p.publish(&Message{Type: MsgError, Text: msg})
}

// Snapshot returns a copy of the current page state.
func (p *Page) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Attach starts sending updates to client, beginning with a full sync.
// Holding the page lock keeps the sync and later updates in order.
func (p *Page) Attach(client *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.snapshotLocked()
	client.Hub.add(client, mustMarshal(&Message{Type: MsgSync, State: &snap}))
}

// WriteHTML renders the full page.
func (p *Page) WriteHTML(w io.Writer, info Info) error {
	data := struct {
		Info
		Snapshot
	}{info, p.Snapshot()}
	return pageTemplate.Execute(w, data)
}

func (p *Page) appendLocked(id string, html template.HTML) {
	p.indexOf[id] = len(p.state.Entries)
	p.state.Entries = append(p.state.Entries, EntryHTML{ID: id, HTML: html})
	p.publish(&Message{Type: MsgAppend, ID: id, HTML: string(html)})
}

func (p *Page) snapshotLocked() Snapshot {
	snap := p.state
	snap.Entries = append([]EntryHTML(nil), p.state.Entries...)
	return snap
}

func (p *Page) html(el render.Element) (template.HTML, bool) {
	html, err := render.HTML(el)
	if err != nil {
		p.logger.Error("Failed to render entry", zap.String("id", el.ID), zap.Error(err))
		return "", false
	}
	return html, true
}

func (p *Page) publish(msg *Message) {
	if p.hub != nil {
		p.hub.publish(msg)
	}
}
