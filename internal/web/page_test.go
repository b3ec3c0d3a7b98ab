package web

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mnhsh/digital-capsule/internal/capsule"
	"github.com/mnhsh/digital-capsule/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func element(id, msg string) render.Element {
	return render.Element{ID: id, Author: "Ana", Posted: "Mar 1, 2025, 9:30 AM", Message: msg}
}

func ids(snap Snapshot) []string {
	out := make([]string, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		out = append(out, e.ID)
	}
	return out
}

// runHub starts h and stops it when the test ends.
func runHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(zap.NewNop())
	go h.Run(t.Context())
	return h
}

func testClient(h *Hub) *Client {
	return &Client{ID: uuid.New(), Hub: h, Send: make(chan []byte, 16)}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
		return Message{}
	}
}

func TestPageTracksSurfaceCalls(t *testing.T) {
	t.Parallel()
	p := NewPage(nil, zap.NewNop())

	snap := p.Snapshot()
	assert.Equal(t, [4]string{"00", "00", "00", "00"}, snap.Fields)
	assert.False(t, snap.Unlocked)

	p.SetCountdown(capsule.Countdown{Days: 3, Hours: 4, Minutes: 5, Seconds: 6})
	p.Append(element("a", "first"))
	p.Append(element("b", "second"))
	p.Replace(element("a", "edited"))
	p.Replace(element("c", "late"))

	snap = p.Snapshot()
	assert.Equal(t, [4]string{"03", "04", "05", "06"}, snap.Fields)
	assert.Equal(t, []string{"a", "b", "c"}, ids(snap))
	assert.Contains(t, string(snap.Entries[0].HTML), "edited")
	assert.NotContains(t, string(snap.Entries[0].HTML), "first")

	p.Unlock()
	p.ShowError(render.ErrorText)
	snap = p.Snapshot()
	assert.True(t, snap.Unlocked)
	assert.Equal(t, render.ErrorText, snap.Error)

	p.Clear()
	snap = p.Snapshot()
	assert.Empty(t, snap.Entries)
	assert.Empty(t, snap.Error)

	p.Append(element("a", "again"))
	assert.Equal(t, []string{"a"}, ids(p.Snapshot()))
}

func TestPageSnapshotIsACopy(t *testing.T) {
	t.Parallel()
	p := NewPage(nil, zap.NewNop())
	p.Append(element("a", "x"))

	snap := p.Snapshot()
	snap.Entries[0].ID = "mutated"
	assert.Equal(t, []string{"a"}, ids(p.Snapshot()))
}

func TestPageWriteHTML(t *testing.T) {
	t.Parallel()
	p := NewPage(nil, zap.NewNop())
	p.SetCountdown(capsule.Countdown{Days: 12, Seconds: 9})
	p.Append(element("a", "<b>hello</b>"))

	info := Info{Title: "Batch <2025>", RevealText: "May 1, 2028, 9:00 AM", FormURL: "https://forms.example/x"}

	var sb strings.Builder
	require.NoError(t, p.WriteHTML(&sb, info))
	out := sb.String()

	assert.Contains(t, out, `<h1 id="batch-title">Batch &lt;2025&gt;</h1>`)
	assert.Contains(t, out, `<span id="cd-days">12</span>`)
	assert.Contains(t, out, `<span id="cd-secs">09</span>`)
	assert.Contains(t, out, `id="capsule-contents" class="hidden"`)
	assert.Contains(t, out, `<div class="entry" data-id="a">`)
	assert.Contains(t, out, "&lt;b&gt;hello&lt;/b&gt;")
	assert.Contains(t, out, `href="https://forms.example/x"`)

	p.Unlock()
	sb.Reset()
	require.NoError(t, p.WriteHTML(&sb, Info{Title: "t"}))
	out = sb.String()
	assert.Contains(t, out, `id="capsule-lock" class="hidden"`)
	assert.NotContains(t, out, `id="submit-link"`)
}

func TestHubBroadcast(t *testing.T) {
	t.Parallel()
	h := runHub(t)

	a, b := testClient(h), testClient(h)
	h.Register <- a
	h.Register <- b

	h.publish(&Message{Type: MsgUnlock})
	assert.Equal(t, MsgUnlock, receive(t, a).Type)
	assert.Equal(t, MsgUnlock, receive(t, b).Type)
	assert.Equal(t, 2, h.Len())

	h.Unregister <- a
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, time.Millisecond)
	_, ok := <-a.Send
	assert.False(t, ok)
}

func TestAttachSyncsThenStreams(t *testing.T) {
	t.Parallel()
	h := runHub(t)
	p := NewPage(h, zap.NewNop())
	p.Unlock()
	p.Append(element("a", "before"))

	c := testClient(h)
	p.Attach(c)

	sync := receive(t, c)
	require.Equal(t, MsgSync, sync.Type)
	require.NotNil(t, sync.State)
	assert.True(t, sync.State.Unlocked)
	assert.Equal(t, []string{"a"}, ids(*sync.State))

	p.Append(element("b", "after"))
	msg := receive(t, c)
	assert.Equal(t, MsgAppend, msg.Type)
	assert.Equal(t, "b", msg.ID)
	assert.Contains(t, msg.HTML, "after")

	p.SetCountdown(capsule.Countdown{Minutes: 1})
	msg = receive(t, c)
	assert.Equal(t, MsgCountdown, msg.Type)
	assert.Equal(t, []string{"00", "00", "01", "00"}, msg.Fields)
}

func TestUnchangedCountdownIsNotBroadcast(t *testing.T) {
	t.Parallel()
	h := runHub(t)
	p := NewPage(h, zap.NewNop())
	c := testClient(h)
	p.Attach(c)
	require.Equal(t, MsgSync, receive(t, c).Type)

	p.SetCountdown(capsule.Countdown{})
	p.ShowError("x")
	assert.Equal(t, MsgError, receive(t, c).Type)
}
