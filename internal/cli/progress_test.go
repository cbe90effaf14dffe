package cli

import (
	"encoding/json"
	"errors"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/aiaio-go/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(t *testing.T, typ string, content any) client.Event {
	t.Helper()
	data, err := json.Marshal(content)
	require.NoError(t, err)
	return client.Event{Type: typ, Content: data}
}

func update(t *testing.T, m replyModel, msg tea.Msg) (replyModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	rm, ok := next.(replyModel)
	require.True(t, ok)
	return rm, cmd
}

var ctrlC = tea.KeyPressMsg{Code: 'c', Mod: tea.ModCtrl}

func TestReplyModelAccumulatesEvents(t *testing.T) {
	m := newReplyModel("http://srv", nil)

	m, _ = update(t, m, eventMsg(event(t, "reasoning", "thinking about it")))
	m, _ = update(t, m, eventMsg(event(t, "content", "He")))
	m, _ = update(t, m, eventMsg(event(t, "content", "llo")))
	m, _ = update(t, m, eventMsg(event(t, "image", map[string]any{
		"tool_name": "plot", "url_path": "/images/p.png", "format": "png",
	})))

	assert.Equal(t, "Hello", m.content)
	assert.Equal(t, "thinking about it", m.reasoning)
	require.Len(t, m.notes, 1)
	assert.Equal(t, "Image from plot: http://srv/images/p.png", m.notes[0])

	view := m.renderContent()
	assert.Contains(t, view, "Hello")
	assert.Contains(t, view, "generating")
}

func TestReplyModelDone(t *testing.T) {
	m := newReplyModel("", nil)
	m, _ = update(t, m, eventMsg(event(t, "content", "ok")))

	m, cmd := update(t, m, replyDoneMsg{conversationID: "conv-1"})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.done)
	assert.NoError(t, m.err)
	assert.Contains(t, m.renderContent(), "conv-1")
}

func TestReplyModelStreamError(t *testing.T) {
	m := newReplyModel("", nil)
	m, _ = update(t, m, eventMsg(event(t, "error", "Error: upstream down")))
	m, _ = update(t, m, replyDoneMsg{conversationID: "conv-1"})

	require.Error(t, m.err)
	assert.Equal(t, "Error: upstream down", m.err.Error())
}

func TestReplyModelCtrlC(t *testing.T) {
	stops := 0
	m := newReplyModel("", func() error {
		stops++
		return nil
	})

	// First press asks the server to stop.
	m, cmd := update(t, m, ctrlC)
	require.NotNil(t, cmd)
	assert.True(t, m.stopping)
	assert.False(t, m.quitting)
	msg := cmd()
	assert.Equal(t, stopSentMsg{}, msg)
	assert.Equal(t, 1, stops)
	m, _ = update(t, m, msg)
	assert.Contains(t, m.renderContent(), "stopping")

	// Second press abandons the reply.
	m, cmd = update(t, m, ctrlC)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.quitting)
	assert.Equal(t, 1, stops)
}

func TestReplyModelStopFailure(t *testing.T) {
	m := newReplyModel("", func() error { return errors.New("closed") })

	m, cmd := update(t, m, ctrlC)
	m, _ = update(t, m, cmd())
	assert.False(t, m.stopping, "a failed stop can be retried")
	require.Len(t, m.notes, 1)
	assert.Contains(t, m.notes[0], "closed")
}

func TestReplyModelWithoutControlQuits(t *testing.T) {
	m := newReplyModel("", nil)
	m, cmd := update(t, m, ctrlC)
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
}
