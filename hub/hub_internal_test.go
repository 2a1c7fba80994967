package hub

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunokim/woot/logging"
)

func TestJoinStoppedDocument(t *testing.T) {
	h := New(Config{}, NewLocalRelay(), NewCounterAllocator(), nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	t.Cleanup(h.Close)

	// A document that stopped but wasn't removed from the hub yet.
	d := newDocument("doc-stopped", h.cfg, logging.Discard(), nil, func() {})
	close(d.done)
	h.mu.Lock()
	h.docs[d.id] = d
	h.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(message{Type: msgInit, Doc: d.id}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, msgError, msg.Type)
	assert.Equal(t, ErrClosed.Error(), msg.Error)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}
