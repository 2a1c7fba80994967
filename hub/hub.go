// Package hub serves replicated documents to websocket clients.
//
// The hub keeps one replica per document, owned by a single goroutine. Clients join a document
// with an init message and receive a snapshot and a site ID; after that, every operation they
// send is published to a Relay, and every operation received from the relay is integrated into
// the hub replica and forwarded to all clients of the document, including its author:
//
//	client --op--> hub --publish--> relay --> hub replica --op--> clients
//
// With a shared relay, like RedisRelay, many hubs can serve the same document.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/brunokim/woot/logging"
	"github.com/brunokim/woot/woot"
)

// Errors returned by the hub.
var (
	ErrClosed         = errors.New("hub is closed")
	ErrSitesExhausted = errors.New("no more site IDs for document")
	ErrNotInitialized = errors.New("first message must be init")
	ErrUnknownMessage = errors.New("unknown message type")
)

var (
	newDocID = randomDocID // Stubbed for mocking in mocks_test.go
)

func randomDocID() string {
	return uuid.NewString()
}

// Config holds the hub tunables.
type Config struct {
	// PoolWarn is the pool depth above which a warning is logged. Zero disables the warning.
	PoolWarn int
	// SendBuffer is the number of messages queued for each client before it's disconnected.
	SendBuffer int
	// Trace, if set, is called after each operation integrated in a document replica, with the
	// resulting visible text. It's called from the document goroutine and must not block.
	Trace func(doc string, op woot.Operation, text string)
}

const defaultSendBuffer = 256

// Hub is an http.Handler accepting websocket connections for documents.
type Hub struct {
	cfg      Config
	relay    Relay
	sites    SiteAllocator
	log      logging.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	docs   map[string]*document
	closed bool
}

var _ http.Handler = (*Hub)(nil)

// New creates a hub. A nil log discards every record.
func New(cfg Config, relay Relay, sites SiteAllocator, log logging.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if log == nil {
		log = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:   cfg,
		relay: relay,
		sites: sites,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
		docs:   make(map[string]*document),
	}
}

// Close stops every document and disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()
	h.wg.Wait()
}

// Returns the running document, starting it if needed.
func (h *Hub) document(id string) (*document, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	if d, ok := h.docs[id]; ok {
		return d, nil
	}
	// The subscription outlives the request that started the document.
	updates, unsubscribe, err := h.relay.Subscribe(h.ctx, id)
	if err != nil {
		return nil, err
	}
	d := newDocument(id, h.cfg, h.log, updates, unsubscribe)
	h.docs[id] = d
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		d.run(h.ctx)
		h.mu.Lock()
		if h.docs[id] == d {
			delete(h.docs, id)
		}
		h.mu.Unlock()
	}()
	return d, nil
}

// +-------------+
// | Connections |
// +-------------+

type client struct {
	conn *websocket.Conn
	site uint32
	// send is closed by the document goroutine once the client is removed.
	send chan []byte
	done chan struct{}
}

// Writes queued messages until the send channel is closed. gorilla/websocket supports a single
// concurrent writer, so all writes after init go through here.
func (c *client) writePump() {
	defer close(c.done)
	defer c.conn.Close()
	for msg := range c.send {
		// On failure the read pump sees the broken connection, and the document removes this
		// client, closing send.
		c.conn.WriteMessage(websocket.TextMessage, msg)
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// ServeHTTP upgrades the request to a websocket and serves a single client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	if err := h.serve(r.Context(), conn); err != nil {
		h.log.Info("connection closed", "error", err)
	}
}

func (h *Hub) serve(ctx context.Context, conn *websocket.Conn) error {
	var init message
	if err := conn.ReadJSON(&init); err != nil {
		conn.Close()
		return err
	}
	if init.Type != msgInit {
		return h.refuse(conn, ErrNotInitialized)
	}
	docID := init.Doc
	if docID == "" {
		docID = newDocID()
	}
	ctx = logging.WithDefaultArgs(ctx, "doc", docID)
	site, err := h.sites.Next(ctx, docID)
	if err != nil {
		return h.refuse(conn, err)
	}
	d, err := h.document(docID)
	if err != nil {
		return h.refuse(conn, err)
	}

	c := &client{
		conn: conn,
		site: site,
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	// The snapshot waits in the send buffer until the write pump starts. Until then the
	// connection has no other writer, so a failed join can still be refused on it.
	if err := d.join(c); err != nil {
		return h.refuse(conn, err)
	}
	go c.writePump()
	err = h.readPump(ctx, d, c)
	d.leave(c)
	<-c.done
	return err
}

// Replies with an error and closes a connection that didn't join a document.
func (h *Hub) refuse(conn *websocket.Conn, err error) error {
	defer conn.Close()
	conn.WriteMessage(websocket.TextMessage, errorMessage(err))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
	return err
}

// Reads client messages, publishing valid operations to the relay.
func (h *Hub) readPump(ctx context.Context, d *document, c *client) error {
	for {
		_, buf, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		var msg message
		if err := json.Unmarshal(buf, &msg); err != nil {
			OpsRejected.Inc()
			d.reply(c, errorMessage(fmt.Errorf("%w: %v", woot.ErrMalformedOperation, err)))
			continue
		}
		if msg.Type != msgOp {
			d.reply(c, errorMessage(fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)))
			continue
		}
		op, err := woot.DecodeOperation(msg.Op)
		if err != nil {
			OpsRejected.Inc()
			h.log.DebugCtx(ctx, "rejected operation", "site", c.site, "error", err)
			d.reply(c, errorMessage(err))
			continue
		}
		payload, err := json.Marshal(op)
		if err != nil {
			return err
		}
		if err := h.relay.Publish(ctx, d.id, payload); err != nil {
			h.log.ErrorCtx(ctx, "failed to publish operation", "error", err)
			d.reply(c, errorMessage(err))
		}
	}
}
