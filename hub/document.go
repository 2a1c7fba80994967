package hub

import (
	"context"
	"errors"

	"github.com/brunokim/woot/logging"
	"github.com/brunokim/woot/woot"
)

// document owns the hub replica of a document. Its state is only touched by the run goroutine;
// connections talk to it through the inbox.
type document struct {
	id    string
	cfg   Config
	log   logging.Logger
	inbox chan any
	done  chan struct{}

	// Owned by run.
	site        *woot.Site
	clients     map[*client]struct{}
	updates     <-chan []byte
	unsubscribe func()
	poolWarned  bool
}

type joinRequest struct {
	c     *client
	reply chan struct{}
}

type leaveRequest struct {
	c *client
}

type replyRequest struct {
	c   *client
	msg []byte
}

func newDocument(id string, cfg Config, log logging.Logger, updates <-chan []byte, unsubscribe func()) *document {
	site, err := woot.NewSite(hubSite, 0)
	if err != nil {
		panic(err)
	}
	return &document{
		id:          id,
		cfg:         cfg,
		log:         log,
		inbox:       make(chan any),
		done:        make(chan struct{}),
		site:        site,
		clients:     make(map[*client]struct{}),
		updates:     updates,
		unsubscribe: unsubscribe,
	}
}

// Sends a request to the run goroutine, failing if it's already stopped.
func (d *document) request(req any) error {
	select {
	case d.inbox <- req:
		return nil
	case <-d.done:
		return ErrClosed
	}
}

// join registers the client and queues the current snapshot as its first message.
func (d *document) join(c *client) error {
	reply := make(chan struct{})
	if err := d.request(joinRequest{c, reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-d.done:
		return ErrClosed
	}
}

func (d *document) leave(c *client) {
	d.request(leaveRequest{c})
}

// reply queues a message to a single client, if it's still connected.
func (d *document) reply(c *client, msg []byte) {
	d.request(replyRequest{c, msg})
}

func (d *document) run(ctx context.Context) {
	ctx = logging.WithDefaultArgs(ctx, "doc", d.id)
	defer func() {
		d.unsubscribe()
		for c := range d.clients {
			close(c.send)
		}
		Clients.DeleteLabelValues(d.id)
		PoolDepth.DeleteLabelValues(d.id)
		close(d.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.inbox:
			switch req := req.(type) {
			case joinRequest:
				d.handleJoin(ctx, req)
			case leaveRequest:
				d.remove(req.c)
			case replyRequest:
				if _, ok := d.clients[req.c]; ok {
					d.deliver(ctx, req.c, req.msg)
				}
			}
		case payload, ok := <-d.updates:
			if !ok {
				d.log.ErrorCtx(ctx, "relay subscription closed")
				return
			}
			d.integrate(ctx, payload)
		}
	}
}

func (d *document) handleJoin(ctx context.Context, req joinRequest) {
	snap := d.site.Snapshot()
	d.clients[req.c] = struct{}{}
	Clients.WithLabelValues(d.id).Set(float64(len(d.clients)))
	d.deliver(ctx, req.c, encode(message{
		Type:     msgSnapshot,
		Doc:      d.id,
		Site:     req.c.site,
		Snapshot: &snap,
	}))
	close(req.reply)
	d.log.InfoCtx(ctx, "client joined", "site", req.c.site, "clients", len(d.clients))
}

func (d *document) remove(c *client) {
	if _, ok := d.clients[c]; !ok {
		return
	}
	delete(d.clients, c)
	close(c.send)
	Clients.WithLabelValues(d.id).Set(float64(len(d.clients)))
}

// Queues a message without blocking. A client that can't keep up is disconnected.
func (d *document) deliver(ctx context.Context, c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		d.log.WarnCtx(ctx, "dropping slow client", "site", c.site)
		d.remove(c)
	}
}

// Reports whether op survived the error Receive returned for it. An error from draining the
// pool doesn't reject the operation that triggered the drain.
func (d *document) accepted(op woot.Operation, err error) bool {
	if errors.Is(err, woot.ErrMalformedOperation) {
		return false
	}
	if op.Type != woot.OpInsert {
		return true
	}
	_, ok := d.site.Lookup(op.ID)
	return ok
}

// Integrates an operation from the relay into the replica, and forwards it to every client.
//
// The relay may carry messages from other hubs, so they are validated again.
func (d *document) integrate(ctx context.Context, payload []byte) {
	op, err := woot.DecodeOperation(payload)
	if err != nil {
		OpsRejected.Inc()
		d.log.WarnCtx(ctx, "invalid operation from relay", "error", err)
		return
	}
	if err := d.site.Receive(op); err != nil {
		OpsRejected.Inc()
		d.log.WarnCtx(ctx, "failed to integrate operation", "op", op, "error", err)
		if !d.accepted(op, err) {
			return
		}
	}
	OpsTotal.WithLabelValues(string(op.Type)).Inc()
	d.checkPool(ctx)
	if d.cfg.Trace != nil {
		d.cfg.Trace(d.id, op, d.site.String())
	}

	msg := encode(message{Type: msgOp, Op: payload})
	for c := range d.clients {
		d.deliver(ctx, c, msg)
	}
}

// Updates the pool gauge, warning once each time the depth goes above the threshold.
func (d *document) checkPool(ctx context.Context) {
	depth := d.site.PoolSize()
	PoolDepth.WithLabelValues(d.id).Set(float64(depth))
	if d.cfg.PoolWarn <= 0 {
		return
	}
	switch {
	case depth > d.cfg.PoolWarn && !d.poolWarned:
		d.poolWarned = true
		d.log.WarnCtx(ctx, "pool depth above threshold", "depth", depth, "threshold", d.cfg.PoolWarn)
	case depth <= d.cfg.PoolWarn:
		d.poolWarned = false
	}
}
