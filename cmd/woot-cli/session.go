package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/brunokim/woot/delta"
	"github.com/brunokim/woot/woot"
)

// Client side of the hub protocol.
type wireMessage struct {
	Type     string          `json:"type"`
	Doc      string          `json:"doc,omitempty"`
	Site     uint32          `json:"site,omitempty"`
	Snapshot *woot.Snapshot  `json:"snapshot,omitempty"`
	Op       *woot.Operation `json:"op,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// session is a local replica of a document, kept in sync with a hub.
//
// The replica is shared between the reader goroutine and the editing goroutine. Only the editing
// goroutine writes to the connection.
type session struct {
	conn *websocket.Conn
	doc  string
	out  io.Writer

	mu      sync.Mutex
	replica *woot.Site
	rec     delta.Recorder
}

// Joins a document, or a new one if doc is empty.
func dialSession(ctx context.Context, url, doc string, out io.Writer) (*session, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if err := conn.WriteJSON(wireMessage{Type: "init", Doc: doc}); err != nil {
		conn.Close()
		return nil, err
	}
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		conn.Close()
		return nil, err
	}
	if msg.Type != "snapshot" || msg.Snapshot == nil {
		conn.Close()
		return nil, fmt.Errorf("join %q: %s", doc, msg.Error)
	}
	s := &session{conn: conn, doc: msg.Doc, out: out}
	s.replica, err = woot.Restore(msg.Site, 0, *msg.Snapshot, woot.WithObserver(&s.rec))
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() error {
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

// Integrates messages from the hub until the connection is closed, printing remote changes.
func (s *session) run() error {
	for {
		var msg wireMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		switch msg.Type {
		case "op":
			if msg.Op == nil {
				continue
			}
			s.mu.Lock()
			err := s.replica.Receive(*msg.Op)
			deltas := s.rec.Flush()
			s.mu.Unlock()
			if err != nil {
				fmt.Fprintf(s.out, "error: %v\n", err)
			}
			for _, d := range deltas {
				fmt.Fprintf(s.out, "remote: %v\n", d)
			}
		case "error":
			fmt.Fprintf(s.out, "error: %s\n", msg.Error)
		}
	}
}

func (s *session) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replica.String()
}

// Builds a change from the current text and applies it to the replica, holding the replica for
// the whole step so that remote operations can't shift positions in between.
func (s *session) generate(change func(text string) (delta.Delta, error)) ([]woot.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := change(s.replica.String())
	if err != nil {
		return nil, err
	}
	return delta.Apply(s.replica, d)
}

func (s *session) send(ops []woot.Operation) error {
	for _, op := range ops {
		if err := s.conn.WriteJSON(wireMessage{Type: "op", Op: &op}); err != nil {
			return err
		}
	}
	return nil
}

// Applies a local change and sends the resulting operations to the hub.
func (s *session) edit(d delta.Delta) error {
	ops, err := s.generate(func(string) (delta.Delta, error) { return d, nil })
	return errors.Join(s.send(ops), err)
}

// Replaces the whole text with the minimal change.
func (s *session) replace(text string) error {
	ops, err := s.generate(func(old string) (delta.Delta, error) {
		edits, err := delta.Diff(old, text)
		if err != nil {
			return nil, err
		}
		return delta.FromDiff(edits), nil
	})
	return errors.Join(s.send(ops), err)
}
