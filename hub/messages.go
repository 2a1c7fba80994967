package hub

import (
	"encoding/json"

	"github.com/brunokim/woot/woot"
)

// Message types exchanged with clients.
const (
	// Client to server: join a document.
	msgInit = "init"
	// Server to client: the document state and the site allocated to the client.
	msgSnapshot = "snapshot"
	// Both ways: an operation on the document.
	msgOp = "op"
	// Server to client: a rejected message.
	msgError = "error"
)

// message is the envelope of every websocket message. Fields are set according to Type.
type message struct {
	Type     string          `json:"type"`
	Doc      string          `json:"doc,omitempty"`
	Site     uint32          `json:"site,omitempty"`
	Snapshot *woot.Snapshot  `json:"snapshot,omitempty"`
	Op       json.RawMessage `json:"op,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func encode(msg message) []byte {
	bs, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return bs
}

func errorMessage(err error) []byte {
	return encode(message{Type: msgError, Error: err.Error()})
}
