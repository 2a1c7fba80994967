package woot

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// OpType is the kind of an operation.
type OpType string

// Operation types.
const (
	OpInsert    OpType = "insert"
	OpDelete    OpType = "delete"
	OpAttribute OpType = "attribute"
	OpPresence  OpType = "presence"
)

// Operation is a causally self-describing change to the sequence, as exchanged between sites.
type Operation struct {
	Type OpType
	// ID is the inserted char for inserts, or the target char for deletes and attribute changes.
	ID ID
	// Value is the inserted char. Inserts only.
	Value rune
	// Attributes are the initial attributes of an inserted char, or the update for an attribute
	// change.
	Attributes Attributes
	// Prev and Next are the insertion context. Inserts only.
	Prev, Next ID
	// Site and Pos announce a site's cursor. Presence only.
	Site uint32
	Pos  int

	// Fields present in the decoded message, used for validation.
	present fieldSet
}

type fieldSet uint8

const (
	hasID fieldSet = 1 << iota
	hasValue
	hasPrev
	hasNext
	hasSite
)

// Constructors for locally built operations mark their fields as present.

// InsertOp builds an insert operation for the given char.
func InsertOp(c Char) Operation {
	return Operation{
		Type:       OpInsert,
		ID:         c.ID,
		Value:      c.Value,
		Attributes: c.Attributes.Clone(),
		Prev:       c.Prev,
		Next:       c.Next,
		present:    hasID | hasValue | hasPrev | hasNext,
	}
}

// DeleteOp builds a delete operation targeting id.
func DeleteOp(id ID) Operation {
	return Operation{Type: OpDelete, ID: id, present: hasID}
}

// AttributeOp builds an attribute operation targeting id.
func AttributeOp(id ID, attrs Attributes) Operation {
	return Operation{Type: OpAttribute, ID: id, Attributes: attrs.Clone(), present: hasID}
}

// PresenceOp builds a presence announcement for a site's cursor.
func PresenceOp(site uint32, pos int) Operation {
	return Operation{Type: OpPresence, Site: site, Pos: pos, present: hasSite}
}

func (op Operation) String() string {
	switch op.Type {
	case OpInsert:
		return fmt.Sprintf("insert %q %v (%v, %v)", op.Value, op.ID, op.Prev, op.Next)
	case OpDelete:
		return fmt.Sprintf("delete %v", op.ID)
	case OpAttribute:
		return fmt.Sprintf("attribute %v %v", op.ID, op.Attributes)
	case OpPresence:
		return fmt.Sprintf("presence S%d @ %d", op.Site, op.Pos)
	}
	return fmt.Sprintf("unknown(%q)", op.Type)
}

// char builds the record described by an insert operation.
func (op Operation) char() *Char {
	return &Char{
		ID:         op.ID,
		Visible:    true,
		Value:      op.Value,
		Attributes: op.Attributes.withoutNils(),
		Prev:       op.Prev,
		Next:       op.Next,
	}
}

// Validate checks that the operation is well-formed. Errors wrap ErrMalformedOperation.
func (op Operation) Validate() error {
	missing := func(name string) error {
		return fmt.Errorf("%w: %s without %s", ErrMalformedOperation, op.Type, name)
	}
	switch op.Type {
	case OpInsert:
		if op.present&hasID == 0 {
			return missing("id")
		}
		if op.present&hasPrev == 0 {
			return missing("prevId")
		}
		if op.present&hasNext == 0 {
			return missing("nextId")
		}
		if op.present&hasValue == 0 {
			return missing("value")
		}
		if op.ID.IsSentinel() {
			return fmt.Errorf("%w: insert with reserved id %v", ErrMalformedOperation, op.ID)
		}
		if op.Value == 0 || !utf8.ValidRune(op.Value) {
			return fmt.Errorf("%w: insert %v with invalid char %U", ErrMalformedOperation, op.ID, op.Value)
		}
		if op.Prev == EndID || op.Next == StartID || op.Prev == op.ID || op.Next == op.ID {
			return fmt.Errorf("%w: insert %v with invalid context (%v, %v)", ErrMalformedOperation, op.ID, op.Prev, op.Next)
		}
	case OpDelete, OpAttribute:
		if op.present&hasID == 0 {
			return missing("id")
		}
		if op.ID.IsSentinel() {
			return fmt.Errorf("%w: %s targets sentinel %v", ErrMalformedOperation, op.Type, op.ID)
		}
	case OpPresence:
		if op.present&hasSite == 0 {
			return missing("site")
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedOperation, op.Type)
	}
	return nil
}

// +------+
// | JSON |
// +------+

type wireOperation struct {
	Type       OpType     `json:"type"`
	ID         *ID        `json:"id,omitempty"`
	Value      *string    `json:"value,omitempty"`
	Attributes Attributes `json:"attributes,omitempty"`
	Prev       *ID        `json:"prevId,omitempty"`
	Next       *ID        `json:"nextId,omitempty"`
	Site       *uint32    `json:"site,omitempty"`
	Pos        int        `json:"pos,omitempty"`
}

// MarshalJSON encodes the operation in its wire shape.
func (op Operation) MarshalJSON() ([]byte, error) {
	w := wireOperation{Type: op.Type}
	switch op.Type {
	case OpInsert:
		id, prev, next := op.ID, op.Prev, op.Next
		value := string(op.Value)
		w.ID, w.Prev, w.Next, w.Value = &id, &prev, &next, &value
		w.Attributes = op.Attributes
	case OpDelete:
		id := op.ID
		w.ID = &id
	case OpAttribute:
		id := op.ID
		w.ID = &id
		w.Attributes = op.Attributes
		if w.Attributes == nil {
			w.Attributes = Attributes{}
		}
	case OpPresence:
		site := op.Site
		w.Site = &site
		w.Pos = op.Pos
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedOperation, op.Type)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an operation from its wire shape.
//
// Missing fields are not an error here; they're reported by Validate.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOperation, err)
	}
	*op = Operation{Type: w.Type, Attributes: w.Attributes, Pos: w.Pos}
	if w.ID != nil {
		op.ID = *w.ID
		op.present |= hasID
	}
	if w.Prev != nil {
		op.Prev = *w.Prev
		op.present |= hasPrev
	}
	if w.Next != nil {
		op.Next = *w.Next
		op.present |= hasNext
	}
	if w.Site != nil {
		op.Site = *w.Site
		op.present |= hasSite
	}
	if w.Value != nil {
		ch, size := utf8.DecodeRuneInString(*w.Value)
		if size == 0 || size != len(*w.Value) || ch == utf8.RuneError {
			return fmt.Errorf("%w: value %q is not a single char", ErrMalformedOperation, *w.Value)
		}
		op.Value = ch
		op.present |= hasValue
	}
	return nil
}

// DecodeOperation parses and validates an operation received from the wire.
func DecodeOperation(data []byte) (Operation, error) {
	var op Operation
	if err := json.Unmarshal(data, &op); err != nil {
		if !errors.Is(err, ErrMalformedOperation) {
			err = fmt.Errorf("%w: %v", ErrMalformedOperation, err)
		}
		return Operation{}, err
	}
	if err := op.Validate(); err != nil {
		return Operation{}, err
	}
	return op, nil
}
