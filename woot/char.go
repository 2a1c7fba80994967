package woot

import (
	"encoding/json"
	"fmt"
	"reflect"
	"unicode/utf8"
)

// Attributes maps formatting attribute names to values, like "bold": true.
//
// A missing key means the attribute is unset. In an update, a nil value clears the key.
type Attributes map[string]any

// Merge applies update to a, adding new keys, overwriting changed ones and removing keys whose
// update value is nil. Returns whether a was modified.
func (a Attributes) Merge(update Attributes) bool {
	var changed bool
	for k, v := range update {
		old, ok := a[k]
		if v == nil {
			if ok {
				delete(a, k)
				changed = true
			}
			continue
		}
		if ok && reflect.DeepEqual(old, v) {
			continue
		}
		a[k] = v
		changed = true
	}
	return changed
}

// Clone returns a shallow copy of a. A nil map clones to nil.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	b := make(Attributes, len(a))
	for k, v := range a {
		b[k] = v
	}
	return b
}

// withoutNils returns a copy of a without cleared keys, to be stored in a new char.
func (a Attributes) withoutNils() Attributes {
	var b Attributes
	for k, v := range a {
		if v == nil {
			continue
		}
		if b == nil {
			b = make(Attributes, len(a))
		}
		b[k] = v
	}
	return b
}

// Char is a character record in the replicated sequence.
type Char struct {
	// ID is the identifier of this char, assigned by its origin site.
	ID ID
	// Visible is false for tombstones. Once false it's never true again.
	Visible bool
	// Value is the character itself.
	Value rune
	// Attributes holds formatting for this char. It's mutated in place by attribute operations.
	Attributes Attributes
	// Prev is the identifier of the visible char preceding this one when it was created.
	Prev ID
	// Next is the identifier of the visible char following this one when it was created.
	Next ID
}

func (c Char) String() string {
	v := "+"
	if !c.Visible {
		v = "-"
	}
	return fmt.Sprintf("Char(%v%s%q,%v,%v)", c.ID, v, c.Value, c.Prev, c.Next)
}

func (c *Char) clone() *Char {
	d := *c
	d.Attributes = c.Attributes.Clone()
	return &d
}

func newSentinels() (start, end *Char) {
	start = &Char{ID: StartID, Visible: true, Prev: StartID, Next: EndID}
	end = &Char{ID: EndID, Visible: true, Prev: StartID, Next: EndID}
	return start, end
}

type wireChar struct {
	ID         ID         `json:"id"`
	Visible    bool       `json:"visible"`
	Value      string     `json:"value"`
	Attributes Attributes `json:"attributes,omitempty"`
	Prev       ID         `json:"prevId"`
	Next       ID         `json:"nextId"`
}

// MarshalJSON encodes the char with the same field names as an insert operation.
func (c Char) MarshalJSON() ([]byte, error) {
	w := wireChar{
		ID:         c.ID,
		Visible:    c.Visible,
		Attributes: c.Attributes,
		Prev:       c.Prev,
		Next:       c.Next,
	}
	if !c.ID.IsSentinel() {
		w.Value = string(c.Value)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a char. Sentinels have an empty value.
func (c *Char) UnmarshalJSON(data []byte) error {
	var w wireChar
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = Char{
		ID:         w.ID,
		Visible:    w.Visible,
		Attributes: w.Attributes,
		Prev:       w.Prev,
		Next:       w.Next,
	}
	if w.Value == "" {
		return nil
	}
	ch, size := utf8.DecodeRuneInString(w.Value)
	if size != len(w.Value) || ch == utf8.RuneError {
		return fmt.Errorf("char %v: value %q is not a single char", w.ID, w.Value)
	}
	c.Value = ch
	return nil
}
