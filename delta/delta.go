// Package delta translates between editor-side changes and replicated sequence operations.
//
// Changes are expressed as deltas, a list of runs walking the visible text from its start:
//
//	text:   h e l l o
//	delta:  [retain 2] [delete 2] [insert "y"] [retain 1 {bold}]
//	result: h e y o(bold)
//
// A trailing unformatted retain is implicit and dropped.
package delta

import (
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/brunokim/woot/woot"
)

// Run is a single step of a delta. Exactly one of Retain, Insert and Delete is set.
//
// Attributes apply to inserted text, or are merged into retained text.
type Run struct {
	Retain     int             `json:"retain,omitempty"`
	Insert     string          `json:"insert,omitempty"`
	Delete     int             `json:"delete,omitempty"`
	Attributes woot.Attributes `json:"attributes,omitempty"`
}

func (r Run) String() string {
	var b strings.Builder
	switch {
	case r.Insert != "":
		fmt.Fprintf(&b, "insert %q", r.Insert)
	case r.Delete > 0:
		fmt.Fprintf(&b, "delete %d", r.Delete)
	default:
		fmt.Fprintf(&b, "retain %d", r.Retain)
	}
	if len(r.Attributes) > 0 {
		fmt.Fprintf(&b, " %v", r.Attributes)
	}
	return b.String()
}

func (r Run) isEmpty() bool {
	return r.Retain <= 0 && r.Insert == "" && r.Delete <= 0
}

// Delta is a change to a text, as a sequence of runs.
type Delta []Run

// Appends a run, merging it into the last one if they have the same kind and attributes.
func (d Delta) push(r Run) Delta {
	if r.isEmpty() {
		return d
	}
	if n := len(d); n > 0 {
		last := &d[n-1]
		if reflect.DeepEqual(last.Attributes, r.Attributes) {
			switch {
			case last.Insert != "" && r.Insert != "":
				last.Insert += r.Insert
				return d
			case last.Delete > 0 && r.Delete > 0:
				last.Delete += r.Delete
				return d
			case last.Retain > 0 && r.Retain > 0:
				last.Retain += r.Retain
				return d
			}
		}
	}
	return append(d, r)
}

// Drops a trailing unformatted retain.
func (d Delta) trimRetain() Delta {
	if n := len(d); n > 0 && d[n-1].Retain > 0 && len(d[n-1].Attributes) == 0 {
		if n == 1 {
			return nil
		}
		return d[:n-1]
	}
	return d
}

// Compact merges adjacent runs of the same kind and drops empty runs.
func (d Delta) Compact() Delta {
	var out Delta
	for _, r := range d {
		out = out.push(r)
	}
	return out.trimRetain()
}

// BaseLen returns the number of chars the delta expects in the text it's applied to, not
// counting the implicit trailing retain.
func (d Delta) BaseLen() int {
	var n int
	for _, r := range d {
		n += r.Retain + r.Delete
	}
	return n
}

// Checks that the delta has no negative counts and fits in a text with size chars.
func (d Delta) checkSpan(size int) error {
	for i, r := range d {
		if r.Retain < 0 || r.Delete < 0 {
			return fmt.Errorf("%w: run %d (%v) has a negative count", woot.ErrPositionOutOfRange, i, r)
		}
	}
	if n := d.BaseLen(); n > size {
		return fmt.Errorf("%w: delta spans %d chars, text has %d", woot.ErrPositionOutOfRange, n, size)
	}
	return nil
}

// ApplyText applies the delta to a plain text, ignoring attributes.
func ApplyText(text string, d Delta) (string, error) {
	chars := []rune(text)
	if err := d.checkSpan(len(chars)); err != nil {
		return "", err
	}
	var b strings.Builder
	var pos int
	for _, r := range d {
		switch {
		case r.Insert != "":
			b.WriteString(r.Insert)
		case r.Delete > 0:
			pos += r.Delete
		default:
			b.WriteString(string(chars[pos : pos+r.Retain]))
			pos += r.Retain
		}
	}
	b.WriteString(string(chars[pos:]))
	return b.String(), nil
}

// Generator creates local operations on a replica.
type Generator interface {
	VisibleLen() int
	GenerateInsertString(pos int, str string, attrs woot.Attributes) ([]woot.Operation, error)
	GenerateDeleteRange(pos, count int) ([]woot.Operation, error)
	GenerateAttribute(pos int, attrs woot.Attributes) (woot.Operation, error)
}

// Apply performs the delta as local operations, returning the operations to be broadcast.
//
// The delta is checked for negative counts and against the visible length before any operation
// is generated. Operations
// applied before a later failure are still returned along with the error.
func Apply(g Generator, d Delta) ([]woot.Operation, error) {
	if err := d.checkSpan(g.VisibleLen()); err != nil {
		return nil, err
	}
	var ops []woot.Operation
	var pos int
	for _, r := range d {
		switch {
		case r.Insert != "":
			inserted, err := g.GenerateInsertString(pos, r.Insert, r.Attributes)
			ops = append(ops, inserted...)
			if err != nil {
				return ops, err
			}
			pos += utf8.RuneCountInString(r.Insert)
		case r.Delete > 0:
			deleted, err := g.GenerateDeleteRange(pos, r.Delete)
			ops = append(ops, deleted...)
			if err != nil {
				return ops, err
			}
		case len(r.Attributes) > 0:
			for k := 0; k < r.Retain; k++ {
				op, err := g.GenerateAttribute(pos, r.Attributes)
				if err != nil {
					return ops, err
				}
				ops = append(ops, op)
				pos++
			}
		default:
			pos += r.Retain
		}
	}
	return ops, nil
}

// +----------+
// | Recorder |
// +----------+

// Recorder is a woot.Observer that records every visible change as a delta.
type Recorder struct {
	deltas []Delta
}

var _ woot.Observer = (*Recorder)(nil)

// OnInsert records an insertion.
func (r *Recorder) OnInsert(pos int, value rune, attrs woot.Attributes) {
	r.record(pos, Run{Insert: string(value), Attributes: attrs})
}

// OnDelete records a deletion.
func (r *Recorder) OnDelete(pos int) {
	r.record(pos, Run{Delete: 1})
}

// OnAttribute records an attribute change.
func (r *Recorder) OnAttribute(pos int, attrs woot.Attributes) {
	r.record(pos, Run{Retain: 1, Attributes: attrs})
}

func (r *Recorder) record(pos int, run Run) {
	d := Delta{}.push(Run{Retain: pos}).push(run)
	r.deltas = append(r.deltas, d)
}

// Len returns the number of recorded deltas.
func (r *Recorder) Len() int {
	return len(r.deltas)
}

// Flush returns the recorded deltas in order and clears the recorder.
func (r *Recorder) Flush() []Delta {
	deltas := r.deltas
	r.deltas = nil
	return deltas
}
