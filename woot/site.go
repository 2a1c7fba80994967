/*
Package woot implements the WOOT (WithOut Operational Transformation) replicated sequence.

Each participant owns a Site holding the whole sequence of chars ever inserted, including
tombstones of deleted chars. Local edits are turned into causally self-describing operations
that other sites integrate in any order: an operation whose dependencies are not yet known is
kept in a pool until they arrive. All sites that integrated the same set of operations hold the
same sequence.

This implementation follows the algorithm proposed by Oster, Urso, Molli and Imine [1].

[1]: OSTER, Gérald et al. Data consistency for P2P collaborative editing. CSCW 2006.
*/
package woot

import (
	"errors"
	"fmt"
	"strings"
)

/*
The sequence is a flat slice of chars enclosed by two sentinels. Each char remembers the
visible chars around it at the moment of its creation, not its current neighbours:

  # BEGIN ASCII ART

            .------------- prev ------------.
            |          .------- next -------+--------.
            v          |                    |        v
  .-------.-----.-----.-----.-----.-----.-----.-------.
  | start |  a  |  b  |  x  |  y  |  c  |  d  |  end  |
  '-------'-----'-----'-----'-----'-----'-----'-------'
                  ^                 |
                  '------ prev -----'

  # END ASCII ART
  # ALT TEXT: A sequence start, a, b, x, y, c, d, end. The char 'd' was inserted between 'a'
              and 'end', and 'c' was inserted between 'b' and 'd'.

Deleting a char only flips its visibility, so the context of every char is always available.
*/

// +---------------------+
// | Operations - Errors |
// +---------------------+

// Errors returned by Site operations.
var (
	ErrReservedSite       = errors.New("site 0 is reserved for sentinels")
	ErrPositionOutOfRange = errors.New("position out of range")
	ErrClockExhausted     = errors.New("reached limit of local clock: 2³² (4.294.967.296)")
	ErrMalformedOperation = errors.New("malformed operation")
	ErrInvalidSnapshot    = errors.New("invalid snapshot")
)

// +-----------------------+
// | Basic data structures |
// +-----------------------+

// Site is a replica of the sequence.
//
// A Site is not safe for concurrent use. All operations on a site must be serialized by its
// owner, e.g., by a single goroutine per document.
type Site struct {
	// siteID is the site component of every ID minted locally.
	siteID uint32
	// clock is the clock component of the last ID minted locally.
	clock uint32
	// sequence is the ordered list of chars, including tombstones and both sentinels.
	sequence []*Char
	// byID indexes every char in sequence.
	byID map[ID]*Char
	// pool holds remote operations whose dependencies are not integrated yet.
	pool []Operation
	// observer is notified of every visible effect of remote operations.
	observer Observer
}

// Option configures a Site.
type Option func(*Site)

// WithObserver sets the observer notified of remote integrations.
func WithObserver(o Observer) Option {
	return func(s *Site) { s.observer = o }
}

// NewSite creates a site with an empty sequence.
//
// The clock is the last value already used by this site; the first local char gets clock+1.
func NewSite(siteID, clock uint32, opts ...Option) (*Site, error) {
	if siteID == 0 {
		return nil, ErrReservedSite
	}
	start, end := newSentinels()
	s := &Site{
		siteID:   siteID,
		clock:    clock,
		sequence: []*Char{start, end},
		byID:     map[ID]*Char{StartID: start, EndID: end},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SiteID returns the identifier of this site.
func (s *Site) SiteID() uint32 { return s.siteID }

// Clock returns the last clock value used by this site.
func (s *Site) Clock() uint32 { return s.clock }

// SetObserver replaces the observer of remote integrations. A nil observer disables callbacks.
func (s *Site) SetObserver(o Observer) { s.observer = o }

// +--------+
// | Lookup |
// +--------+

// Returns whether the char is part of the visible projection.
func isShown(c *Char) bool {
	return c.Visible && !c.ID.IsSentinel()
}

// Returns the index of a char within the sequence, or -1 if it's unknown.
//
// Time complexity: O(chars)
func (s *Site) index(id ID) int {
	if _, ok := s.byID[id]; !ok {
		return -1
	}
	for i, c := range s.sequence {
		if c.ID == id {
			return i
		}
	}
	panic(fmt.Sprintf("index: %v is indexed but not in sequence", id))
}

// Returns whether a char is already integrated.
//
// Time complexity: O(1)
func (s *Site) contains(id ID) bool {
	_, ok := s.byID[id]
	return ok
}

// Inserts a char in the given sequence index.
//
// Time complexity: O(chars)
func (s *Site) insertAt(c *Char, i int) {
	s.sequence = append(s.sequence, nil)
	copy(s.sequence[i+1:], s.sequence[i:])
	s.sequence[i] = c
	s.byID[c.ID] = c
}

// Returns the sequence index of the visible char at the given position, or -1 if there's none.
//
// Time complexity: O(chars)
func (s *Site) ithVisible(pos int) int {
	if pos < 0 {
		return -1
	}
	n := 0
	for i, c := range s.sequence {
		if !isShown(c) {
			continue
		}
		if n == pos {
			return i
		}
		n++
	}
	return -1
}

// Returns the number of visible chars before the given sequence index.
//
// Time complexity: O(chars)
func (s *Site) visiblePos(i int) int {
	n := 0
	for _, c := range s.sequence[:i] {
		if isShown(c) {
			n++
		}
	}
	return n
}

// +---------+
// | Queries |
// +---------+

// VisibleLen returns the number of visible chars.
func (s *Site) VisibleLen() int {
	n := 0
	for _, c := range s.sequence {
		if isShown(c) {
			n++
		}
	}
	return n
}

// CharAt returns a copy of the visible char at the given position.
func (s *Site) CharAt(pos int) (Char, error) {
	i := s.ithVisible(pos)
	if i < 0 {
		return Char{}, fmt.Errorf("%w: %d not in [0, %d)", ErrPositionOutOfRange, pos, s.VisibleLen())
	}
	return *s.sequence[i].clone(), nil
}

// ValueAt returns the visible char value at the given position.
func (s *Site) ValueAt(pos int) (rune, error) {
	c, err := s.CharAt(pos)
	if err != nil {
		return 0, err
	}
	return c.Value, nil
}

// SliceVisible returns the visible text in the range [from, to).
func (s *Site) SliceVisible(from, to int) (string, error) {
	n := s.VisibleLen()
	if from < 0 || to > n || from > to {
		return "", fmt.Errorf("%w: [%d, %d) not within [0, %d)", ErrPositionOutOfRange, from, to, n)
	}
	var b strings.Builder
	pos := 0
	for _, c := range s.sequence {
		if !isShown(c) {
			continue
		}
		if pos >= to {
			break
		}
		if pos >= from {
			b.WriteRune(c.Value)
		}
		pos++
	}
	return b.String(), nil
}

// String returns the visible text.
func (s *Site) String() string {
	var b strings.Builder
	for _, c := range s.sequence {
		if isShown(c) {
			b.WriteRune(c.Value)
		}
	}
	return b.String()
}

// Chars returns a copy of the visible chars, in order.
func (s *Site) Chars() []Char {
	var chars []Char
	for _, c := range s.sequence {
		if isShown(c) {
			chars = append(chars, *c.clone())
		}
	}
	return chars
}

// Sequence returns a copy of the whole sequence, including tombstones and sentinels.
func (s *Site) Sequence() []Char {
	chars := make([]Char, len(s.sequence))
	for i, c := range s.sequence {
		chars[i] = *c.clone()
	}
	return chars
}

// Lookup returns a copy of the char with the given ID, if it was integrated.
func (s *Site) Lookup(id ID) (Char, bool) {
	c, ok := s.byID[id]
	if !ok {
		return Char{}, false
	}
	return *c.clone(), true
}

// +--------+
// | Checks |
// +--------+

// Check verifies the structural invariants of the site: sentinels at both ends, a one-to-one
// index, and every char's context present in the sequence.
//
// Time complexity: O(chars)
func (s *Site) Check() error {
	return checkSequence(s.sequence, s.byID)
}

func checkSequence(sequence []*Char, byID map[ID]*Char) error {
	n := len(sequence)
	if n < 2 || sequence[0].ID != StartID || sequence[n-1].ID != EndID {
		return errors.New("sequence is not enclosed by sentinels")
	}
	if len(byID) != n {
		return fmt.Errorf("index has %d chars, sequence has %d", len(byID), n)
	}
	for i, c := range sequence {
		if byID[c.ID] != c {
			return fmt.Errorf("char %d (%v) is not indexed", i, c.ID)
		}
		if i == 0 || i == n-1 {
			if !c.Visible {
				return fmt.Errorf("sentinel %v is deleted", c.ID)
			}
			continue
		}
		if c.ID.IsSentinel() {
			return fmt.Errorf("char %d uses reserved id %v", i, c.ID)
		}
		if _, ok := byID[c.Prev]; !ok {
			return fmt.Errorf("char %v has unknown prev %v", c.ID, c.Prev)
		}
		if _, ok := byID[c.Next]; !ok {
			return fmt.Errorf("char %v has unknown next %v", c.ID, c.Next)
		}
	}
	// Every char lies between its creation context.
	positions := make(map[ID]int, n)
	for i, c := range sequence {
		positions[c.ID] = i
	}
	for i, c := range sequence[1 : n-1] {
		if positions[c.Prev] >= i+1 || positions[c.Next] <= i+1 {
			return fmt.Errorf("char %v is not between %v and %v", c.ID, c.Prev, c.Next)
		}
	}
	return nil
}
