package woot

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// +-------------------+
// | Local operations  |
// +-------------------+

// Mints the next local ID.
func (s *Site) nextID() (ID, error) {
	if s.clock == math.MaxUint32 {
		return ID{}, ErrClockExhausted
	}
	s.clock++
	return ID{Site: s.siteID, Clock: s.clock}, nil
}

// GenerateInsert inserts a char at the given visible position, and returns the operation to be
// broadcast to other sites.
//
// Valid positions are in [0, VisibleLen()]; inserting at VisibleLen() appends to the text.
// Out of range positions are rejected without changing the site.
func (s *Site) GenerateInsert(pos int, ch rune, attrs Attributes) (Operation, error) {
	n := s.VisibleLen()
	if pos < 0 || pos > n {
		return Operation{}, fmt.Errorf("%w: insert at %d not in [0, %d]", ErrPositionOutOfRange, pos, n)
	}
	if !utf8.ValidRune(ch) || ch == 0 {
		return Operation{}, fmt.Errorf("%w: invalid char %U", ErrMalformedOperation, ch)
	}
	prev, next := StartID, EndID
	if pos > 0 {
		prev = s.sequence[s.ithVisible(pos-1)].ID
	}
	if pos < n {
		next = s.sequence[s.ithVisible(pos)].ID
	}
	id, err := s.nextID()
	if err != nil {
		return Operation{}, err
	}
	c := &Char{
		ID:         id,
		Visible:    true,
		Value:      ch,
		Attributes: attrs.withoutNils(),
		Prev:       prev,
		Next:       next,
	}
	if _, err := s.integrateInsert(c, prev, next); err != nil {
		panic(fmt.Sprintf("GenerateInsert: %v", err))
	}
	return InsertOp(*c), nil
}

// GenerateDelete deletes the visible char at the given position, and returns the operation to
// be broadcast to other sites.
func (s *Site) GenerateDelete(pos int) (Operation, error) {
	i := s.ithVisible(pos)
	if i < 0 {
		return Operation{}, fmt.Errorf("%w: delete at %d not in [0, %d)", ErrPositionOutOfRange, pos, s.VisibleLen())
	}
	c := s.sequence[i]
	c.Visible = false
	return DeleteOp(c.ID), nil
}

// GenerateAttribute merges attributes into the visible char at the given position, and returns
// the operation to be broadcast to other sites. A nil attribute value clears it.
func (s *Site) GenerateAttribute(pos int, attrs Attributes) (Operation, error) {
	i := s.ithVisible(pos)
	if i < 0 {
		return Operation{}, fmt.Errorf("%w: attribute at %d not in [0, %d)", ErrPositionOutOfRange, pos, s.VisibleLen())
	}
	c := s.sequence[i]
	c.mergeAttributes(attrs)
	return AttributeOp(c.ID, attrs), nil
}

// GenerateInsertString inserts every char of str starting at the given position.
//
// Each char is an independent operation; other sites may observe them partially applied.
func (s *Site) GenerateInsertString(pos int, str string, attrs Attributes) ([]Operation, error) {
	if n := s.VisibleLen(); pos < 0 || pos > n {
		return nil, fmt.Errorf("%w: insert at %d not in [0, %d]", ErrPositionOutOfRange, pos, n)
	}
	if !utf8.ValidString(str) {
		return nil, fmt.Errorf("%w: %q is not valid utf8", ErrMalformedOperation, str)
	}
	var ops []Operation
	for _, ch := range str {
		op, err := s.GenerateInsert(pos, ch, attrs)
		if err != nil {
			return ops, err
		}
		ops = append(ops, op)
		pos++
	}
	return ops, nil
}

// GenerateDeleteRange deletes count visible chars starting at the given position.
func (s *Site) GenerateDeleteRange(pos, count int) ([]Operation, error) {
	if n := s.VisibleLen(); pos < 0 || count < 0 || pos+count > n {
		return nil, fmt.Errorf("%w: delete [%d, %d) not within [0, %d)", ErrPositionOutOfRange, pos, pos+count, n)
	}
	ops := make([]Operation, 0, count)
	for k := 0; k < count; k++ {
		op, err := s.GenerateDelete(pos)
		if err != nil {
			return ops, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}
