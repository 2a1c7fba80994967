package woot

import (
	"errors"
	"fmt"
)

// +-------------+
// | Integration |
// +-------------+

// IsExecutable reports whether all dependencies of an operation are integrated.
//
// Inserts depend on their context, deletes and attribute changes on their target. Presence
// announcements have no dependencies.
func (s *Site) IsExecutable(op Operation) bool {
	switch op.Type {
	case OpInsert:
		return s.contains(op.Prev) && s.contains(op.Next)
	case OpDelete, OpAttribute:
		return s.contains(op.ID)
	default:
		return true
	}
}

// Receive integrates an operation created by any site, including echoes of local operations.
//
// Malformed operations are rejected with an error wrapping ErrMalformedOperation. Operations
// whose dependencies are unknown are kept in the pool, and retried after every successful
// integration. Receiving an already integrated operation has no effect.
func (s *Site) Receive(op Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}
	if op.Type == OpInsert && s.contains(op.ID) {
		return nil
	}
	if !s.IsExecutable(op) {
		if !s.isPooled(op) {
			s.pool = append(s.pool, op)
		}
		return nil
	}
	err := s.execute(op)
	return errors.Join(err, s.drainPool())
}

// Pool returns a copy of the operations waiting for their dependencies.
func (s *Site) Pool() []Operation {
	pool := make([]Operation, len(s.pool))
	for i, op := range s.pool {
		op.Attributes = op.Attributes.Clone()
		pool[i] = op
	}
	return pool
}

// PoolSize returns the number of operations waiting for their dependencies.
func (s *Site) PoolSize() int {
	return len(s.pool)
}

// Returns whether an insert with the same ID is already waiting in the pool.
//
// Time complexity: O(pool)
func (s *Site) isPooled(op Operation) bool {
	if op.Type != OpInsert {
		return false
	}
	for _, other := range s.pool {
		if other.Type == OpInsert && other.ID == op.ID {
			return true
		}
	}
	return false
}

// Executes every pooled operation that became executable, until a full pass makes no progress.
//
// Time complexity: O(pool^2 * chars)
func (s *Site) drainPool() error {
	var errs []error
	for {
		progress := false
		old := s.pool
		pending := old[:0]
		for _, op := range old {
			if !s.IsExecutable(op) {
				pending = append(pending, op)
				continue
			}
			if err := s.execute(op); err != nil {
				errs = append(errs, err)
			}
			progress = true
		}
		for i := len(pending); i < len(old); i++ {
			old[i] = Operation{}
		}
		s.pool = pending
		if !progress {
			break
		}
	}
	return errors.Join(errs...)
}

// Applies an executable operation and notifies the observer of its visible effect.
func (s *Site) execute(op Operation) error {
	switch op.Type {
	case OpInsert:
		if s.contains(op.ID) {
			return nil
		}
		c := op.char()
		i, err := s.integrateInsert(c, op.Prev, op.Next)
		if err != nil {
			return err
		}
		if s.observer != nil {
			s.observer.OnInsert(s.visiblePos(i), c.Value, c.Attributes.Clone())
		}
	case OpDelete:
		c := s.byID[op.ID]
		if !c.Visible {
			return nil
		}
		c.Visible = false
		if s.observer != nil {
			s.observer.OnDelete(s.visiblePos(s.index(c.ID)))
		}
	case OpAttribute:
		c := s.byID[op.ID]
		if !c.mergeAttributes(op.Attributes) || !c.Visible {
			return nil
		}
		if s.observer != nil {
			s.observer.OnAttribute(s.visiblePos(s.index(c.ID)), op.Attributes.Clone())
		}
	case OpPresence:
		if po, ok := s.observer.(PresenceObserver); ok {
			po.OnPresence(op.Site, op.Pos)
		}
	}
	return nil
}

// Merges attributes into the char, keeping empty attribute sets as nil.
func (c *Char) mergeAttributes(update Attributes) bool {
	if c.Attributes == nil {
		c.Attributes = make(Attributes, len(update))
	}
	changed := c.Attributes.Merge(update)
	if len(c.Attributes) == 0 {
		c.Attributes = nil
	}
	return changed
}

// Returns the sequence index of every char.
//
// Time complexity: O(chars)
func (s *Site) positions() map[ID]int {
	m := make(map[ID]int, len(s.sequence))
	for i, c := range s.sequence {
		m[c.ID] = i
	}
	return m
}

// Integrates a char between the chars prev and next, returning its sequence index.
//
// Chars between prev and next were either deleted or inserted concurrently in the same gap.
// Competing chars are the ones whose own context encloses the gap; they are ordered by ID, and
// the window is narrowed to the pair of competitors surrounding the new char, until it's empty.
//
//                      window
//              .--------------------.
// Sequence:  [prev] [d1] [x] [d2] [d3] [next]
// Competing: [prev] [d1]     [d2] [d3] [next]  -- x's context is inside the window
// Narrowed:              [d1] [x] [d2]         -- with d1 < c < d2
//
// Time complexity: O(chars + window^2), or, O(chars) for non-concurrent inserts
func (s *Site) integrateInsert(c *Char, prev, next ID) (int, error) {
	pos := s.positions()
	cp, okp := pos[prev]
	cn, okn := pos[next]
	if !okp || !okn {
		return -1, fmt.Errorf("integrate %v: unknown context (%v, %v)", c.ID, prev, next)
	}
	if cp >= cn {
		return -1, fmt.Errorf("%w: insert %v has context (%v, %v) out of order", ErrMalformedOperation, c.ID, prev, next)
	}
	for {
		if cn-cp == 1 {
			s.insertAt(c, cn)
			return cn, nil
		}
		candidates := []int{cp}
		for i := cp + 1; i < cn; i++ {
			d := s.sequence[i]
			if pos[d.Prev] <= cp && pos[d.Next] >= cn {
				candidates = append(candidates, i)
			}
		}
		candidates = append(candidates, cn)
		if len(candidates) == 2 {
			// Only reachable with a sequence not built by integration.
			s.insertAt(c, cn)
			return cn, nil
		}
		j := 1
		for j < len(candidates)-1 && s.sequence[candidates[j]].ID.Less(c.ID) {
			j++
		}
		cp, cn = candidates[j-1], candidates[j]
	}
}
