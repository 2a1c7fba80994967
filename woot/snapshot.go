package woot

import (
	"errors"
	"fmt"
)

// +----------+
// | Snapshot |
// +----------+

// Snapshot is the full state of a site, used to bootstrap a joining site without replaying
// every operation.
type Snapshot struct {
	// Chars is the whole sequence, including tombstones and sentinels.
	Chars []Char `json:"chars"`
	// Pool holds operations still waiting for their dependencies.
	Pool []Operation `json:"pool,omitempty"`
}

// Snapshot returns a deep copy of the site's sequence and pool.
//
// Time complexity: O(chars + pool)
func (s *Site) Snapshot() Snapshot {
	return Snapshot{
		Chars: s.Sequence(),
		Pool:  s.Pool(),
	}
}

// Restore creates a site from a snapshot.
//
// If the snapshot has chars created by siteID with a clock larger than the given one, the
// largest of them is used instead, so that IDs are never reused.
//
// Time complexity: O(chars + pool)
func Restore(siteID, clock uint32, snap Snapshot, opts ...Option) (*Site, error) {
	s, err := NewSite(siteID, clock, opts...)
	if err != nil {
		return nil, err
	}
	if len(snap.Chars) < 2 {
		return nil, fmt.Errorf("%w: want at least 2 chars, got %d", ErrInvalidSnapshot, len(snap.Chars))
	}
	sequence := make([]*Char, len(snap.Chars))
	byID := make(map[ID]*Char, len(snap.Chars))
	for i := range snap.Chars {
		c := snap.Chars[i].clone()
		if _, ok := byID[c.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate char %v", ErrInvalidSnapshot, c.ID)
		}
		if !c.ID.IsSentinel() && c.Value == 0 {
			return nil, fmt.Errorf("%w: char %v has no value", ErrInvalidSnapshot, c.ID)
		}
		if len(c.Attributes) == 0 {
			c.Attributes = nil
		}
		sequence[i] = c
		byID[c.ID] = c
		if c.ID.Site == siteID && c.ID.Clock > s.clock {
			s.clock = c.ID.Clock
		}
	}
	if err := checkSequence(sequence, byID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	var errs []error
	pool := make([]Operation, 0, len(snap.Pool))
	for _, op := range snap.Pool {
		if err := op.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if op.Type == OpInsert && op.ID.Site == siteID && op.ID.Clock > s.clock {
			s.clock = op.ID.Clock
		}
		op.Attributes = op.Attributes.Clone()
		pool = append(pool, op)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, errors.Join(errs...))
	}
	s.sequence = sequence
	s.byID = byID
	s.pool = pool
	return s, nil
}

// Fork creates a new site with the given ID and a copy of this site's state.
func (s *Site) Fork(siteID uint32, opts ...Option) (*Site, error) {
	return Restore(siteID, 0, s.Snapshot(), opts...)
}
