package woot_test

import (
	"encoding/json"
	"testing"

	"github.com/brunokim/woot/woot"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRestore(t *testing.T) {
	a := newSite(t, 1)
	insertString(t, a, 0, "hello")
	_, err := a.GenerateDelete(1)
	require.NoError(t, err)
	_, err = a.GenerateAttribute(0, woot.Attributes{"bold": true})
	require.NoError(t, err)
	// An operation waiting for a char that never arrived.
	orphan := woot.InsertOp(woot.Char{
		ID:    woot.ID{Site: 9, Clock: 2},
		Value: '!',
		Prev:  woot.ID{Site: 9, Clock: 1},
		Next:  woot.EndID,
	})
	require.NoError(t, a.Receive(orphan))

	bs, err := json.Marshal(a.Snapshot())
	require.NoError(t, err)
	var snap woot.Snapshot
	require.NoError(t, json.Unmarshal(bs, &snap))

	b, err := woot.Restore(2, 0, snap)
	require.NoError(t, err)
	checkSite(t, b, "hllo")
	if diff := cmp.Diff(a.Sequence(), b.Sequence()); diff != "" {
		t.Errorf("restored sequence (-want, +got):\n%s", diff)
	}
	assert.Equal(t, 1, b.PoolSize())

	// Both sites keep editing and converge.
	opA, err := a.GenerateInsert(4, '?', nil)
	require.NoError(t, err)
	opB, err := b.GenerateInsert(4, '.', nil)
	require.NoError(t, err)
	require.NoError(t, a.Receive(opB))
	require.NoError(t, b.Receive(opA))
	checkSite(t, a, "hllo?.")
	checkSite(t, b, "hllo?.")

	// The pooled operation integrates once its dependency arrives. Site 9 has the largest
	// ID among the chars inserted between start and end, so its chars go last.
	parent := woot.InsertOp(woot.Char{ID: woot.ID{Site: 9, Clock: 1}, Value: '-', Prev: woot.StartID, Next: woot.EndID})
	require.NoError(t, b.Receive(parent))
	assert.Equal(t, 0, b.PoolSize())
	checkSite(t, b, "hllo?.-!")
}

func TestRestoreAdvancesClock(t *testing.T) {
	a := newSite(t, 1)
	insertString(t, a, 0, "abc")
	// Site 1 restarts from a snapshot with a stale clock.
	restarted, err := woot.Restore(1, 1, a.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, uint32(3), restarted.Clock())
	op, err := restarted.GenerateInsert(0, 'x', nil)
	require.NoError(t, err)
	assert.Equal(t, woot.ID{Site: 1, Clock: 4}, op.ID)

	fresh, err := woot.Restore(2, 10, a.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, uint32(10), fresh.Clock())
}

func TestRestoreInvalid(t *testing.T) {
	a := newSite(t, 1)
	ops := insertString(t, a, 0, "ab")
	valid := a.Snapshot()

	withChars := func(f func(chars []woot.Char) []woot.Char) woot.Snapshot {
		chars := make([]woot.Char, len(valid.Chars))
		copy(chars, valid.Chars)
		return woot.Snapshot{Chars: f(chars)}
	}
	tests := []struct {
		desc string
		snap woot.Snapshot
	}{
		{"empty", woot.Snapshot{}},
		{"no start", withChars(func(cs []woot.Char) []woot.Char { return cs[1:] })},
		{"no end", withChars(func(cs []woot.Char) []woot.Char { return cs[:len(cs)-1] })},
		{"duplicate", withChars(func(cs []woot.Char) []woot.Char { return append(cs[:2], cs[1:]...) })},
		{"swapped", withChars(func(cs []woot.Char) []woot.Char { cs[1], cs[2] = cs[2], cs[1]; return cs })},
		{"missing prev", withChars(func(cs []woot.Char) []woot.Char { return append(cs[:1], cs[2:]...) })},
		{"deleted sentinel", withChars(func(cs []woot.Char) []woot.Char { cs[0].Visible = false; return cs })},
		{"empty value", withChars(func(cs []woot.Char) []woot.Char { cs[1].Value = 0; return cs })},
		{"malformed pool", woot.Snapshot{Chars: valid.Chars, Pool: []woot.Operation{{Type: "move"}}}},
	}
	for _, test := range tests {
		_, err := woot.Restore(2, 0, test.snap)
		assert.ErrorIs(t, err, woot.ErrInvalidSnapshot, test.desc)
	}
	_, err := woot.Restore(0, 0, valid)
	assert.ErrorIs(t, err, woot.ErrReservedSite)

	// The source snapshot is not aliased by restored sites.
	b, err := woot.Restore(2, 0, valid)
	require.NoError(t, err)
	_, err = b.GenerateDelete(0)
	require.NoError(t, err)
	c, ok := a.Lookup(ops[0].ID)
	require.True(t, ok)
	assert.True(t, c.Visible)
}
