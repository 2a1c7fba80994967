package woot_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/brunokim/woot/woot"
	"github.com/google/go-cmp/cmp"
)

// Tests are structured as a sequence of operations on a list of sites.
//
// Each site records the operations it generates, and deliveries copy operations from one
// site's log to another, in order or reversed, so that tests control exactly which
// operations each site has seen.
//
// Operations:
//
// insertAt <local> <char> <pos>  -- insert a char at visible position 'pos' on site 'local'.
// insertStr <local> <str> <pos>  -- insert a string at visible position 'pos' on site 'local'.
// deleteAt <local> <pos>         -- delete the char at visible position 'pos' on site 'local'.
// fork <local> <remote>          -- fork site 'local' into new site 'remote'.
// deliver <local> <remote>       -- deliver undelivered operations from 'remote' into 'local'.
// deliverRev <local> <remote>    -- same as deliver, in reverse order.
// check <local> <str>            -- check that the contents of 'local' spell 'str'.
//
// Sites are referred by their order of creation; site i has ID i+1.

type operationType int

const (
	insertAt operationType = iota
	insertStr
	deleteAt
	fork
	deliver
	deliverRev
	check
)

type operation struct {
	op            operationType
	local, remote int
	char          rune
	pos           int
	str           string
}

func (op operation) String() string {
	switch op.op {
	case insertAt:
		return fmt.Sprintf("insert %c @ %d at site #%d", op.char, op.pos, op.local)
	case insertStr:
		return fmt.Sprintf("insert %q @ %d at site #%d", op.str, op.pos, op.local)
	case deleteAt:
		return fmt.Sprintf("delete char @ %d from site #%d", op.pos, op.local)
	case fork:
		return fmt.Sprintf("fork site #%d into site #%d", op.local, op.remote)
	case deliver:
		return fmt.Sprintf("deliver site #%d into site #%d", op.remote, op.local)
	case deliverRev:
		return fmt.Sprintf("deliver site #%d into site #%d, reversed", op.remote, op.local)
	case check:
		return fmt.Sprintf("check site #%d is %q", op.local, op.str)
	}
	return ""
}

// network holds every site with the log of operations it generated.
type network struct {
	sites     []*woot.Site
	logs      [][]woot.Operation
	delivered []map[int]int // delivered[local][remote] is the number of ops delivered from remote.
}

func newNetwork(t *testing.T) *network {
	t.Helper()
	n := &network{}
	n.add(newSite(t, 1), map[int]int{})
	return n
}

func (n *network) add(s *woot.Site, delivered map[int]int) {
	n.sites = append(n.sites, s)
	n.logs = append(n.logs, nil)
	n.delivered = append(n.delivered, delivered)
}

func (n *network) record(local int, ops ...woot.Operation) {
	n.logs[local] = append(n.logs[local], ops...)
}

func (n *network) pending(local, remote int) []woot.Operation {
	log := n.logs[remote]
	start := n.delivered[local][remote]
	n.delivered[local][remote] = len(log)
	return log[start:]
}

// Execute sequence of operations, failing the test on unexpected errors.
func testOperations(t *testing.T, ops []operation) *network {
	t.Helper()
	must := func(i int, op operation, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("%d: %v: %v", i, op, err)
		}
	}
	n := newNetwork(t)
	for i, op := range ops {
		site := n.sites[op.local]
		switch op.op {
		case insertAt:
			o, err := site.GenerateInsert(op.pos, op.char, nil)
			must(i, op, err)
			n.record(op.local, o)
		case insertStr:
			generated, err := site.GenerateInsertString(op.pos, op.str, nil)
			must(i, op, err)
			n.record(op.local, generated...)
		case deleteAt:
			o, err := site.GenerateDelete(op.pos)
			must(i, op, err)
			n.record(op.local, o)
		case fork:
			if op.remote != len(n.sites) {
				t.Fatalf("fork: expecting remote index %d, got %d", len(n.sites), op.remote)
			}
			remote, err := site.Fork(uint32(op.remote + 1))
			must(i, op, err)
			delivered := map[int]int{op.local: len(n.logs[op.local])}
			for k, v := range n.delivered[op.local] {
				delivered[k] = v
			}
			n.add(remote, delivered)
		case deliver, deliverRev:
			pending := n.pending(op.local, op.remote)
			if op.op == deliverRev {
				pending = reversed(pending)
			}
			for _, o := range pending {
				must(i, op, site.Receive(o))
			}
		case check:
			if err := site.Check(); err != nil {
				t.Errorf("%d: site #%d invariants: %v", i, op.local, err)
			}
			if s := site.String(); s != op.str {
				t.Errorf("%d: got site[%d] = %q, want %q", i, op.local, s, op.str)
			}
		}
	}
	return n
}

func TestCtrlAltDel(t *testing.T) {
	testOperations(t, []operation{
		// Site #0: write CMD
		{op: insertStr, local: 0, str: "CMD", pos: 0},
		// Create new sites
		{op: fork, local: 0, remote: 1},
		{op: fork, local: 1, remote: 2},
		// Site #0: CMD --> CTRL
		{op: deleteAt, local: 0, pos: 2},
		{op: deleteAt, local: 0, pos: 1},
		{op: insertStr, local: 0, str: "TRL", pos: 1},
		{op: check, local: 0, str: "CTRL"},
		// Site #1: CMD --> CMDALT
		{op: insertStr, local: 1, str: "ALT", pos: 3},
		{op: check, local: 1, str: "CMDALT"},
		// Site #2: CMD --> CMDDEL
		{op: insertStr, local: 2, str: "DEL", pos: 3},
		{op: check, local: 2, str: "CMDDEL"},
		// Deliver site #1 into #0 --> CTRLALT
		{op: deliver, local: 0, remote: 1},
		{op: check, local: 0, str: "CTRLALT"},
		// Deliver site #2 into #0 --> CTRLALTDEL
		{op: deliver, local: 0, remote: 2},
		{op: check, local: 0, str: "CTRLALTDEL"},
		// Deliver site #1 into #2 --> CMDALTDEL
		{op: deliverRev, local: 2, remote: 1},
		{op: check, local: 2, str: "CMDALTDEL"},
		// Deliver site #0 into #2 --> CTRLALTDEL
		{op: deliverRev, local: 2, remote: 0},
		{op: check, local: 2, str: "CTRLALTDEL"},
		// Deliver everything into #1, #2 first.
		{op: deliver, local: 1, remote: 2},
		{op: check, local: 1, str: "CMDALTDEL"},
		{op: deliverRev, local: 1, remote: 0},
		{op: check, local: 1, str: "CTRLALTDEL"},
	})
}

func TestDeleteConcurrentWithInsert(t *testing.T) {
	testOperations(t, []operation{
		{op: insertStr, local: 0, str: "abcd", pos: 0},
		{op: fork, local: 0, remote: 1},
		// Site #0 deletes 'b' and 'c', site #1 writes between them.
		{op: deleteAt, local: 0, pos: 1},
		{op: deleteAt, local: 0, pos: 1},
		{op: check, local: 0, str: "ad"},
		{op: insertAt, local: 1, char: 'x', pos: 2},
		{op: check, local: 1, str: "abxcd"},
		{op: deliverRev, local: 0, remote: 1},
		{op: deliverRev, local: 1, remote: 0},
		{op: check, local: 0, str: "axd"},
		{op: check, local: 1, str: "axd"},
	})
}

func TestInsertIntoTombstoneGap(t *testing.T) {
	testOperations(t, []operation{
		{op: insertStr, local: 0, str: "xyz", pos: 0},
		{op: deleteAt, local: 0, pos: 1},
		{op: fork, local: 0, remote: 1},
		{op: fork, local: 0, remote: 2},
		// Both sites write between 'x' and 'z', over the tombstone of 'y'.
		{op: insertStr, local: 1, str: "12", pos: 1},
		{op: insertStr, local: 2, str: "ab", pos: 1},
		{op: insertAt, local: 0, char: '-', pos: 1},
		{op: deliver, local: 0, remote: 2},
		{op: deliver, local: 0, remote: 1},
		{op: deliverRev, local: 1, remote: 2},
		{op: deliverRev, local: 1, remote: 0},
		{op: deliver, local: 2, remote: 0},
		{op: deliverRev, local: 2, remote: 1},
		{op: check, local: 0, str: "x-12abz"},
		{op: check, local: 1, str: "x-12abz"},
		{op: check, local: 2, str: "x-12abz"},
	})
}

// Make a random network, editing and exchanging operations between several sites, and check
// that all sites converge once every operation is delivered everywhere.
func TestRandomConvergence(t *testing.T) {
	const numSites = 5
	for seed := int64(1); seed <= 20; seed++ {
		r := rand.New(rand.NewSource(seed))
		var ops []operation
		ops = append(ops, operation{op: insertStr, local: 0, str: "seed", pos: 0})
		for i := 1; i < numSites; i++ {
			ops = append(ops, operation{op: fork, local: 0, remote: i})
		}
		lens := make([]int, numSites)
		for i := range lens {
			lens[i] = 4
		}
		for step := 0; step < 60; step++ {
			i := r.Intn(numSites)
			p := r.Float64()
			switch {
			case p < 0.5:
				ops = append(ops, operation{op: insertAt, local: i, char: rune('a' + i), pos: r.Intn(lens[i] + 1)})
				lens[i]++
			case p < 0.75 && lens[i] > 0:
				ops = append(ops, operation{op: deleteAt, local: i, pos: r.Intn(lens[i])})
				lens[i]--
			default:
				// Partial exchange; lengths are unknown afterwards, so resync them from a dry run.
				j := r.Intn(numSites)
				if j == i {
					continue
				}
				kind := deliver
				if r.Intn(2) == 0 {
					kind = deliverRev
				}
				ops = append(ops, operation{op: kind, local: i, remote: j})
				lens[i] = dryRunLen(t, ops, i)
			}
		}
		var final []operation
		for i := 0; i < numSites; i++ {
			for j := 0; j < numSites; j++ {
				if i != j {
					final = append(final, operation{op: deliverRev, local: i, remote: j})
				}
			}
		}
		n := testOperations(t, append(ops, final...))
		for i := 1; i < numSites; i++ {
			if diff := cmp.Diff(n.sites[0].Sequence(), n.sites[i].Sequence()); diff != "" {
				t.Fatalf("seed %d: site #%d differs from site #0 (-want, +got):\n%s", seed, i, diff)
			}
		}
	}
}

func dryRunLen(t *testing.T, ops []operation, i int) int {
	n := testOperations(t, ops)
	return n.sites[i].VisibleLen()
}
