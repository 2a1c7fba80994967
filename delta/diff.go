package delta

import (
	"fmt"
	"unicode/utf8"
)

// EditType is the kind of step in an edit script.
type EditType int

// Edit steps.
const (
	Keep EditType = iota
	Add
	Remove
)

// Edit is a single step of an edit script, carrying the remaining distance from this step to the
// end of the script.
type Edit struct {
	Op   EditType
	Char rune
	Dist int
}

// Example: abcd -> xabdy
//           s1      s2
//
// Legend:
//   ix = add(x)
//   ka = keep(a)
//   dc = remove(c)
//
//          xabdy   xabdy   xabdy   xabdy   xabdy   xabdy
//  s1\s2   ^        ^        ^        ^        ^        ^
//        +-------+-------+-------+-------+-------+-------+
//        |       |       |       |       |       |       |
//  abcd  | ix 3  < ka 2  | da 3  | da 4  | iy 5  < da 4  |
//  ^     |       |      \|       |       |       |       |
//        +-------+-------+---^---+---^---+-------+---^---+
//        |       |       |       |       |       |       |
//  abcd  | ix 4  < ia 3  < kb 2  | db 3  | iy 4  < db 3  |
//   ^    |       |       |      \|       |       |       |
//        +-------+-------+-------+---^---+-------+---^---+
//        |       |       |       |       |       |       |
//  abcd  | ix 5  < ia 4  < ib 3  < dc 2  | iy 3  < dc 2  |
//    ^   |       |       |       |       |       |       |
//        +-------+-------+-------+---^---+-------+---^---+
//        |       |       |       |       |       |       |
//  abcd  | ix 4  < ia 3  < ib 2  < kd 1  | iy 2  < dd 1  |
//     ^  |       |       |       |      \|       |       |
//        +-------+-------+-------+-------+-------+---^---+
//        |       |       |       |       |       |       |
//  abcd  | ix 5  < ia 4  < ib 3  < id 2  < iy 1  < k0 0  |
//      ^ |       |       |       |       |       |       |
//        +-------+-------+-------+-------+-------+-------+

// Diff returns a minimal sequence of keeps, additions and removals transforming s1 into s2.
//
// Time complexity: O(len(s1) * len(s2))
func Diff(s1, s2 string) ([]Edit, error) {
	if !utf8.ValidString(s1) {
		return nil, fmt.Errorf("diff: s1 is not a valid utf8 string")
	}
	if !utf8.ValidString(s2) {
		return nil, fmt.Errorf("diff: s2 is not a valid utf8 string")
	}
	chars1, chars2 := []rune(s1), []rune(s2)
	m, n := len(chars1), len(chars2)
	table := make([]Edit, (m+1)*(n+1))
	coord := func(i, j int) int {
		return i*(n+1) + j
	}
	// Against an empty target, remove all remaining chars.
	for i, ch := range chars1 {
		table[coord(i, n)] = Edit{Op: Remove, Char: ch, Dist: m - i}
	}
	// From an empty source, add all remaining chars.
	for j, ch := range chars2 {
		table[coord(m, j)] = Edit{Op: Add, Char: ch, Dist: n - j}
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if chars1[i] == chars2[j] {
				table[coord(i, j)] = Edit{Op: Keep, Char: chars1[i], Dist: table[coord(i+1, j+1)].Dist}
				continue
			}
			// Prefer adding on a tie.
			removed, added := table[coord(i+1, j)], table[coord(i, j+1)]
			if added.Dist <= removed.Dist {
				table[coord(i, j)] = Edit{Op: Add, Char: chars2[j], Dist: 1 + added.Dist}
			} else {
				table[coord(i, j)] = Edit{Op: Remove, Char: chars1[i], Dist: 1 + removed.Dist}
			}
		}
	}
	var edits []Edit
	var i, j int
	for i < m || j < n {
		e := table[coord(i, j)]
		edits = append(edits, e)
		switch e.Op {
		case Keep:
			i++
			j++
		case Add:
			j++
		case Remove:
			i++
		}
	}
	return edits, nil
}

// Distance returns the number of additions and removals to transform s1 into s2.
func Distance(s1, s2 string) (int, error) {
	edits, err := Diff(s1, s2)
	if err != nil {
		return 0, err
	}
	if len(edits) == 0 {
		return 0, nil
	}
	return edits[0].Dist, nil
}

// FromDiff collapses an edit script into a delta.
func FromDiff(edits []Edit) Delta {
	var d Delta
	for _, e := range edits {
		switch e.Op {
		case Keep:
			d = d.push(Run{Retain: 1})
		case Add:
			d = d.push(Run{Insert: string(e.Char)})
		case Remove:
			d = d.push(Run{Delete: 1})
		}
	}
	return d.trimRetain()
}
