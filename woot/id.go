package woot

import (
	"encoding/json"
	"fmt"
	"math"
)

// ID is the unique identifier of a char.
type ID struct {
	// Site is the replica that created the char. Site 0 is reserved for sentinels.
	Site uint32
	// Clock is the site's logical clock when the char was created.
	Clock uint32
}

// Sentinel identifiers, shared by all sites.
var (
	StartID = ID{Site: 0, Clock: 0}
	EndID   = ID{Site: 0, Clock: math.MaxUint32}
)

// +--------+
// | String |
// +--------+

func (id ID) String() string {
	switch id {
	case StartID:
		return "start"
	case EndID:
		return "end"
	}
	return fmt.Sprintf("S%d@C%02d", id.Site, id.Clock)
}

// +----------+
// | Ordering |
// +----------+

// Compare returns the relative order between IDs.
//
// Order is lexicographic, site first and clock second. It's only used to break ties between
// concurrent inserts, never as a causal order.
func (id ID) Compare(other ID) int {
	if id.Site < other.Site {
		return -1
	}
	if id.Site > other.Site {
		return +1
	}
	if id.Clock < other.Clock {
		return -1
	}
	if id.Clock > other.Clock {
		return +1
	}
	return 0
}

// Less reports whether id is ordered before other.
func (id ID) Less(other ID) bool {
	return id.Compare(other) < 0
}

// IsSentinel reports whether id is the start or end marker.
func (id ID) IsSentinel() bool {
	return id.Site == 0
}

// +------+
// | JSON |
// +------+

// MarshalJSON encodes the ID as a [site, clock] pair.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]uint32{id.Site, id.Clock})
}

// UnmarshalJSON decodes a [site, clock] pair.
func (id *ID) UnmarshalJSON(data []byte) error {
	var pair []uint32
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("id: want [site, clock], got %d elements", len(pair))
	}
	id.Site, id.Clock = pair[0], pair[1]
	return nil
}
