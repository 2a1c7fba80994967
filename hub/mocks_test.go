package hub

// Mock document ID generation for testing. Returns a function to undo the mocking.
func MockDocIDs(ids ...string) func() {
	var i int
	oldNewDocID := newDocID
	undo := func() { newDocID = oldNewDocID }
	newDocID = func() string {
		id := ids[i]
		i++
		return id
	}
	return undo
}
