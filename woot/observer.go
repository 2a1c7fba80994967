package woot

// Observer is notified of the visible effect of remote operations.
//
// Positions refer to the visible text after the change. A deleted char is reported at the
// position it used to occupy.
type Observer interface {
	OnInsert(pos int, value rune, attrs Attributes)
	OnDelete(pos int)
	OnAttribute(pos int, attrs Attributes)
}

// PresenceObserver is optionally implemented by an Observer to receive cursor announcements.
type PresenceObserver interface {
	OnPresence(site uint32, pos int)
}

// ObserverFuncs adapts a set of functions to the Observer interface. Nil functions are skipped.
type ObserverFuncs struct {
	Insert    func(pos int, value rune, attrs Attributes)
	Delete    func(pos int)
	Attribute func(pos int, attrs Attributes)
	Presence  func(site uint32, pos int)
}

func (f ObserverFuncs) OnInsert(pos int, value rune, attrs Attributes) {
	if f.Insert != nil {
		f.Insert(pos, value, attrs)
	}
}

func (f ObserverFuncs) OnDelete(pos int) {
	if f.Delete != nil {
		f.Delete(pos)
	}
}

func (f ObserverFuncs) OnAttribute(pos int, attrs Attributes) {
	if f.Attribute != nil {
		f.Attribute(pos, attrs)
	}
}

func (f ObserverFuncs) OnPresence(site uint32, pos int) {
	if f.Presence != nil {
		f.Presence(site, pos)
	}
}
