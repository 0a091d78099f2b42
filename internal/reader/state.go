package reader

import "strings"

// State mirrors the PC/SC SCARD_STATE_* bit set so transports can convert
// with a plain cast.
type State uint32

const (
	StateUnaware     State = 0x0000
	StateIgnore      State = 0x0001
	StateChanged     State = 0x0002
	StateUnknown     State = 0x0004
	StateUnavailable State = 0x0008
	StateEmpty       State = 0x0010
	StatePresent     State = 0x0020
	StateAtrMatch    State = 0x0040
	StateExclusive   State = 0x0080
	StateInUse       State = 0x0100
	StateMute        State = 0x0200
	StateUnpowered   State = 0x0400
)

// PnPNotification is the pseudo-reader PC/SC uses to report attached and
// detached readers. It is never a card slot.
const PnPNotification = `\\?PnP?\Notification`

var stateNames = []struct {
	flag State
	name string
}{
	{StateIgnore, "ignore"},
	{StateChanged, "changed"},
	{StateUnknown, "unknown"},
	{StateUnavailable, "unavailable"},
	{StateEmpty, "empty"},
	{StatePresent, "present"},
	{StateAtrMatch, "atrmatch"},
	{StateExclusive, "exclusive"},
	{StateInUse, "inuse"},
	{StateMute, "mute"},
	{StateUnpowered, "unpowered"},
}

// Has reports whether any of the bits in flags is set.
func (s State) Has(flags State) bool {
	return s&flags != 0
}

func (s State) String() string {
	if s == StateUnaware {
		return "unaware"
	}
	var names []string
	for _, n := range stateNames {
		if s.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// Observation is the tracked state of one reader name.
type Observation struct {
	Name         string
	CurrentState State
	EventState   State
	Atr          []byte
}

// Dead reports whether the reader has gone away or become unusable.
func (o *Observation) Dead() bool {
	return o.EventState.Has(StateUnknown | StateIgnore)
}

// Sync makes the last reported event state the state the next wait compares
// against, so only deltas wake the wait up.
func (o *Observation) Sync() {
	o.CurrentState = o.EventState
}

func (o *Observation) notification() bool {
	return o.Name == PnPNotification
}
