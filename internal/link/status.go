package link

import "fmt"

// Status is the connectivity state of a link.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusFailed       Status = "failed"
)

func (s Status) String() string {
	return string(s)
}

// validTransitions lists the allowed moves: from -> to.
// Disconnect is allowed from every state.
var validTransitions = map[Status][]Status{
	StatusDisconnected: {StatusConnecting},
	StatusConnecting:   {StatusConnected, StatusFailed, StatusDisconnected},
	StatusConnected:    {StatusConnecting, StatusDisconnected},
	StatusFailed:       {StatusConnecting, StatusDisconnected},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition describes one status change.
type Transition struct {
	From    Status
	To      Status
	Address string
	// Err is the cause for Failed and for Disconnected after a lost link.
	Err error
}

func (t Transition) String() string {
	if t.Err != nil {
		return fmt.Sprintf("%s -> %s (%s): %v", t.From, t.To, t.Address, t.Err)
	}
	return fmt.Sprintf("%s -> %s (%s)", t.From, t.To, t.Address)
}

// Listener is called exactly once per status change, outside the link's lock.
type Listener func(Transition)
