package link

// State is the lifecycle phase of the USB link.
type State int32

const (
	StateInitializing State = iota
	StateDisconnected
	StateConnected
	StateServicing
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateServicing:
		return "servicing"
	default:
		return "unknown"
	}
}

// StateNames lists every state name, for metric labels.
var StateNames = []string{
	StateInitializing.String(),
	StateDisconnected.String(),
	StateConnected.String(),
	StateServicing.String(),
}
