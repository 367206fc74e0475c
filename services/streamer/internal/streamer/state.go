// services/streamer/internal/streamer/state.go
package streamer

import "fmt"

// State is the lifecycle stage of one streaming session.
type State int32

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Subscribing
	Streaming
	Closed
	Failed
)

var stateNames = [...]string{
	Disconnected:   "disconnected",
	Connecting:     "connecting",
	Authenticating: "authenticating",
	Subscribing:    "subscribing",
	Streaming:      "streaming",
	Closed:         "closed",
	Failed:         "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}
