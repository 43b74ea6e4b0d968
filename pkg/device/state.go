package device

type State int8

const (
	Idle State = iota
	Connecting
	StartSubscr
	Running
	Fail
	Close
	Closed
)

var stateToString = map[State]string{
	Idle:        "idle",
	Connecting:  "connecting",
	StartSubscr: "startSubscr",
	Running:     "running",
	Fail:        "fail",
	Close:       "close",
	Closed:      "closed",
}

func (s State) String() string {
	if str, ok := stateToString[s]; ok {
		return str
	}
	return "unknown"
}

type Event int8

const (
	EventStart Event = iota
	EventLoginSucceeded
	EventLoginFailed
	EventConnectionLost
	EventRetryElapsed
	EventCloseRequested
	EventLogoutDone
)

var eventToString = map[Event]string{
	EventStart:          "start",
	EventLoginSucceeded: "loginSucceeded",
	EventLoginFailed:    "loginFailed",
	EventConnectionLost: "connectionLost",
	EventRetryElapsed:   "retryElapsed",
	EventCloseRequested: "closeRequested",
	EventLogoutDone:     "logoutDone",
}

func (e Event) String() string {
	if str, ok := eventToString[e]; ok {
		return str
	}
	return "unknown"
}

type Effect int8

const (
	// ArmTimeout sets the retry deadline to now plus the retry delay.
	ArmTimeout Effect = iota
	Login
	StartSamplers
	StopSamplers
	// Logout is fire and forget.
	Logout
	// LogoutAwait raises EventLogoutDone on completion.
	LogoutAwait
	CloseSink
	SignalClosed
)

var effectToString = map[Effect]string{
	ArmTimeout:    "armTimeout",
	Login:         "login",
	StartSamplers: "startSamplers",
	StopSamplers:  "stopSamplers",
	Logout:        "logout",
	LogoutAwait:   "logoutAwait",
	CloseSink:     "closeSink",
	SignalClosed:  "signalClosed",
}

func (e Effect) String() string {
	if str, ok := effectToString[e]; ok {
		return str
	}
	return "unknown"
}

type transition struct {
	from State
	ev   Event
}

var transitions = map[transition]State{
	{Idle, EventStart}:                Connecting,
	{Idle, EventCloseRequested}:       Closed,
	{Connecting, EventLoginSucceeded}: StartSubscr,
	{Connecting, EventLoginFailed}:    Fail,
	{Running, EventConnectionLost}:    Fail,
	{Running, EventCloseRequested}:    Close,
	{Fail, EventRetryElapsed}:         Connecting,
	{Fail, EventCloseRequested}:       Closed,
	{Close, EventLogoutDone}:          Closed,
}

// Next maps an event to the target state. ok is false when the event does not
// move the device out of from; a close request observed in connecting is
// honored on entry to startSubscr or fail instead.
func Next(from State, ev Event) (to State, ok bool) {
	to, ok = transitions[transition{from, ev}]
	return
}

// Enter returns the entry effects of s. When chained is true the device moves
// on to next right after the effects ran.
func Enter(s State, closeRequested bool) (effects []Effect, next State, chained bool) {
	switch s {
	case Connecting:
		return []Effect{ArmTimeout, Login}, s, false
	case StartSubscr:
		if closeRequested {
			return nil, Close, true
		}
		return []Effect{StartSamplers}, Running, true
	case Running:
		if closeRequested {
			return nil, Close, true
		}
	case Fail:
		effects = []Effect{ArmTimeout, StopSamplers, Logout}
		if closeRequested {
			return effects, Closed, true
		}
		return effects, s, false
	case Close:
		return []Effect{StopSamplers, LogoutAwait}, s, false
	case Closed:
		return []Effect{CloseSink, SignalClosed}, s, false
	}
	return nil, s, false
}

// Allowed reports whether from -> to is an edge of the lifecycle graph.
func Allowed(from, to State) bool {
	for t, target := range transitions {
		if t.from == from && target == to {
			return true
		}
	}
	switch {
	case from == StartSubscr && (to == Running || to == Close):
		return true
	case from == Running && to == Close:
		return true
	case from == Fail && to == Closed:
		return true
	}
	return false
}
