package discovery

import "time"

// SessionState is the lifecycle of the single scan in a run.
type SessionState int

const (
	// StateIdle waits for the adapter to become ready.
	StateIdle SessionState = iota

	// StateScanning receives discoveries.
	StateScanning

	// StateStopped is terminal. Later discoveries are dropped.
	StateStopped
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopReason records why scanning ended.
type StopReason string

const (
	StopNone     StopReason = ""
	StopTimeout  StopReason = "timeout"
	StopReached  StopReason = "target reached"
	StopCanceled StopReason = "canceled"
)

// Session is the scan state machine. It performs no I/O; the orchestrator
// acts on what each transition returns. It is not safe for concurrent use.
type Session struct {
	target    ScanTarget
	state     SessionState
	reason    StopReason
	startedAt time.Time
	stoppedAt time.Time
	now       func() time.Time
}

// NewSession creates an idle session for target.
func NewSession(target ScanTarget) *Session {
	return &Session{target: target, now: time.Now}
}

// State returns the current state.
func (s *Session) State() SessionState {
	return s.state
}

// Target returns the stop condition.
func (s *Session) Target() ScanTarget {
	return s.target
}

// Begin handles an adapter ready signal.
//
// From Idle it moves to Scanning and returns started == true; armTimer is
// the timeout to arm in timeout mode, zero otherwise. While already
// Scanning it returns rescan == true so the caller restarts the scan
// without touching the timer. Once Stopped it does nothing.
func (s *Session) Begin() (armTimer time.Duration, started, rescan bool) {
	switch s.state {
	case StateIdle:
		s.state = StateScanning
		s.startedAt = s.now()
		if s.target.Kind == TargetTimeout {
			return s.target.Timeout, true, false
		}
		return 0, true, false
	case StateScanning:
		return 0, false, true
	default:
		return 0, false, false
	}
}

// Accepting reports whether discoveries are still processed.
func (s *Session) Accepting() bool {
	return s.state != StateStopped
}

// ConnectOnRegister reports whether each device is connected as soon as it
// is registered, rather than in bulk when scanning stops.
func (s *Session) ConnectOnRegister() bool {
	return s.target.Kind == TargetExplicit
}

// Registered is called after each new registration with the registry size.
// In bounded modes it stops the session when the count is reached and
// returns true.
func (s *Session) Registered(count int) bool {
	if s.state == StateStopped || !s.target.Bounded() {
		return false
	}
	if count < s.target.Count {
		return false
	}
	s.stop(StopReached)
	return true
}

// Expire is called when the timeout fires. It returns true if the session
// stopped as a result.
func (s *Session) Expire() bool {
	if s.state != StateScanning || s.target.Kind != TargetTimeout {
		return false
	}
	s.stop(StopTimeout)
	return true
}

// Cancel stops the session because the run is shutting down.
func (s *Session) Cancel() {
	if s.state != StateStopped {
		s.stop(StopCanceled)
	}
}

func (s *Session) stop(reason StopReason) {
	s.state = StateStopped
	s.reason = reason
	s.stoppedAt = s.now()
}

// Status is a point-in-time view of the session for the dashboard.
type Status struct {
	State          string     `json:"state"`
	Mode           string     `json:"mode"`
	TargetCount    int        `json:"target_count,omitempty"`
	TimeoutSeconds int        `json:"timeout_seconds,omitempty"`
	TargetIDs      []string   `json:"target_ids,omitempty"`
	Registered     int        `json:"registered"`
	StopReason     string     `json:"stop_reason,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	StoppedAt      *time.Time `json:"stopped_at,omitempty"`
}

// Status builds a Status with the given registry size.
func (s *Session) Status(registered int) Status {
	st := Status{
		State:          s.state.String(),
		Mode:           s.target.Kind.String(),
		TargetCount:    s.target.Count,
		TimeoutSeconds: int(s.target.Timeout / time.Second),
		Registered:     registered,
		StopReason:     string(s.reason),
	}
	if s.target.Kind == TargetExplicit {
		st.TargetIDs = s.target.IDs.Values()
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		st.StartedAt = &t
	}
	if !s.stoppedAt.IsZero() {
		t := s.stoppedAt
		st.StoppedAt = &t
	}
	return st
}
