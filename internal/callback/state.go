package callback

import "sync/atomic"

// Phase is the lifecycle position of the callback listener.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseListening
	PhaseStopping
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseListening:
		return "listening"
	case PhaseStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// StartAction tells the caller of RequestStart what to do.
type StartAction int

const (
	// ActionLaunch: the caller won the Idle→Starting transition and must run a listener.
	ActionLaunch StartAction = iota
	// ActionAnnounce: a listener is up; re-send auth:ready for the returned port.
	ActionAnnounce
	// ActionPending: a listener is starting or will restart and announces itself.
	ActionPending
)

// State tracks the single callback listener. Every transition is a
// compare-and-swap so that at most one listener exists at a time.
//
//	Idle → Starting → Listening → Stopping → Idle
//	                                 └──────→ Starting (restart requested while stopping)
type State struct {
	phase   atomic.Int32
	port    atomic.Int32
	restart atomic.Bool
}

// Snapshot returns the current phase and port. The port is 0 unless listening.
func (s *State) Snapshot() (Phase, int) {
	phase := Phase(s.phase.Load())
	port := int(s.port.Load())
	if phase != PhaseListening {
		port = 0
	}
	return phase, port
}

// RequestStart is called for every start request.
func (s *State) RequestStart() (StartAction, int) {
	for {
		switch Phase(s.phase.Load()) {
		case PhaseIdle:
			if s.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseStarting)) {
				return ActionLaunch, 0
			}
		case PhaseStarting:
			return ActionPending, 0
		case PhaseListening:
			if port := int(s.port.Load()); port != 0 {
				return ActionAnnounce, port
			}
			return ActionPending, 0
		case PhaseStopping:
			s.restart.Store(true)
			if Phase(s.phase.Load()) == PhaseStopping {
				return ActionPending, 0
			}
			// The listener finished in between. If it did not consume the
			// request, take it back and retry from Idle.
			if !s.restart.CompareAndSwap(true, false) {
				return ActionPending, 0
			}
		}
	}
}

// markListening records the bound port and publishes it.
func (s *State) markListening(port int) bool {
	s.port.Store(int32(port))
	return s.phase.CompareAndSwap(int32(PhaseStarting), int32(PhaseListening))
}

// beginStop moves Listening→Stopping so no caller re-announces a port that
// is about to close.
func (s *State) beginStop() {
	s.phase.CompareAndSwap(int32(PhaseListening), int32(PhaseStopping))
}

// finish ends a run. It reports true, leaving the phase at Starting, when a
// restart was requested while stopping. Idle is published before the restart
// flag is checked so that a concurrent RequestStart either sees Idle or has
// its request consumed here.
func (s *State) finish() bool {
	s.port.Store(0)
	s.phase.Store(int32(PhaseIdle))
	if s.restart.CompareAndSwap(true, false) {
		return s.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseStarting))
	}
	return false
}
