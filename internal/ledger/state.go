package ledger

// State is the mutation state of the ledger service.
type State int32

const (
	StateIdle State = iota
	StateForwardSyncing
	StateBackwardSyncing
	StateRecalculating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateForwardSyncing:
		return "forward_syncing"
	case StateBackwardSyncing:
		return "backward_syncing"
	case StateRecalculating:
		return "recalculating"
	default:
		return "unknown"
	}
}

// tryAcquire moves the service from Idle to target.
// Returns false without waiting if another mutation is in flight.
func (s *Service) tryAcquire(target State) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state != StateIdle {
		return false
	}
	s.state = target
	return true
}

func (s *Service) release() {
	s.stateMu.Lock()
	s.state = StateIdle
	s.stateMu.Unlock()
}

// State returns the current mutation state.
func (s *Service) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}
