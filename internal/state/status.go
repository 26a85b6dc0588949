package state

import "go.uber.org/zap"

// statusMachine tracks the engine-wide status. It is only driven by device
// call outcomes, and only from inside the device serialization point.
type statusMachine struct {
	value  *Value[Status]
	logger *zap.Logger
}

func newStatusMachine(logger *zap.Logger) *statusMachine {
	return &statusMachine{
		value:  NewValue(StatusIdle),
		logger: logger,
	}
}

// BeginSync marks a commit or initial load as outstanding
func (s *statusMachine) BeginSync() {
	s.transition(StatusSyncing)
}

// Succeeded records a successful device call; ConnectionLost recovers here
func (s *statusMachine) Succeeded() {
	s.transition(StatusIdle)
}

// Failed records a failed device call
func (s *statusMachine) Failed(op string, err error) {
	s.logger.Warn("Device call failed",
		zap.String("op", op),
		zap.Error(err))
	s.transition(StatusConnectionLost)
}

func (s *statusMachine) transition(to Status) {
	from := s.value.Get()
	if s.value.Set(to) {
		s.logger.Debug("Status changed",
			zap.Stringer("from", from),
			zap.Stringer("to", to))
	}
}
