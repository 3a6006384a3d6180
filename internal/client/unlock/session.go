package unlock

import (
	"github.com/awnumar/memguard"
)

// Step is the position of a session in the unlock protocol.
type Step int

const (
	StepAwaitingPassword Step = iota
	StepAwaitingSecondFactor
	StepAwaitingRecoveryWords
	StepUnlocked
)

func (s Step) String() string {
	switch s {
	case StepAwaitingPassword:
		return "awaiting_password"
	case StepAwaitingSecondFactor:
		return "awaiting_second_factor"
	case StepAwaitingRecoveryWords:
		return "awaiting_recovery_words"
	case StepUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// Session carries the transient state of one unlock attempt. It is never
// persisted. The verified password lives in a locked buffer until the
// vault takes ownership of it or the session is discarded.
type Session struct {
	step      Step
	password  *memguard.LockedBuffer
	duress    bool
	positions [2]int
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) Step() Step { return s.step }

func (s *Session) Duress() bool { return s.duress }

// Positions returns the zero-based recovery word positions asked for.
func (s *Session) Positions() [2]int { return s.positions }

// Discard destroys the stashed password and rewinds to the first step.
func (s *Session) Discard() {
	if s.password != nil {
		s.password.Destroy()
		s.password = nil
	}
	*s = Session{}
}

// stash keeps a copy of password; the caller's slice is left untouched.
func (s *Session) stash(password []byte, duress bool) {
	if s.password != nil {
		s.password.Destroy()
	}
	buf := make([]byte, len(password))
	copy(buf, password)
	s.password = memguard.NewBufferFromBytes(buf)
	s.duress = duress
}

// release hands the password buffer to the caller.
func (s *Session) release() *memguard.LockedBuffer {
	buf := s.password
	s.password = nil
	return buf
}
