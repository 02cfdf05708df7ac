package memory

import (
	"context"
	"sync"
)

// Liveness is an in-memory reachability checker. Targets are reachable only
// while explicitly marked online.
type Liveness struct {
	mu     sync.Mutex
	online map[string]struct{}
}

// NewLiveness creates a Liveness checker with the given targets online.
func NewLiveness(online ...string) *Liveness {
	l := &Liveness{online: make(map[string]struct{}, len(online))}
	for _, name := range online {
		l.SetOnline(name, true)
	}
	return l
}

// SetOnline marks a target online or offline.
func (l *Liveness) SetOnline(name string, online bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if online {
		l.online[key(name)] = struct{}{}
	} else {
		delete(l.online, key(name))
	}
}

// IsReachable implements decom.LivenessChecker.
func (l *Liveness) IsReachable(ctx context.Context, name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.online[key(name)]
	return ok
}

// Shutdowner is an in-memory remote shutdown collaborator. A successful
// shutdown also marks the target offline on the paired Liveness checker, if
// one is attached.
type Shutdowner struct {
	mu       sync.Mutex
	shutdown []string
	liveness *Liveness

	// Err, when set, is returned by Shutdown.
	Err error
}

// NewShutdowner creates a Shutdowner. The liveness checker is optional.
func NewShutdowner(liveness *Liveness) *Shutdowner {
	return &Shutdowner{liveness: liveness}
}

// Shutdown implements decom.RemoteShutdowner.
func (s *Shutdowner) Shutdown(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	s.shutdown = append(s.shutdown, name)
	if s.liveness != nil {
		s.liveness.SetOnline(name, false)
	}
	return nil
}

// ShutdownCalls returns the targets shut down so far, in call order.
func (s *Shutdowner) ShutdownCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.shutdown))
	copy(out, s.shutdown)
	return out
}
