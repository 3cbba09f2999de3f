package router

import "sync"

// StatKind names a countable user action.
type StatKind string

const (
	StatExports StatKind = "exports"
	StatSaves   StatKind = "saves"
)

// Stats is the running count of user-visible actions, surfaced by
// get_settings.
type Stats struct {
	mu      sync.Mutex
	Exports int `json:"exports"`
	Saves   int `json:"saves"`
}

func (s *Stats) bump(kind StatKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case StatExports:
		s.Exports++
	case StatSaves:
		s.Saves++
	}
}

func (s *Stats) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Exports: s.Exports, Saves: s.Saves}
}
