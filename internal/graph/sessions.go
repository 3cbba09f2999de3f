package graph

import "sort"

// SessionMeta carries the caller-supplied fields for StartSession.
type SessionMeta struct {
	Platform    string
	URL         string
	Title       string
	Description string
	Tags        []string
}

// StartSession ends the active session if any, then creates and
// activates a new one: at most one active session per graph.
func (g *Graph) StartSession(meta SessionMeta) *Session {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.activeSessionID != "" {
		g.endSessionLocked(g.activeSessionID)
	}

	id := g.newID()
	now := g.now()
	s := &Session{
		ID:          id,
		StartedAt:   now,
		Platform:    meta.Platform,
		URL:         meta.URL,
		Title:       meta.Title,
		Description: meta.Description,
		Tags:        meta.Tags,
		NodeIDs:     make(map[string]struct{}),
		IsActive:    true,
	}
	g.sessions[id] = s
	g.activeSessionID = id

	g.emit(Event{Type: EventSessionStarted, Session: s})
	return s
}

// EndSession implements: sets EndedAt and deactivates.
func (g *Graph) EndSession(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.endSessionLocked(id)
}

func (g *Graph) endSessionLocked(id string) bool {
	s, ok := g.sessions[id]
	if !ok || !s.IsActive {
		return false
	}
	now := g.now()
	s.EndedAt = &now
	s.IsActive = false
	if g.activeSessionID == id {
		g.activeSessionID = ""
	}
	g.emit(Event{Type: EventSessionEnded, Session: s})
	return true
}

// ActiveSession returns the currently active session, if any.
func (g *Graph) ActiveSession() (*Session, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.activeSessionID == "" {
		return nil, false
	}
	s, ok := g.sessions[g.activeSessionID]
	return s, ok
}

// GetSession looks up a session by ID.
func (g *Graph) GetSession(id string) (*Session, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[id]
	return s, ok
}

// GetRecentSessions implements: sessions sorted by StartedAt
// descending, limited.
func (g *Graph) GetRecentSessions(limit int) []*Session {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// UpsertSession inserts a session if absent (used by Sync applying a
// remote session_started message); it never overwrites an existing one.
func (g *Graph) UpsertSession(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[s.ID]; ok {
		return
	}
	if s.NodeIDs == nil {
		s.NodeIDs = make(map[string]struct{})
	}
	g.sessions[s.ID] = s
	if s.IsActive {
		g.activeSessionID = s.ID
	}
}

// TouchActiveSession applies extractor-reported side effects (
// "Session side-effects") to the currently active session, if any.
func (g *Graph) TouchActiveSession(fn func(s *Session)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.activeSessionID == "" {
		return
	}
	s, ok := g.sessions[g.activeSessionID]
	if !ok {
		return
	}
	fn(s)
}
