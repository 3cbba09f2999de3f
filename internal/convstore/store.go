package convstore

import (
	"encoding/json"
	"time"
)

// Save implements the save algorithm: canonical-ID migration,
// merge-preserving tags/pinned/notes, head-of-order placement, then
// eviction.
func (s *Store) Save(in SaveInput) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	canonical := CanonicalID(in.URL, in.ID)
	normURL := normalizeURL(in.URL)

	if normURL != "" {
		if prevID, ok := s.urlToID[normURL]; ok && prevID != canonical {
			if prev, ok := s.byID[prevID]; ok {
				if _, exists := s.byID[canonical]; !exists {
					moved := *prev
					moved.ID = canonical
					s.byID[canonical] = &moved
				}
			}
			s.removeFromOrderLocked(prevID)
			delete(s.byID, prevID)
		}
	}

	existing := s.byID[canonical]
	now := s.now()
	merged := mergeConversation(existing, in, now)
	merged.ID = canonical
	s.byID[canonical] = merged

	s.moveToHeadLocked(canonical)
	if normURL != "" {
		s.urlToID[normURL] = canonical
	}
	s.evictLocked()
	return merged
}

func mergeConversation(existing *Conversation, in SaveInput, now time.Time) *Conversation {
	out := &Conversation{}
	if existing != nil {
		*out = *existing
	}
	out.Title = in.Title
	out.URL = in.URL
	out.TS = in.TS
	out.Messages = in.Messages
	out.Text = in.Text
	if in.Hash != "" {
		out.Hash = in.Hash
	}
	if in.Tags != nil {
		out.Tags = normalizeTags(*in.Tags)
	} else if out.Tags == nil {
		out.Tags = []string{}
	}
	if in.Pinned != nil {
		out.Pinned = *in.Pinned
	}
	if in.Notes != nil {
		out.Notes = *in.Notes
	}
	if existing == nil {
		out.CreatedAt = now
	}
	out.UpdatedAt = now
	return out
}

func normalizeTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}

// Get returns a conversation by canonical id.
func (s *Store) Get(id string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	return c, ok
}

// GetIDForURL resolves the canonical id currently mapped to a URL.
func (s *Store) GetIDForURL(url string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.urlToID[normalizeURL(url)]
	return id, ok
}

// Delete removes a conversation, and any urlToId entries pointing at it.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	s.removeFromOrderLocked(id)
	for url, mapped := range s.urlToID {
		if mapped == id {
			delete(s.urlToID, url)
		}
	}
	return true
}

// UpdateMeta implements updateConversationMeta: merge patch
// fields, normalize, refresh updatedAt, move to head.
func (s *Store) UpdateMeta(id string, patch MetaPatch) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	if patch.Tags != nil {
		c.Tags = normalizeTags(*patch.Tags)
	}
	if patch.Pinned != nil {
		c.Pinned = *patch.Pinned
	}
	if patch.Notes != nil {
		c.Notes = *patch.Notes
	}
	c.UpdatedAt = s.now()
	s.moveToHeadLocked(id)
	return c, true
}

// All returns every live conversation in order (most-recently-updated
// first), for use by Search.
func (s *Store) All() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conversation, 0, len(s.order))
	for _, id := range s.order {
		if c, ok := s.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) moveToHeadLocked(id string) {
	s.removeFromOrderLocked(id)
	s.order = append([]string{id}, s.order...)
}

func (s *Store) removeFromOrderLocked(id string) {
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *Store) popTailLocked() {
	if len(s.order) == 0 {
		return
	}
	id := s.order[len(s.order)-1]
	s.order = s.order[:len(s.order)-1]
	delete(s.byID, id)
	for url, mapped := range s.urlToID {
		if mapped == id {
			delete(s.urlToID, url)
		}
	}
}

// evictLocked implements eviction: pop the tail while over
// maxItems, then while over maxBytes (and more than one item remains).
func (s *Store) evictLocked() {
	for len(s.order) > s.maxItems {
		s.popTailLocked()
	}
	for len(s.order) > 1 && s.approxSizeLocked() > s.maxBytes {
		s.popTailLocked()
	}
}

type docJSON struct {
	ByID    map[string]*Conversation `json:"byId"`
	Order   []string                 `json:"order"`
	URLToID map[string]string        `json:"urlToId"`
}

// approxSizeLocked is the approxSize: the length of a JSON
// serialization of the whole store document.
func (s *Store) approxSizeLocked() int {
	b, err := json.Marshal(docJSON{ByID: s.byID, Order: s.order, URLToID: s.urlToID})
	if err != nil {
		return 0
	}
	return len(b)
}
