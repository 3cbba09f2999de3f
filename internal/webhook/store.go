package webhook

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the `{byId, order}` job document, newest first.
type Store struct {
	mu    sync.Mutex
	byID  map[string]*Job
	order []string
	now   func() time.Time
}

// NewStore constructs an empty job store.
func NewStore() *Store {
	return &Store{
		byID: make(map[string]*Job),
		now:  time.Now,
	}
}

// Enqueue implements enqueueJob: creates a queued job at the
// head of order.
func (s *Store) Enqueue(in EnqueueInput) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	job := &Job{
		ID:          uuid.NewString(),
		Type:        "webhook",
		ConnectorID: in.ConnectorID,
		Payload:     in.Payload,
		Headers:     in.Headers,
		Kind:        in.Kind,
		Status:      StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.byID[job.ID] = job
	s.order = append([]string{job.ID}, s.order...)
	return job
}

// Get returns a job by id.
func (s *Store) Get(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byID[id]
	return j, ok
}

// All returns every job, newest first.
func (s *Store) All() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.order))
	for _, id := range s.order {
		if j, ok := s.byID[id]; ok {
			out = append(out, j)
		}
	}
	return out
}

// oldestFirst returns job ids in reverse insertion order, per the design's
// pump scan direction.
func (s *Store) oldestFirstLocked() []string {
	out := make([]string, len(s.order))
	for i, id := range s.order {
		out[len(s.order)-1-i] = id
	}
	return out
}
