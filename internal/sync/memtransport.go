package sync

import (
	"errors"
	"sync"
)

// hub fans out messages posted on a named channel to every subscriber on
// that channel, simulating a browser BroadcastChannel shared by several
// tabs in the same process. Subscribers across separate MemTransport
// instances that name the same channel see each other's posts, which is
// what lets tests exercise leader election and conflict resolution
// without a real browser or an external broker.
type hub struct {
	mu   sync.Mutex
	subs map[int]chan Message
	next int
}

func (h *hub) subscribe() (int, chan Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan Message, 64)
	h.subs[id] = ch
	return id, ch
}

func (h *hub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *hub) broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			// a slow/blocked subscriber never stalls the broadcaster
		}
	}
}

var hubRegistry = struct {
	mu sync.Mutex
	m  map[string]*hub
}{m: make(map[string]*hub)}

func getHub(channel string) *hub {
	hubRegistry.mu.Lock()
	defer hubRegistry.mu.Unlock()
	h, ok := hubRegistry.m[channel]
	if !ok {
		h = &hub{subs: make(map[int]chan Message)}
		hubRegistry.m[channel] = h
	}
	return h
}

// MemTransport is the zero-dependency default transport: an in-process
// broadcast hub keyed by channel name. It is also the harness every sync
// test uses to simulate multiple tabs.
type MemTransport struct {
	h    *hub
	id   int
	ch   chan Message
	once sync.Once
}

// NewMemTransport joins (or creates) the named in-process channel.
func NewMemTransport(channel string) *MemTransport {
	h := getHub(channel)
	id, ch := h.subscribe()
	return &MemTransport{h: h, id: id, ch: ch}
}

// Post fans msg out to every subscriber on the channel; once this
// transport is closed it delivers nothing and returns an error.
func (t *MemTransport) Post(msg Message) error {
	t.h.mu.Lock()
	_, open := t.h.subs[t.id]
	t.h.mu.Unlock()
	if !open {
		return errors.New("sync: transport closed")
	}
	t.h.broadcast(msg)
	return nil
}

func (t *MemTransport) OnMessage(cb func(Message)) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range t.ch {
			cb(msg)
		}
	}()
	return func() {
		t.once.Do(func() { t.h.unsubscribe(t.id) })
		<-done
	}
}

func (t *MemTransport) Close() error {
	t.once.Do(func() { t.h.unsubscribe(t.id) })
	return nil
}
