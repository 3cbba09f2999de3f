package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"memcore/internal/graph"
	"memcore/internal/logging"
)

// Default timings from 
const (
	DefaultElectionWait    = 200 * time.Millisecond
	DefaultHeartbeatTTL    = 5 * time.Second
	DefaultLeaderDeadAfter = 15 * time.Second
	DefaultPersistDebounce = time.Second
)

// PersistFunc is invoked, leader-only and debounced, after the graph
// changes. It is typically a graphstore.Backend's SaveGraph bound at
// wiring time.
type PersistFunc func(ctx context.Context, snap graph.Snapshot) error

// Config configures a Broadcaster. Zero-value duration fields fall back
// to the package defaults.
type Config struct {
	TabID           string
	ElectionWait    time.Duration
	HeartbeatTTL    time.Duration
	LeaderDeadAfter time.Duration
	PersistDebounce time.Duration
	Persist         PersistFunc
}

func (c Config) withDefaults() Config {
	if c.ElectionWait <= 0 {
		c.ElectionWait = DefaultElectionWait
	}
	if c.HeartbeatTTL <= 0 {
		c.HeartbeatTTL = DefaultHeartbeatTTL
	}
	if c.LeaderDeadAfter <= 0 {
		c.LeaderDeadAfter = DefaultLeaderDeadAfter
	}
	if c.PersistDebounce <= 0 {
		c.PersistDebounce = DefaultPersistDebounce
	}
	return c
}

// Broadcaster wires a graph.Graph to a Transport: it is the graph's Sink
// (broadcasting local mutations to peer tabs), the transport's message
// handler (merging remote mutations into the graph per the design's
// conflict-resolution rules), and the leader-election state machine that
// decides which tab persists.
type Broadcaster struct {
	g         *graph.Graph
	transport Transport
	cfg       Config
	now       func() time.Time

	mu             sync.Mutex
	isLeader       bool
	leaderID       string
	leaderLastSeen time.Time
	heartbeatStop  chan struct{}
	persistTimer   *time.Timer

	suppressed int32 // >0 while applying a remote mutation; see OnGraphEvent

	unsubscribe func()
	stopOnce    sync.Once
	stopCh      chan struct{}
}

// NewBroadcaster constructs a Broadcaster. Call Start to join the channel
// and begin election; call Stop to release leadership gracefully.
func NewBroadcaster(g *graph.Graph, transport Transport, cfg Config) *Broadcaster {
	return &Broadcaster{
		g:         g,
		transport: transport,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start installs the broadcaster as the graph's sink, subscribes to the
// transport, and kicks off leader election.
func (b *Broadcaster) Start(ctx context.Context) {
	b.g.SetSink(b)
	b.unsubscribe = b.transport.OnMessage(b.handleMessage)
	go b.watchdog(ctx)
	go b.elect()
}

// Stop releases leadership (if held) and stops listening for messages.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })

	b.mu.Lock()
	wasLeader := b.isLeader
	b.isLeader = false
	b.stopHeartbeatLocked()
	if b.persistTimer != nil {
		b.persistTimer.Stop()
	}
	b.mu.Unlock()

	if wasLeader {
		_ = b.post(MsgLeaderRelease, nil, "")
	}
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
}

// IsLeader reports whether this tab currently holds leadership.
func (b *Broadcaster) IsLeader() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isLeader
}

// --- election ---

func (b *Broadcaster) elect() {
	_ = b.post(MsgLeaderQuery, nil, "")
	select {
	case <-time.After(b.cfg.ElectionWait):
	case <-b.stopCh:
		return
	}

	b.mu.Lock()
	leaderID := b.leaderID
	b.mu.Unlock()

	switch {
	case leaderID == "":
		b.claimLeadership()
	case leaderID != b.cfg.TabID:
		_ = b.post(MsgRequestFullSync, nil, "")
	}
}

func (b *Broadcaster) claimLeadership() {
	b.mu.Lock()
	b.isLeader = true
	b.leaderID = b.cfg.TabID
	b.leaderLastSeen = b.now()
	b.startHeartbeatLocked()
	b.mu.Unlock()

	_ = b.post(MsgLeaderClaim, nil, "")
	b.schedulePersist()
}

func (b *Broadcaster) startHeartbeatLocked() {
	if b.heartbeatStop != nil {
		return
	}
	stop := make(chan struct{})
	b.heartbeatStop = stop
	go func() {
		ticker := time.NewTicker(b.cfg.HeartbeatTTL)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = b.post(MsgHeartbeat, nil, "")
			}
		}
	}()
}

func (b *Broadcaster) stopHeartbeatLocked() {
	if b.heartbeatStop != nil {
		close(b.heartbeatStop)
		b.heartbeatStop = nil
	}
}

// watchdog periodically checks whether the known leader has gone silent
// past LeaderDeadAfter and, if so, restarts election (
// "takeover if leader silent > 15s").
func (b *Broadcaster) watchdog(ctx context.Context) {
	interval := b.cfg.LeaderDeadAfter / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.mu.Lock()
			isLeader := b.isLeader
			leaderID := b.leaderID
			lastSeen := b.leaderLastSeen
			b.mu.Unlock()
			if isLeader || leaderID == "" {
				continue
			}
			if b.now().Sub(lastSeen) > b.cfg.LeaderDeadAfter {
				b.mu.Lock()
				b.leaderID = ""
				b.mu.Unlock()
				go b.elect()
			}
		}
	}
}

// --- graph.Sink: broadcast local mutations ---

// OnGraphEvent implements graph.Sink. It is also invoked (synchronously,
// under the graph's own mutex, which serializes every mutation) for
// remote mutations applied from handleMessage; suppressed tracks that
// case so a merged remote event is never re-broadcast as if it were
// locally originated.
func (b *Broadcaster) OnGraphEvent(e graph.Event) {
	if atomic.LoadInt32(&b.suppressed) == 0 {
		if msg, payload := messageFor(e); msg != "" {
			_ = b.post(msg, payload, "")
		}
	}
	b.schedulePersist()
}

func messageFor(e graph.Event) (MessageType, any) {
	switch e.Type {
	case graph.EventNodeAdded:
		return MsgNodeAdded, e.Node
	case graph.EventNodeUpdated:
		return MsgNodeUpdated, e.Node
	case graph.EventNodeRemoved:
		return MsgNodeRemoved, idPayload{ID: e.Node.ID}
	case graph.EventEdgeAdded:
		return MsgEdgeAdded, e.Edge
	case graph.EventEdgeRemoved:
		return MsgEdgeRemoved, idPayload{ID: e.Edge.ID}
	case graph.EventSessionStarted:
		return MsgSessionStarted, sessionRecordOf(e.Session)
	case graph.EventSessionEnded:
		return MsgSessionEnded, idPayload{ID: e.Session.ID}
	default:
		return "", nil
	}
}

func sessionRecordOf(s *graph.Session) graph.SessionRecord {
	ids := make([]string, 0, len(s.NodeIDs))
	for id := range s.NodeIDs {
		ids = append(ids, id)
	}
	return graph.SessionRecord{Session: *s, NodeIDs: ids}
}

// schedulePersist debounces a save to the Persist hook, leader-only,
// roughly 1s after the latest broadcast.
func (b *Broadcaster) schedulePersist() {
	if b.cfg.Persist == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isLeader {
		return
	}
	if b.persistTimer != nil {
		b.persistTimer.Stop()
	}
	b.persistTimer = time.AfterFunc(b.cfg.PersistDebounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.cfg.Persist(ctx, b.g.Snapshot()); err != nil {
			logging.For("sync").Error().Err(err).Msg("persist graph failed")
		}
	})
}

func (b *Broadcaster) post(t MessageType, payload any, target string) error {
	msg := Message{
		Type:        t,
		TabID:       b.cfg.TabID,
		Timestamp:   b.now(),
		Payload:     payloadOf(payload),
		TargetTabID: target,
	}
	if err := b.transport.Post(msg); err != nil {
		logging.For("sync").Warn().Err(err).Str("type", string(t)).Msg("post failed")
		return err
	}
	return nil
}

// applyRemote runs fn (a graph mutation applying a remote message) with
// broadcast suppressed. Safe because graph.Graph serializes every
// mutation under its own mutex: no other mutation's emit can interleave
// with this one, so the suppression window exactly brackets fn's event.
func (b *Broadcaster) applyRemote(fn func()) {
	atomic.AddInt32(&b.suppressed, 1)
	fn()
	atomic.AddInt32(&b.suppressed, -1)
}
