package sync

import (
	"encoding/json"

	"memcore/internal/graph"
)

type idPayload struct {
	ID string `json:"id"`
}

func decodePayload[T any](msg Message) T {
	var v T
	if len(msg.Payload) == 0 {
		return v
	}
	_ = json.Unmarshal(msg.Payload, &v)
	return v
}

// handleMessage is the transport callback. It filters out this tab's own
// posts (tabId equal to its own), then dispatches by message type.
func (b *Broadcaster) handleMessage(msg Message) {
	if msg.TabID == b.cfg.TabID {
		return
	}

	switch msg.Type {
	case MsgLeaderQuery:
		b.onLeaderQuery(msg)
	case MsgLeaderClaim:
		b.onLeaderClaim(msg)
	case MsgLeaderAnnounce:
		b.onLeaderAnnounce(msg)
	case MsgHeartbeat:
		b.onHeartbeat(msg)
	case MsgLeaderRelease:
		b.onLeaderRelease(msg)
	case MsgRequestFullSync:
		b.onRequestFullSync(msg)
	case MsgFullSyncResponse:
		b.onFullSyncResponse(msg)
	case MsgNodeAdded, MsgNodeUpdated:
		b.applyRemote(func() {
			b.g.ApplyRemoteNode(decodePayload[graph.Node](msg))
		})
	case MsgNodeRemoved:
		b.applyRemote(func() {
			b.g.RemoveNode(decodePayload[idPayload](msg).ID)
		})
	case MsgEdgeAdded:
		b.applyRemote(func() {
			b.g.ApplyRemoteEdge(decodePayload[graph.Edge](msg))
		})
	case MsgEdgeRemoved:
		b.applyRemote(func() {
			b.g.RemoveEdge(decodePayload[idPayload](msg).ID)
		})
	case MsgSessionStarted:
		b.applyRemote(func() {
			rec := decodePayload[graph.SessionRecord](msg)
			s := rec.Session
			s.NodeIDs = make(map[string]struct{}, len(rec.NodeIDs))
			for _, id := range rec.NodeIDs {
				s.NodeIDs[id] = struct{}{}
			}
			b.g.UpsertSession(&s)
		})
	case MsgSessionEnded:
		b.applyRemote(func() {
			b.g.EndSession(decodePayload[idPayload](msg).ID)
		})
	}
}

func (b *Broadcaster) onLeaderQuery(msg Message) {
	if b.IsLeader() {
		_ = b.post(MsgLeaderAnnounce, nil, msg.TabID)
	}
}

// onLeaderClaim implements the tie-break: on a competing claim,
// the lexicographically smaller tabId wins; the loser clears its leader
// flag and stops heartbeating.
func (b *Broadcaster) onLeaderClaim(msg Message) {
	if msg.TabID >= b.cfg.TabID {
		return
	}
	b.mu.Lock()
	wasLeader := b.isLeader
	changed := b.leaderID != msg.TabID
	b.isLeader = false
	b.leaderID = msg.TabID
	b.leaderLastSeen = b.now()
	if wasLeader {
		b.stopHeartbeatLocked()
	}
	b.mu.Unlock()

	// Catch up on whatever state the new leader already held before we
	// lost the race, not just mutations broadcast from now on.
	if changed {
		_ = b.post(MsgRequestFullSync, nil, "")
	}
}

func (b *Broadcaster) onLeaderAnnounce(msg Message) {
	if msg.TargetTabID != "" && msg.TargetTabID != b.cfg.TabID {
		return
	}
	b.mu.Lock()
	changed := b.leaderID != msg.TabID
	b.isLeader = false
	b.leaderID = msg.TabID
	b.leaderLastSeen = b.now()
	b.stopHeartbeatLocked()
	b.mu.Unlock()

	if changed {
		_ = b.post(MsgRequestFullSync, nil, "")
	}
}

func (b *Broadcaster) onHeartbeat(msg Message) {
	b.mu.Lock()
	if b.leaderID == "" || b.leaderID == msg.TabID {
		b.leaderID = msg.TabID
		b.leaderLastSeen = b.now()
	}
	b.mu.Unlock()
}

// onLeaderRelease implements the graceful-shutdown path: a departing
// leader's release immediately triggers re-election among the rest.
func (b *Broadcaster) onLeaderRelease(msg Message) {
	b.mu.Lock()
	if b.leaderID != msg.TabID {
		b.mu.Unlock()
		return
	}
	b.leaderID = ""
	b.mu.Unlock()
	go b.elect()
}

func (b *Broadcaster) onRequestFullSync(msg Message) {
	if !b.IsLeader() {
		return
	}
	_ = b.post(MsgFullSyncResponse, b.g.Snapshot(), msg.TabID)
}

// onFullSyncResponse implements the full-sync apply rule:
// replace the entire local graph only if the incoming snapshot is
// strictly newer.
func (b *Broadcaster) onFullSyncResponse(msg Message) {
	if msg.TargetTabID != b.cfg.TabID {
		return
	}
	snap := decodePayload[graph.Snapshot](msg)
	if snap.Stats.LastModified.After(b.g.Stats().LastModified) {
		b.applyRemote(func() {
			b.g.LoadSnapshot(snap)
		})
	}
}
