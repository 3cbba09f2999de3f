package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memcore/internal/graph"
)

func fastConfig(tabID string) Config {
	return Config{
		TabID:           tabID,
		ElectionWait:    15 * time.Millisecond,
		HeartbeatTTL:    30 * time.Millisecond,
		LeaderDeadAfter: 90 * time.Millisecond,
		PersistDebounce: 10 * time.Millisecond,
	}
}

func TestElectionSingleTabClaimsLeadershipWhenNoPeerResponds(t *testing.T) {
	g := graph.New()
	tr := NewMemTransport(t.Name())
	defer tr.Close()

	b := NewBroadcaster(g, tr, fastConfig("only"))
	b.Start(context.Background())
	defer b.Stop()

	require.Eventually(t, b.IsLeader, time.Second, 5*time.Millisecond)
}

// TestElectionTieBreakSmallerTabIDWins exercises the leader
// election scenario (E5): two tabs start concurrently, race to claim
// leadership, and the tab with the lexicographically smaller tabId wins;
// the loser yields and catches up via full sync.
func TestElectionTieBreakSmallerTabIDWins(t *testing.T) {
	channel := t.Name()
	g1 := graph.New()
	g1.AddNode(graph.NodeLanguage, "python", nil)

	g2 := graph.New()

	tr1 := NewMemTransport(channel)
	defer tr1.Close()
	tr2 := NewMemTransport(channel)
	defer tr2.Close()

	b1 := NewBroadcaster(g1, tr1, fastConfig("tab1")) // smaller tabId
	b2 := NewBroadcaster(g2, tr2, fastConfig("tab2")) // larger tabId

	ctx := context.Background()
	b1.Start(ctx)
	b2.Start(ctx)
	defer b1.Stop()
	defer b2.Stop()

	require.Eventually(t, func() bool {
		return b1.IsLeader() && !b2.IsLeader()
	}, 2*time.Second, 5*time.Millisecond, "the tab with the smaller tabId must win the election")

	require.Eventually(t, func() bool {
		_, ok := g2.GetNode(firstNodeID(g1))
		return ok
	}, 2*time.Second, 5*time.Millisecond, "the loser must catch up on the winner's pre-existing state via full sync")
}

func firstNodeID(g *graph.Graph) string {
	nodes := g.Query(graph.Criteria{Types: []graph.NodeType{graph.NodeLanguage}})
	if len(nodes) == 0 {
		return ""
	}
	return nodes[0].ID
}

func TestOwnMessageIsIgnored(t *testing.T) {
	channel := t.Name()
	g := graph.New()
	tr := NewMemTransport(channel)
	defer tr.Close()

	// A second, independent transport instance on the same channel plays
	// the role of an observer seeing the hub's fan-out, so inspecting it
	// doesn't steal messages from the broadcaster's own subscription.
	observer := NewMemTransport(channel)
	defer observer.Close()

	b := NewBroadcaster(g, tr, fastConfig("me"))
	var sawOwnClaim bool
	observer.OnMessage(func(msg Message) {
		if msg.TabID == "me" && msg.Type == MsgLeaderClaim {
			sawOwnClaim = true
		}
	})
	b.Start(context.Background())
	defer b.Stop()

	require.Eventually(t, func() bool { return sawOwnClaim }, time.Second, 5*time.Millisecond,
		"the transport itself should still deliver the tab's own post to other subscribers")
	require.True(t, b.IsLeader())
}

func TestConflictResolutionNodeUpdatedAppliesOnlyIfNewer(t *testing.T) {
	g := graph.New()
	n := g.AddNode(graph.NodeLanguage, "python", nil)
	n.Metadata.UpdatedAt = time.Now()
	original := n.Metadata.UpdatedAt

	older := *n
	older.Metadata.UpdatedAt = original.Add(-time.Hour)
	older.Importance = 0.99
	applied := g.ApplyRemoteNode(older)
	require.False(t, applied, "an older update must be dropped")
	stored, _ := g.GetNode(n.ID)
	require.NotEqual(t, 0.99, stored.Importance)

	newer := *n
	newer.Metadata.UpdatedAt = original.Add(time.Hour)
	newer.Importance = 0.42
	applied = g.ApplyRemoteNode(newer)
	require.True(t, applied, "a newer update must be applied")
	stored, _ = g.GetNode(n.ID)
	require.Equal(t, 0.42, stored.Importance)
}

func TestConflictResolutionEdgeAddedOnce(t *testing.T) {
	g := graph.New()
	a := g.AddNode(graph.NodeFramework, "django", nil)
	b := g.AddNode(graph.NodeLanguage, "python", nil)

	e := graph.Edge{ID: "e1", SourceID: a.ID, TargetID: b.ID, Type: graph.EdgePartOf, Weight: 1}
	require.True(t, g.ApplyRemoteEdge(e))

	again := e
	again.Weight = 2
	require.False(t, g.ApplyRemoteEdge(again), "edges are add-once; a repeat must be a no-op")
	require.Equal(t, 1, g.EdgeCount())
}

func TestFullSyncOnlyReplacesWhenIncomingIsNewer(t *testing.T) {
	channel := t.Name()
	followerGraph := graph.New()
	followerGraph.AddNode(graph.NodeLanguage, "go", nil)

	// The leader's graph is modified last, so its snapshot is the newer one.
	leaderGraph := graph.New()
	leaderGraph.AddNode(graph.NodeLanguage, "rust", nil)

	trLeader := NewMemTransport(channel)
	defer trLeader.Close()
	trFollower := NewMemTransport(channel)
	defer trFollower.Close()

	leader := NewBroadcaster(leaderGraph, trLeader, fastConfig("leader"))
	follower := NewBroadcaster(followerGraph, trFollower, fastConfig("zzz-follower"))

	ctx := context.Background()
	leader.Start(ctx)
	defer leader.Stop()
	require.Eventually(t, leader.IsLeader, time.Second, 5*time.Millisecond)

	follower.Start(ctx)
	defer follower.Stop()

	require.Eventually(t, func() bool {
		return followerGraph.NodeCount() == 1 && nodeTypePresent(followerGraph, graph.NodeLanguage, "rust")
	}, 2*time.Second, 5*time.Millisecond, "follower must replace its own state with the leader's newer snapshot")
}

func nodeTypePresent(g *graph.Graph, t graph.NodeType, content string) bool {
	for _, n := range g.Query(graph.Criteria{Types: []graph.NodeType{t}}) {
		if s, ok := n.Content.(string); ok && s == content {
			return true
		}
	}
	return false
}

// TestDisjointEditsConvergeAcrossTabs covers the sync law that two tabs
// adding distinct nodes concurrently end up with the union of both, each
// applied exactly once (no loss, no duplication).
func TestDisjointEditsConvergeAcrossTabs(t *testing.T) {
	channel := t.Name()
	g1 := graph.New()
	g2 := graph.New()

	tr1 := NewMemTransport(channel)
	defer tr1.Close()
	tr2 := NewMemTransport(channel)
	defer tr2.Close()

	b1 := NewBroadcaster(g1, tr1, fastConfig("tab1"))
	b2 := NewBroadcaster(g2, tr2, fastConfig("tab2"))

	ctx := context.Background()
	b1.Start(ctx)
	b2.Start(ctx)
	defer b1.Stop()
	defer b2.Stop()

	require.Eventually(t, func() bool { return b1.IsLeader() || b2.IsLeader() }, time.Second, 5*time.Millisecond)

	g1.AddNode(graph.NodeLanguage, "elixir", nil)
	g2.AddNode(graph.NodeFramework, "phoenix", nil)

	require.Eventually(t, func() bool {
		return nodeTypePresent(g1, graph.NodeFramework, "phoenix") && nodeTypePresent(g2, graph.NodeLanguage, "elixir")
	}, 2*time.Second, 5*time.Millisecond, "each tab must pick up the other's disjoint addition")

	require.Equal(t, 2, g1.NodeCount())
	require.Equal(t, 2, g2.NodeCount())
}

// TestLeaderDeathTriggersTakeoverWithinOneElectionRound covers 's
// watchdog: once the known leader goes silent past LeaderDeadAfter, a
// surviving follower restarts election and claims leadership itself.
func TestLeaderDeathTriggersTakeoverWithinOneElectionRound(t *testing.T) {
	channel := t.Name()
	cfg := fastConfig("")
	cfg.LeaderDeadAfter = 40 * time.Millisecond

	leaderGraph := graph.New()
	followerGraph := graph.New()

	trLeader := NewMemTransport(channel)
	trFollower := NewMemTransport(channel)
	defer trFollower.Close()

	leaderCfg := cfg
	leaderCfg.TabID = "leader"
	followerCfg := cfg
	followerCfg.TabID = "follower"

	leader := NewBroadcaster(leaderGraph, trLeader, leaderCfg)
	follower := NewBroadcaster(followerGraph, trFollower, followerCfg)

	ctx := context.Background()
	leader.Start(ctx)
	require.Eventually(t, leader.IsLeader, time.Second, 5*time.Millisecond)

	follower.Start(ctx)
	defer follower.Stop()
	require.Eventually(t, func() bool { return !follower.IsLeader() }, time.Second, 5*time.Millisecond)

	// Simulate the leader's tab dying without a graceful MsgLeaderRelease:
	// close its transport so no further heartbeats arrive, without calling
	// Stop (which would post a release message).
	trLeader.Close()

	require.Eventually(t, follower.IsLeader, 2*time.Second, 5*time.Millisecond,
		"a follower must take over once the leader has been silent past LeaderDeadAfter")
}
