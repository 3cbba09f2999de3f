package graphstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"memcore/internal/graph"
)

// PostgresBackend is the durable, production Backend: nodes/edges/
// sessions/meta each become a table. SaveGraph replaces the node, edge
// and session tables wholesale (TRUNCATE, then INSERT, in one
// transaction); only the meta row is written with an ON CONFLICT upsert.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresPool opens a connection pool with conservative defaults.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// NewPostgresBackend opens the schema (best-effort CREATE TABLE IF NOT
// EXISTS) and returns a ready Backend.
func NewPostgresBackend(ctx context.Context, pool *pgxpool.Pool) (*PostgresBackend, error) {
	b := &PostgresBackend{pool: pool}
	if err := b.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *PostgresBackend) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memcore_nodes (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			platform TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			record JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS memcore_nodes_type ON memcore_nodes(type)`,
		`CREATE INDEX IF NOT EXISTS memcore_nodes_platform ON memcore_nodes(platform)`,
		`CREATE INDEX IF NOT EXISTS memcore_nodes_session ON memcore_nodes(session_id)`,
		`CREATE INDEX IF NOT EXISTS memcore_nodes_created_at ON memcore_nodes(created_at)`,
		`CREATE INDEX IF NOT EXISTS memcore_nodes_type_platform ON memcore_nodes(type, platform)`,
		`CREATE TABLE IF NOT EXISTS memcore_edges (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			record JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS memcore_edges_type ON memcore_edges(type)`,
		`CREATE INDEX IF NOT EXISTS memcore_edges_source ON memcore_edges(source_id)`,
		`CREATE INDEX IF NOT EXISTS memcore_edges_target ON memcore_edges(target_id)`,
		`CREATE INDEX IF NOT EXISTS memcore_edges_src_dst ON memcore_edges(source_id, target_id)`,
		`CREATE TABLE IF NOT EXISTS memcore_sessions (
			id TEXT PRIMARY KEY,
			platform TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			is_active BOOLEAN NOT NULL,
			record JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS memcore_sessions_platform ON memcore_sessions(platform)`,
		`CREATE INDEX IF NOT EXISTS memcore_sessions_started_at ON memcore_sessions(started_at)`,
		`CREATE INDEX IF NOT EXISTS memcore_sessions_active ON memcore_sessions(is_active)`,
		`CREATE TABLE IF NOT EXISTS memcore_meta (
			key TEXT PRIMARY KEY,
			value JSONB NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := b.pool.Exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (b *PostgresBackend) SaveGraph(ctx context.Context, snap graph.Snapshot) error {
	// Marshaling nodes/edges/sessions is independent CPU work; fan it out
	// and join before opening the transaction, since pgx transactions
	// themselves must stay single-threaded.
	nodesRaw := make([][]byte, len(snap.Nodes))
	edgesRaw := make([][]byte, len(snap.Edges))
	sessionsRaw := make([][]byte, len(snap.Sessions))
	g := new(errgroup.Group)
	g.Go(func() error {
		for i, n := range snap.Nodes {
			raw, err := json.Marshal(n)
			if err != nil {
				return err
			}
			nodesRaw[i] = raw
		}
		return nil
	})
	g.Go(func() error {
		for i, e := range snap.Edges {
			raw, err := json.Marshal(e)
			if err != nil {
				return err
			}
			edgesRaw[i] = raw
		}
		return nil
	})
	g.Go(func() error {
		for i, sr := range snap.Sessions {
			raw, err := json.Marshal(sr)
			if err != nil {
				return err
			}
			sessionsRaw[i] = raw
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE memcore_nodes, memcore_edges, memcore_sessions`); err != nil {
		return err
	}
	for i, n := range snap.Nodes {
		if _, err := tx.Exec(ctx, `
			INSERT INTO memcore_nodes(id, type, platform, session_id, created_at, record)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			n.ID, string(n.Type), n.Platform, n.SessionID, n.Metadata.CreatedAt, nodesRaw[i]); err != nil {
			return err
		}
	}
	for i, e := range snap.Edges {
		if _, err := tx.Exec(ctx, `
			INSERT INTO memcore_edges(id, type, source_id, target_id, record)
			VALUES ($1,$2,$3,$4,$5)`,
			e.ID, string(e.Type), e.SourceID, e.TargetID, edgesRaw[i]); err != nil {
			return err
		}
	}
	for i, sr := range snap.Sessions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO memcore_sessions(id, platform, started_at, is_active, record)
			VALUES ($1,$2,$3,$4,$5)`,
			sr.ID, sr.Platform, sr.StartedAt, sr.IsActive, sessionsRaw[i]); err != nil {
			return err
		}
	}

	meta, err := json.Marshal(metaDoc{
		Stats:           Stats{NodeCount: len(snap.Nodes), EdgeCount: len(snap.Edges), SessionCount: len(snap.Sessions), LastSaved: time.Now()},
		ActiveSessionID: snap.ActiveSessionID,
	})
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO memcore_meta(key, value) VALUES ('graph', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, meta); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type metaDoc struct {
	Stats           Stats  `json:"stats"`
	ActiveSessionID string `json:"activeSessionId"`
}

func (b *PostgresBackend) LoadGraph(ctx context.Context) (graph.Snapshot, bool, error) {
	var metaRaw []byte
	err := b.pool.QueryRow(ctx, `SELECT value FROM memcore_meta WHERE key = 'graph'`).Scan(&metaRaw)
	if err != nil {
		return graph.Snapshot{}, false, nil
	}
	var meta metaDoc
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return graph.Snapshot{}, false, err
	}

	snap := graph.Snapshot{ActiveSessionID: meta.ActiveSessionID, Stats: graph.Stats{
		NodeCount: meta.Stats.NodeCount, EdgeCount: meta.Stats.EdgeCount,
		SessionCount: meta.Stats.SessionCount, LastModified: meta.Stats.LastSaved,
	}}

	nodeRows, err := b.pool.Query(ctx, `SELECT record FROM memcore_nodes`)
	if err != nil {
		return graph.Snapshot{}, false, err
	}
	for nodeRows.Next() {
		var raw []byte
		if err := nodeRows.Scan(&raw); err != nil {
			nodeRows.Close()
			return graph.Snapshot{}, false, err
		}
		var n graph.Node
		if err := json.Unmarshal(raw, &n); err != nil {
			nodeRows.Close()
			return graph.Snapshot{}, false, err
		}
		snap.Nodes = append(snap.Nodes, n)
	}
	nodeRows.Close()
	if err := nodeRows.Err(); err != nil {
		return graph.Snapshot{}, false, err
	}

	edgeRows, err := b.pool.Query(ctx, `SELECT record FROM memcore_edges`)
	if err != nil {
		return graph.Snapshot{}, false, err
	}
	for edgeRows.Next() {
		var raw []byte
		if err := edgeRows.Scan(&raw); err != nil {
			edgeRows.Close()
			return graph.Snapshot{}, false, err
		}
		var e graph.Edge
		if err := json.Unmarshal(raw, &e); err != nil {
			edgeRows.Close()
			return graph.Snapshot{}, false, err
		}
		snap.Edges = append(snap.Edges, e)
	}
	edgeRows.Close()
	if err := edgeRows.Err(); err != nil {
		return graph.Snapshot{}, false, err
	}

	sessionRows, err := b.pool.Query(ctx, `SELECT record FROM memcore_sessions`)
	if err != nil {
		return graph.Snapshot{}, false, err
	}
	for sessionRows.Next() {
		var raw []byte
		if err := sessionRows.Scan(&raw); err != nil {
			sessionRows.Close()
			return graph.Snapshot{}, false, err
		}
		var sr graph.SessionRecord
		if err := json.Unmarshal(raw, &sr); err != nil {
			sessionRows.Close()
			return graph.Snapshot{}, false, err
		}
		snap.Sessions = append(snap.Sessions, sr)
	}
	sessionRows.Close()
	if err := sessionRows.Err(); err != nil {
		return graph.Snapshot{}, false, err
	}

	return snap, true, nil
}

func (b *PostgresBackend) PruneOldNodes(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	tag, err := b.pool.Exec(ctx, `DELETE FROM memcore_nodes WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n := int(tag.RowsAffected())
	if n > 0 {
		if _, err := b.pruneOrphanedEdgesExec(ctx); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (b *PostgresBackend) pruneOrphanedEdgesExec(ctx context.Context) (int, error) {
	tag, err := b.pool.Exec(ctx, `
		DELETE FROM memcore_edges
		WHERE source_id NOT IN (SELECT id FROM memcore_nodes)
		   OR target_id NOT IN (SELECT id FROM memcore_nodes)`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (b *PostgresBackend) PruneOrphanedEdges(ctx context.Context) (int, error) {
	return b.pruneOrphanedEdgesExec(ctx)
}

func (b *PostgresBackend) Compact(ctx context.Context, minRelevance float64) (int, error) {
	cutoff := time.Now().Add(-compactAge)
	rows, err := b.pool.Query(ctx, `SELECT id, record FROM memcore_nodes WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	var toDelete []string
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return 0, err
		}
		var n graph.Node
		if err := json.Unmarshal(raw, &n); err != nil {
			rows.Close()
			return 0, err
		}
		if graph.RelevanceScore(&n, now) < minRelevance {
			toDelete = append(toDelete, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(toDelete) == 0 {
		return 0, nil
	}
	if _, err := b.pool.Exec(ctx, `DELETE FROM memcore_nodes WHERE id = ANY($1)`, toDelete); err != nil {
		return 0, err
	}
	if _, err := b.pruneOrphanedEdgesExec(ctx); err != nil {
		return len(toDelete), err
	}
	return len(toDelete), nil
}

func (b *PostgresBackend) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	row := b.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM memcore_nodes),
			(SELECT count(*) FROM memcore_edges),
			(SELECT count(*) FROM memcore_sessions)`)
	if err := row.Scan(&s.NodeCount, &s.EdgeCount, &s.SessionCount); err != nil {
		return Stats{}, err
	}

	var metaRaw []byte
	if err := b.pool.QueryRow(ctx, `SELECT value FROM memcore_meta WHERE key = 'graph'`).Scan(&metaRaw); err == nil {
		var meta metaDoc
		if json.Unmarshal(metaRaw, &meta) == nil {
			s.LastSaved = meta.Stats.LastSaved
		}
	}
	return s, nil
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
