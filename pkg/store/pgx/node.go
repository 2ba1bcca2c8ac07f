package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfilings/relgraph/backend/pkg/common"
	"github.com/openfilings/relgraph/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

func (s *GraphDBStorage) GetNode(ctx context.Context, nodeID string) (*common.Node, error) {
	var n common.Node
	err := s.conn.QueryRow(ctx, `
		SELECT id, name, category, provenance, needs_recalc, degree, mention_total, created_at
		FROM nodes
		WHERE id = $1
	`, nodeID).Scan(&n.ID, &n.Name, &n.Category, &n.Provenance, &n.NeedsRecalc,
		&n.Degree, &n.MentionTotal, &n.CreatedAt)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	return &n, nil
}

func (s *GraphDBStorage) ListNameRecords(ctx context.Context, nodeID string) ([]common.NameRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT variant, normalized, category, node_id, method, confidence,
			occurrences, first_seen, last_seen
		FROM name_resolutions
		WHERE node_id = $1
		ORDER BY normalized ASC
	`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query name records: %w", err)
	}
	defer rows.Close()

	out := make([]common.NameRecord, 0)
	for rows.Next() {
		var r common.NameRecord
		err := rows.Scan(&r.Variant, &r.Normalized, &r.Category, &r.NodeID,
			&r.Method, &r.Confidence, &r.Occurrences, &r.FirstSeen, &r.LastSeen)
		if err != nil {
			return nil, fmt.Errorf("failed to scan name record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *GraphDBStorage) ListNodesNeedingRecalc(ctx context.Context, limit int) ([]common.Node, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id, name, category, provenance, needs_recalc, degree, mention_total, created_at
		FROM nodes
		WHERE needs_recalc
		ORDER BY id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes needing recalculation: %w", err)
	}
	defer rows.Close()

	out := make([]common.Node, 0)
	for rows.Next() {
		var n common.Node
		err := rows.Scan(&n.ID, &n.Name, &n.Category, &n.Provenance, &n.NeedsRecalc,
			&n.Degree, &n.MentionTotal, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// RecalculateMetrics recomputes degree and mention totals for flagged
// nodes and clears their flags, all in one statement.
func (s *GraphDBStorage) RecalculateMetrics(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	tag, err := s.conn.Exec(ctx, `
		UPDATE nodes SET
			degree = (SELECT count(*) FROM edges WHERE edges.source_id = nodes.id),
			mention_total = (SELECT count(*) FROM mentions WHERE mentions.node_id = nodes.id),
			needs_recalc = false
		WHERE id IN (
			SELECT id FROM nodes WHERE needs_recalc ORDER BY id ASC LIMIT $1
		)
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to recalculate node metrics: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *GraphDBStorage) MarkRecalculated(ctx context.Context, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	_, err := s.conn.Exec(ctx, `
		UPDATE nodes SET needs_recalc = false WHERE id = ANY($1)
	`, nodeIDs)
	if err != nil {
		return fmt.Errorf("failed to clear recalculation flags: %w", err)
	}
	return nil
}
