package store

import (
	"context"
	"errors"

	"github.com/openfilings/relgraph/backend/pkg/common"
)

// ErrConflict is returned when a write lost a race on a uniqueness
// constraint (concurrent identity mint or edge create). The operation is
// retryable: re-running it observes the winning writer's committed row.
var ErrConflict = errors.New("storage conflict")

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = errors.New("not found")

// GraphStorage is the persistence boundary of the graph-construction core.
//
// The two mutating operations are transactional composites by contract:
// ArchiveMentions resolves each mention's canonical identity and writes the
// mention in the same transaction, and UpsertRelationship resolves both
// endpoints and writes (or enriches) both directional edges in the same
// transaction. Neither exposes a partial two-phase form.
type GraphStorage interface {
	// ArchiveMentions resolves and archives a batch of extracted mentions.
	// Mentions of non-node categories (dates, monetary amounts) are
	// silently skipped. Replaying a batch is idempotent: a mention with an
	// already-archived (document, span) key only bumps name-resolution
	// bookkeeping.
	ArchiveMentions(ctx context.Context, mentions []common.MentionInput) ([]common.Mention, error)

	// UpsertRelationship commits one normalized relationship observation as
	// an edge pair, creating inferred stub nodes for endpoint names that
	// extraction never observed. Both directions are created or enriched
	// atomically, and both endpoint nodes are flagged for aggregate-metric
	// recomputation.
	UpsertRelationship(ctx context.Context, rel common.Relationship) (common.EdgePair, error)

	GetNode(ctx context.Context, nodeID string) (*common.Node, error)
	GetEdge(ctx context.Context, sourceID, targetID string, relType common.RelationType) (*common.Edge, error)
	ListNameRecords(ctx context.Context, nodeID string) ([]common.NameRecord, error)
	ListMentions(ctx context.Context, nodeID string) ([]common.Mention, error)

	// ListNodesNeedingRecalc, RecalculateMetrics, and MarkRecalculated back
	// the batch job that keeps per-node aggregates current. Edge writes
	// only flag nodes; recomputation happens out of band.
	ListNodesNeedingRecalc(ctx context.Context, limit int) ([]common.Node, error)
	RecalculateMetrics(ctx context.Context, limit int) (int, error)
	MarkRecalculated(ctx context.Context, nodeIDs []string) error
}
