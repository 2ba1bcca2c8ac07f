// Package memory implements GraphStorage with in-process maps. It backs
// tests and local runs; the mutex stands in for the database-transaction
// serialization the pgx implementation gets from Postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openfilings/relgraph/backend/pkg/common"
	"github.com/openfilings/relgraph/backend/pkg/resolve"
	"github.com/openfilings/relgraph/backend/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// stubCategory is the category assigned to endpoints the relationship model
// named but no variant in any category matches.
const stubCategory = "ORGANIZATION"

type Storage struct {
	mu     sync.Mutex
	policy resolve.Policy
	merge  store.MergePolicy

	nodes       map[string]*common.Node
	names       map[string]*common.NameRecord
	mentions    map[string]*common.Mention
	mentionKeys map[string]string
	edges       map[string]*common.Edge

	now func() time.Time
}

type Option func(*Storage)

func WithPolicy(p resolve.Policy) Option {
	return func(s *Storage) {
		s.policy = p
	}
}

func WithMergePolicy(p store.MergePolicy) Option {
	return func(s *Storage) {
		s.merge = p
	}
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		s.now = now
	}
}

func New(opts ...Option) *Storage {
	s := &Storage{
		policy:      resolve.DefaultPolicy(),
		nodes:       make(map[string]*common.Node),
		names:       make(map[string]*common.NameRecord),
		mentions:    make(map[string]*common.Mention),
		mentionKeys: make(map[string]string),
		edges:       make(map[string]*common.Edge),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

func nameKey(category, normalized string) string {
	return category + "|" + normalized
}

func mentionKey(m common.MentionInput, normalized string) string {
	return fmt.Sprintf("%s|%d|%d|%s", m.DocumentRef, m.SpanStart, m.SpanEnd, normalized)
}

func edgeKey(sourceID, targetID string, relType common.RelationType) string {
	return sourceID + "|" + targetID + "|" + string(relType)
}

// resolveName assigns the canonical node for a surface form, minting a new
// node when nothing matches. Callers hold the mutex, which makes the
// lookup-or-mint atomic with whatever write the caller performs next.
func (s *Storage) resolveName(surface, category, provenance string) (string, error) {
	normalized := resolve.NormalizeName(surface)
	if normalized == "" {
		return "", fmt.Errorf("empty surface form")
	}
	now := s.now()

	if rec, ok := s.names[nameKey(category, normalized)]; ok {
		rec.Occurrences++
		rec.LastSeen = now
		return rec.NodeID, nil
	}

	candidates := make([]resolve.Candidate, 0)
	for _, rec := range s.names {
		if rec.Category != category {
			continue
		}
		candidates = append(candidates, resolve.Candidate{
			NodeID:      rec.NodeID,
			Normalized:  rec.Normalized,
			Occurrences: rec.Occurrences,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Normalized < candidates[j].Normalized
	})

	if sel, ok := s.policy.Select(normalized, candidates); ok {
		s.names[nameKey(category, normalized)] = &common.NameRecord{
			Variant:     surface,
			Normalized:  normalized,
			Category:    category,
			NodeID:      sel.NodeID,
			Method:      sel.Method,
			Confidence:  sel.Score,
			Occurrences: 1,
			FirstSeen:   now,
			LastSeen:    now,
		}
		return sel.NodeID, nil
	}

	return s.mintNode(surface, normalized, category, provenance, now)
}

// resolveEndpoint assigns the canonical node for a relationship endpoint
// name. The model names endpoints without a category, so the lookup spans
// every category before falling back to an inferred stub. Callers hold
// the mutex.
func (s *Storage) resolveEndpoint(surface string) (string, error) {
	normalized := resolve.NormalizeName(surface)
	if normalized == "" {
		return "", fmt.Errorf("empty surface form")
	}
	now := s.now()

	var exact *common.NameRecord
	for _, rec := range s.names {
		if rec.Normalized != normalized {
			continue
		}
		if exact == nil ||
			rec.Occurrences > exact.Occurrences ||
			(rec.Occurrences == exact.Occurrences && rec.Category < exact.Category) {
			exact = rec
		}
	}
	if exact != nil {
		exact.Occurrences++
		exact.LastSeen = now
		return exact.NodeID, nil
	}

	candidates := make([]resolve.Candidate, 0)
	for _, rec := range s.names {
		candidates = append(candidates, resolve.Candidate{
			NodeID:      rec.NodeID,
			Normalized:  rec.Normalized,
			Occurrences: rec.Occurrences,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Normalized < candidates[j].Normalized
	})

	if sel, ok := s.policy.Select(normalized, candidates); ok {
		category := stubCategory
		if node, ok := s.nodes[sel.NodeID]; ok {
			category = node.Category
		}
		s.names[nameKey(category, normalized)] = &common.NameRecord{
			Variant:     surface,
			Normalized:  normalized,
			Category:    category,
			NodeID:      sel.NodeID,
			Method:      sel.Method,
			Confidence:  sel.Score,
			Occurrences: 1,
			FirstSeen:   now,
			LastSeen:    now,
		}
		return sel.NodeID, nil
	}

	return s.mintNode(surface, normalized, stubCategory, common.ProvenanceInferred, now)
}

// mintNode creates a fresh node plus its first name record.
func (s *Storage) mintNode(surface, normalized, category, provenance string, now time.Time) (string, error) {
	nodeID, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate node ID: %w", err)
	}
	s.nodes[nodeID] = &common.Node{
		ID:         nodeID,
		Name:       surface,
		Category:   category,
		Provenance: provenance,
		CreatedAt:  now,
	}
	s.names[nameKey(category, normalized)] = &common.NameRecord{
		Variant:     surface,
		Normalized:  normalized,
		Category:    category,
		NodeID:      nodeID,
		Method:      common.ResolveNew,
		Confidence:  1.0,
		Occurrences: 1,
		FirstSeen:   now,
		LastSeen:    now,
	}
	return nodeID, nil
}

func (s *Storage) ArchiveMentions(ctx context.Context, mentions []common.MentionInput) ([]common.Mention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]common.Mention, 0, len(mentions))
	for _, input := range mentions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !common.IsNodeCategory(input.Category) {
			continue
		}

		normalized := resolve.NormalizeName(input.Surface)
		if normalized == "" {
			continue
		}

		nodeID, err := s.resolveName(input.Surface, input.Category, common.ProvenanceObserved)
		if err != nil {
			return nil, err
		}
		s.markObserved(nodeID)

		key := mentionKey(input, normalized)
		if existingID, ok := s.mentionKeys[key]; ok {
			out = append(out, *s.mentions[existingID])
			continue
		}

		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate mention ID: %w", err)
		}
		mention := &common.Mention{
			ID:          id,
			NodeID:      nodeID,
			Surface:     input.Surface,
			Normalized:  normalized,
			Category:    input.Category,
			DocumentRef: input.DocumentRef,
			SpanStart:   input.SpanStart,
			SpanEnd:     input.SpanEnd,
			Context:     input.Context,
			Confidence:  input.Confidence,
			CreatedAt:   s.now(),
		}
		s.mentions[id] = mention
		s.mentionKeys[key] = id
		out = append(out, *mention)
	}
	return out, nil
}

// markObserved upgrades an inferred stub once extraction sees the entity
// directly.
func (s *Storage) markObserved(nodeID string) {
	if node, ok := s.nodes[nodeID]; ok && node.Provenance == common.ProvenanceInferred {
		node.Provenance = common.ProvenanceObserved
	}
}

func (s *Storage) UpsertRelationship(ctx context.Context, rel common.Relationship) (common.EdgePair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return common.EdgePair{}, err
	}
	if rel.SourceName == "" || rel.TargetName == "" {
		return common.EdgePair{}, fmt.Errorf("relationship endpoint name is empty")
	}

	sourceID, err := s.resolveEndpoint(rel.SourceName)
	if err != nil {
		return common.EdgePair{}, err
	}
	targetID, err := s.resolveEndpoint(rel.TargetName)
	if err != nil {
		return common.EdgePair{}, err
	}
	if sourceID == targetID {
		return common.EdgePair{}, fmt.Errorf("relationship endpoints resolve to the same node")
	}

	now := s.now()
	forwardKey := edgeKey(sourceID, targetID, rel.Type)
	reverseKey := edgeKey(targetID, sourceID, rel.Type)

	if existing, ok := s.edges[forwardKey]; ok {
		merged := s.merge.MergeEdge(*existing, rel, now)
		*existing = merged

		reverseRel := rel
		reverseRel.Label = common.ReverseLabel(rel.Type)
		reverse := s.edges[reverseKey]
		mergedReverse := s.merge.MergeEdge(*reverse, reverseRel, now)
		*reverse = mergedReverse

		s.flagRecalc(sourceID, targetID)
		return common.EdgePair{Forward: merged, Reverse: mergedReverse}, nil
	}

	forwardID, err := gonanoid.New()
	if err != nil {
		return common.EdgePair{}, fmt.Errorf("failed to generate edge ID: %w", err)
	}
	reverseID, err := gonanoid.New()
	if err != nil {
		return common.EdgePair{}, fmt.Errorf("failed to generate edge ID: %w", err)
	}

	pair := store.NewEdgePair(forwardID, reverseID, sourceID, targetID, rel, now)
	forward := pair.Forward
	reverse := pair.Reverse
	s.edges[forwardKey] = &forward
	s.edges[reverseKey] = &reverse

	s.flagRecalc(sourceID, targetID)
	return pair, nil
}

func (s *Storage) flagRecalc(nodeIDs ...string) {
	for _, id := range nodeIDs {
		if node, ok := s.nodes[id]; ok {
			node.NeedsRecalc = true
		}
	}
}

func (s *Storage) GetNode(ctx context.Context, nodeID string) (*common.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *node
	return &copied, nil
}

func (s *Storage) GetEdge(ctx context.Context, sourceID, targetID string, relType common.RelationType) (*common.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	edge, ok := s.edges[edgeKey(sourceID, targetID, relType)]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *edge
	return &copied, nil
}

func (s *Storage) ListNameRecords(ctx context.Context, nodeID string) ([]common.NameRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]common.NameRecord, 0)
	for _, rec := range s.names {
		if rec.NodeID == nodeID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Normalized < out[j].Normalized
	})
	return out, nil
}

func (s *Storage) ListMentions(ctx context.Context, nodeID string) ([]common.Mention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]common.Mention, 0)
	for _, m := range s.mentions {
		if m.NodeID == nodeID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentRef != out[j].DocumentRef {
			return out[i].DocumentRef < out[j].DocumentRef
		}
		return out[i].SpanStart < out[j].SpanStart
	})
	return out, nil
}

func (s *Storage) ListNodesNeedingRecalc(ctx context.Context, limit int) ([]common.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]common.Node, 0)
	for _, node := range s.nodes {
		if node.NeedsRecalc {
			out = append(out, *node)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecalculateMetrics recomputes degree and mention totals for flagged
// nodes and clears their flags.
func (s *Storage) RecalculateMetrics(ctx context.Context, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	flagged := make([]*common.Node, 0)
	for _, node := range s.nodes {
		if node.NeedsRecalc {
			flagged = append(flagged, node)
		}
	}
	sort.Slice(flagged, func(i, j int) bool {
		return flagged[i].ID < flagged[j].ID
	})
	if limit > 0 && len(flagged) > limit {
		flagged = flagged[:limit]
	}

	for _, node := range flagged {
		degree := 0
		for _, edge := range s.edges {
			if edge.SourceID == node.ID {
				degree++
			}
		}
		mentionTotal := 0
		for _, m := range s.mentions {
			if m.NodeID == node.ID {
				mentionTotal++
			}
		}
		node.Degree = degree
		node.MentionTotal = mentionTotal
		node.NeedsRecalc = false
	}
	return len(flagged), nil
}

func (s *Storage) MarkRecalculated(ctx context.Context, nodeIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range nodeIDs {
		if node, ok := s.nodes[id]; ok {
			node.NeedsRecalc = false
		}
	}
	return nil
}
