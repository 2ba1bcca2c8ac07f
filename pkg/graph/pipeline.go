package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/openfilings/relgraph/backend/internal/util"
	"github.com/openfilings/relgraph/backend/pkg/common"
	"github.com/openfilings/relgraph/backend/pkg/logger"
	"github.com/openfilings/relgraph/backend/pkg/relmodel"
	"github.com/openfilings/relgraph/backend/pkg/relparse"
	"github.com/openfilings/relgraph/backend/pkg/resolve"
	"github.com/openfilings/relgraph/backend/pkg/store"

	"golang.org/x/sync/errgroup"
)

// Document is one source filing's worth of extracted mentions.
type Document struct {
	Ref      string                `json:"ref"`
	Mentions []common.MentionInput `json:"mentions"`
}

// Stats summarizes one construction run.
type Stats struct {
	Documents      int `json:"documents"`
	Mentions       int `json:"mentions"`
	Relationships  int `json:"relationships"`
	DroppedCalls   int `json:"dropped_calls"`
	DroppedRecords int `json:"dropped_records"`
}

// ProcessDocuments archives every document's mentions and infers and
// commits the relationships between the entities each document mentions.
// Documents run in parallel; one failed inference call drops only that
// call's output, but a storage failure fails the run.
func (g *GraphClient) ProcessDocuments(
	ctx context.Context,
	docs []Document,
	model relmodel.Client,
	storeClient store.GraphStorage,
) (Stats, error) {
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelDocs)
	mutex := sync.Mutex{}

	total := Stats{Documents: len(docs)}

	logger.Info("[Graph] Processing", "total_documents", len(docs))

	for _, doc := range docs {
		d := doc
		eg.Go(func() error {
			select {
			case <-gCtx.Done():
				return nil
			default:
				stats, err := g.processDocument(gCtx, d, model, storeClient)
				if err != nil {
					return fmt.Errorf("failed to process document %s: %w", d.Ref, err)
				}

				mutex.Lock()
				defer mutex.Unlock()
				total.Mentions += stats.Mentions
				total.Relationships += stats.Relationships
				total.DroppedCalls += stats.DroppedCalls
				total.DroppedRecords += stats.DroppedRecords
				return nil
			}
		})
	}

	if err := eg.Wait(); err != nil {
		return total, err
	}

	logger.Info("[Graph] Done",
		"documents", total.Documents,
		"mentions", total.Mentions,
		"relationships", total.Relationships,
		"dropped_calls", total.DroppedCalls,
		"dropped_records", total.DroppedRecords)
	return total, nil
}

func (g *GraphClient) processDocument(
	ctx context.Context,
	doc Document,
	model relmodel.Client,
	storeClient store.GraphStorage,
) (Stats, error) {
	archived, err := storeClient.ArchiveMentions(ctx, doc.Mentions)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to archive mentions: %w", err)
	}

	entities := entityContexts(archived)
	stats := Stats{Mentions: len(archived)}
	if len(entities) < 2 {
		return stats, nil
	}

	parsed, dropped := g.inferRelationships(ctx, doc.Ref, entities, model)
	stats.DroppedCalls = dropped

	for _, rel := range parsed {
		if resolve.NormalizeName(rel.SourceName) == resolve.NormalizeName(rel.TargetName) {
			logger.Debug("[Graph] Skipping self-referential relationship",
				"entity", rel.SourceName, "document", doc.Ref)
			stats.DroppedRecords++
			continue
		}
		if _, err := storeClient.UpsertRelationship(ctx, rel); err != nil {
			return stats, fmt.Errorf("failed to upsert relationship %s -> %s: %w",
				rel.SourceName, rel.TargetName, err)
		}
		stats.Relationships++
	}
	return stats, nil
}

// inferRelationships runs one model call per subject entity, in parallel.
// A call that still fails after retries drops that subject's output and
// the run continues.
func (g *GraphClient) inferRelationships(
	ctx context.Context,
	documentRef string,
	entities []relmodel.EntityContext,
	model relmodel.Client,
) ([]common.Relationship, int) {
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelModelCalls)
	mutex := sync.Mutex{}

	out := make([]common.Relationship, 0)
	dropped := 0

	for _, entity := range entities {
		subject := entity
		eg.Go(func() error {
			comentioned := neighbors(entities, subject, g.maxComentioned)

			payload, err := util.RetryWithContext(gCtx, g.maxRetries, func(ctx context.Context) (string, error) {
				return model.InferRelationships(ctx, subject, comentioned)
			})
			if err != nil {
				logger.Warn("[Graph] Dropping failed inference call",
					"entity", subject.Name, "document", documentRef, "err", err)
				mutex.Lock()
				dropped++
				mutex.Unlock()
				return nil
			}

			result, err := relparse.Parse(payload, subject.Name)
			if err != nil {
				logger.Warn("[Graph] Dropping unparseable inference payload",
					"entity", subject.Name, "document", documentRef, "err", err)
				mutex.Lock()
				dropped++
				mutex.Unlock()
				return nil
			}

			mutex.Lock()
			defer mutex.Unlock()
			for _, rel := range result.Relationships {
				rel.DocumentRef = documentRef
				out = append(out, rel)
			}
			return nil
		})
	}

	// Workers never return errors; Wait only propagates context cancellation.
	if err := eg.Wait(); err != nil {
		return out, dropped
	}
	return out, dropped
}

// entityContexts groups a document's archived mentions into one context
// per canonical node, ordered deterministically.
func entityContexts(mentions []common.Mention) []relmodel.EntityContext {
	byNode := make(map[string]*relmodel.EntityContext)
	order := make([]string, 0)

	for _, m := range mentions {
		existing, ok := byNode[m.NodeID]
		if !ok {
			byNode[m.NodeID] = &relmodel.EntityContext{
				Name:     m.Surface,
				Category: m.Category,
				Context:  m.Context,
			}
			order = append(order, m.NodeID)
			continue
		}
		if m.Context != "" && !strings.Contains(existing.Context, m.Context) {
			if existing.Context != "" {
				existing.Context += "\n"
			}
			existing.Context += m.Context
		}
	}

	sort.Strings(order)
	out := make([]relmodel.EntityContext, 0, len(byNode))
	for _, nodeID := range order {
		out = append(out, *byNode[nodeID])
	}
	return out
}

func neighbors(entities []relmodel.EntityContext, subject relmodel.EntityContext, limit int) []relmodel.EntityContext {
	out := make([]relmodel.EntityContext, 0, len(entities)-1)
	for _, e := range entities {
		if e.Name == subject.Name {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out
}
