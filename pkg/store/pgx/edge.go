package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openfilings/relgraph/backend/internal/util"
	"github.com/openfilings/relgraph/backend/pkg/common"
	"github.com/openfilings/relgraph/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const edgeColumns = `
	id, source_id, target_id, type, label, summary,
	deal, technologies, products, therapeutic_areas,
	event_date, agreement_date, effective_date, expiration_date,
	mention_count, document_refs, first_seen, last_updated`

// stubCategory is the category assigned to endpoints the relationship model
// named but no variant in any category matches.
const stubCategory = "ORGANIZATION"

// UpsertRelationship commits one relationship observation as a pair of
// directional edges in a single transaction. Both directions are locked,
// then either created together or enriched together; a concurrent first
// insert of the same natural key surfaces as a conflict and is retried,
// at which point the lock finds the winner's rows and the observation
// lands as an enrichment.
func (s *GraphDBStorage) UpsertRelationship(
	ctx context.Context,
	rel common.Relationship,
) (common.EdgePair, error) {
	if rel.SourceName == "" || rel.TargetName == "" {
		return common.EdgePair{}, fmt.Errorf("relationship endpoint name is empty")
	}
	rel.SourceName = util.SanitizePostgresText(rel.SourceName)
	rel.TargetName = util.SanitizePostgresText(rel.TargetName)
	rel.Summary = util.SanitizePostgresText(rel.Summary)

	var pair common.EdgePair
	err := s.inTxRetry(ctx, func(tx pgxv5.Tx) error {
		sourceID, err := s.resolveEndpoint(ctx, tx, rel.SourceName)
		if err != nil {
			return err
		}
		targetID, err := s.resolveEndpoint(ctx, tx, rel.TargetName)
		if err != nil {
			return err
		}
		if sourceID == targetID {
			return fmt.Errorf("relationship endpoints resolve to the same node")
		}

		now := time.Now().UTC()

		// Lock in a fixed order so two writers racing on opposite
		// directions of the same pair cannot deadlock.
		firstSrc, firstTgt := sourceID, targetID
		if firstTgt < firstSrc {
			firstSrc, firstTgt = firstTgt, firstSrc
		}
		first, err := s.lockEdge(ctx, tx, firstSrc, firstTgt, rel.Type)
		if err != nil {
			return err
		}
		second, err := s.lockEdge(ctx, tx, firstTgt, firstSrc, rel.Type)
		if err != nil {
			return err
		}

		forward, reverse := first, second
		if forward != nil && forward.SourceID != sourceID {
			forward, reverse = second, first
		}

		if forward == nil {
			pair, err = s.insertEdgePair(ctx, tx, sourceID, targetID, rel, now)
			if err != nil {
				return err
			}
		} else {
			reverseRel := rel
			reverseRel.Label = common.ReverseLabel(rel.Type)

			mergedForward := s.merge.MergeEdge(*forward, rel, now)
			mergedReverse := s.merge.MergeEdge(*reverse, reverseRel, now)
			if err := s.updateEdge(ctx, tx, mergedForward); err != nil {
				return err
			}
			if err := s.updateEdge(ctx, tx, mergedReverse); err != nil {
				return err
			}
			pair = common.EdgePair{Forward: mergedForward, Reverse: mergedReverse}
		}

		_, err = tx.Exec(ctx, `
			UPDATE nodes SET needs_recalc = true WHERE id = ANY($1)
		`, []string{sourceID, targetID})
		if err != nil {
			return fmt.Errorf("failed to flag nodes for recalculation: %w", err)
		}
		return nil
	})
	if err != nil {
		return common.EdgePair{}, err
	}
	return pair, nil
}

// lockEdge selects one direction FOR UPDATE, returning nil when the edge
// does not exist yet.
func (s *GraphDBStorage) lockEdge(
	ctx context.Context,
	tx pgxv5.Tx,
	sourceID, targetID string,
	relType common.RelationType,
) (*common.Edge, error) {
	row := tx.QueryRow(ctx, `
		SELECT`+edgeColumns+`
		FROM edges
		WHERE source_id = $1 AND target_id = $2 AND type = $3
		FOR UPDATE
	`, sourceID, targetID, relType)

	edge, err := scanEdge(row)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock edge: %w", err)
	}
	return edge, nil
}

func (s *GraphDBStorage) insertEdgePair(
	ctx context.Context,
	tx pgxv5.Tx,
	sourceID, targetID string,
	rel common.Relationship,
	now time.Time,
) (common.EdgePair, error) {
	forwardID, err := gonanoid.New()
	if err != nil {
		return common.EdgePair{}, fmt.Errorf("failed to generate edge ID: %w", err)
	}
	reverseID, err := gonanoid.New()
	if err != nil {
		return common.EdgePair{}, fmt.Errorf("failed to generate edge ID: %w", err)
	}

	pair := store.NewEdgePair(forwardID, reverseID, sourceID, targetID, rel, now)
	if err := s.insertEdge(ctx, tx, pair.Forward); err != nil {
		return common.EdgePair{}, err
	}
	if err := s.insertEdge(ctx, tx, pair.Reverse); err != nil {
		return common.EdgePair{}, err
	}
	return pair, nil
}

func (s *GraphDBStorage) insertEdge(ctx context.Context, tx pgxv5.Tx, e common.Edge) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO edges (`+edgeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, e.ID, e.SourceID, e.TargetID, e.Type, e.Label, e.Summary,
		e.Deal, orEmpty(e.Technologies), orEmpty(e.Products), orEmpty(e.TherapeuticAreas),
		e.EventDate, e.AgreementDate, e.EffectiveDate, e.ExpirationDate,
		e.MentionCount, orEmpty(e.DocumentRefs), e.FirstSeen, e.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to insert edge: %w", err)
	}
	return nil
}

// orEmpty keeps nil list fields out of NOT NULL text[] columns.
func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func (s *GraphDBStorage) updateEdge(ctx context.Context, tx pgxv5.Tx, e common.Edge) error {
	_, err := tx.Exec(ctx, `
		UPDATE edges SET
			label = $2, summary = $3, deal = $4,
			technologies = $5, products = $6, therapeutic_areas = $7,
			event_date = $8, agreement_date = $9, effective_date = $10, expiration_date = $11,
			mention_count = $12, document_refs = $13, last_updated = $14
		WHERE id = $1
	`, e.ID, e.Label, e.Summary, e.Deal,
		orEmpty(e.Technologies), orEmpty(e.Products), orEmpty(e.TherapeuticAreas),
		e.EventDate, e.AgreementDate, e.EffectiveDate, e.ExpirationDate,
		e.MentionCount, orEmpty(e.DocumentRefs), e.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to update edge: %w", err)
	}
	return nil
}

func (s *GraphDBStorage) GetEdge(
	ctx context.Context,
	sourceID, targetID string,
	relType common.RelationType,
) (*common.Edge, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT`+edgeColumns+`
		FROM edges
		WHERE source_id = $1 AND target_id = $2 AND type = $3
	`, sourceID, targetID, relType)

	edge, err := scanEdge(row)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get edge: %w", err)
	}
	return edge, nil
}

func scanEdge(row pgxv5.Row) (*common.Edge, error) {
	var e common.Edge
	err := row.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Type, &e.Label, &e.Summary,
		&e.Deal, &e.Technologies, &e.Products, &e.TherapeuticAreas,
		&e.EventDate, &e.AgreementDate, &e.EffectiveDate, &e.ExpirationDate,
		&e.MentionCount, &e.DocumentRefs, &e.FirstSeen, &e.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
