package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfilings/relgraph/backend/pkg/common"
	"github.com/openfilings/relgraph/backend/pkg/logger"
	"github.com/openfilings/relgraph/backend/pkg/resolve"

	pgxv5 "github.com/jackc/pgx/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// candidateLimit caps how many variants the trigram prefilter hands to the
// in-process matcher.
const candidateLimit = 50

// trigramFloor is the pg_trgm similarity below which a variant is not even
// considered a candidate. It is deliberately lower than the resolution
// threshold: the prefilter only trims the candidate set, the policy decides.
const trigramFloor = 0.3

// resolveName maps a surface form to its canonical node inside tx, minting
// a new node when no variant matches. A concurrent mint of the same
// normalized variant fails the name_resolutions primary key and surfaces
// as a unique violation, which the caller's retry turns into an exact hit.
func (s *GraphDBStorage) resolveName(
	ctx context.Context,
	tx pgxv5.Tx,
	surface, category, provenance string,
) (string, error) {
	normalized := resolve.NormalizeName(surface)
	if normalized == "" {
		return "", fmt.Errorf("empty surface form")
	}

	var nodeID string
	err := tx.QueryRow(ctx, `
		UPDATE name_resolutions
		SET occurrences = occurrences + 1, last_seen = now()
		WHERE category = $1 AND normalized = $2
		RETURNING node_id
	`, category, normalized).Scan(&nodeID)
	if err == nil {
		return nodeID, nil
	}
	if !errors.Is(err, pgxv5.ErrNoRows) {
		return "", fmt.Errorf("failed to look up name variant: %w", err)
	}

	candidates, err := s.similarVariants(ctx, tx, category, normalized)
	if err != nil {
		return "", err
	}

	if sel, ok := s.policy.Select(normalized, candidates); ok {
		_, err = tx.Exec(ctx, `
			INSERT INTO name_resolutions
				(variant, normalized, category, node_id, method, confidence, occurrences, first_seen, last_seen)
			VALUES ($1, $2, $3, $4, $5, $6, 1, now(), now())
		`, surface, normalized, category, sel.NodeID, sel.Method, sel.Score)
		if err != nil {
			return "", fmt.Errorf("failed to record name variant: %w", err)
		}
		logger.Debug("[Resolve] Fuzzy-matched name variant",
			"variant", normalized, "nodeID", sel.NodeID, "score", sel.Score)
		return sel.NodeID, nil
	}

	return s.mintNode(ctx, tx, surface, normalized, category, provenance)
}

// resolveEndpoint maps a relationship endpoint name to its canonical node.
// The model names endpoints without telling us what they are, so unlike
// resolveName the lookup spans every category; an employee the extractor
// archived as PERSON must win over minting a fresh stub. Only when no
// variant in any category matches is an inferred stub created.
func (s *GraphDBStorage) resolveEndpoint(
	ctx context.Context,
	tx pgxv5.Tx,
	surface string,
) (string, error) {
	normalized := resolve.NormalizeName(surface)
	if normalized == "" {
		return "", fmt.Errorf("empty surface form")
	}

	var nodeID, category string
	err := tx.QueryRow(ctx, `
		SELECT node_id, category
		FROM name_resolutions
		WHERE normalized = $1
		ORDER BY occurrences DESC, category ASC, node_id ASC
		LIMIT 1
	`, normalized).Scan(&nodeID, &category)
	if err == nil {
		_, err = tx.Exec(ctx, `
			UPDATE name_resolutions
			SET occurrences = occurrences + 1, last_seen = now()
			WHERE category = $1 AND normalized = $2
		`, category, normalized)
		if err != nil {
			return "", fmt.Errorf("failed to bump name variant: %w", err)
		}
		return nodeID, nil
	}
	if !errors.Is(err, pgxv5.ErrNoRows) {
		return "", fmt.Errorf("failed to look up name variant: %w", err)
	}

	candidates, err := s.similarVariants(ctx, tx, "", normalized)
	if err != nil {
		return "", err
	}

	if sel, ok := s.policy.Select(normalized, candidates); ok {
		if err := tx.QueryRow(ctx, `
			SELECT category FROM nodes WHERE id = $1
		`, sel.NodeID).Scan(&category); err != nil {
			return "", fmt.Errorf("failed to read matched node category: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO name_resolutions
				(variant, normalized, category, node_id, method, confidence, occurrences, first_seen, last_seen)
			VALUES ($1, $2, $3, $4, $5, $6, 1, now(), now())
		`, surface, normalized, category, sel.NodeID, sel.Method, sel.Score)
		if err != nil {
			return "", fmt.Errorf("failed to record name variant: %w", err)
		}
		logger.Debug("[Resolve] Fuzzy-matched endpoint name",
			"variant", normalized, "nodeID", sel.NodeID, "score", sel.Score)
		return sel.NodeID, nil
	}

	return s.mintNode(ctx, tx, surface, normalized, stubCategory, common.ProvenanceInferred)
}

// mintNode creates a fresh node plus its first name record.
func (s *GraphDBStorage) mintNode(
	ctx context.Context,
	tx pgxv5.Tx,
	surface, normalized, category, provenance string,
) (string, error) {
	nodeID, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate node ID: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO nodes (id, name, category, provenance, needs_recalc, created_at)
		VALUES ($1, $2, $3, $4, false, now())
	`, nodeID, surface, category, provenance)
	if err != nil {
		return "", fmt.Errorf("failed to create node: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO name_resolutions
			(variant, normalized, category, node_id, method, confidence, occurrences, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, 1.0, 1, now(), now())
	`, surface, normalized, category, nodeID, common.ResolveNew)
	if err != nil {
		return "", fmt.Errorf("failed to record name variant: %w", err)
	}
	return nodeID, nil
}

// similarVariants prefilters candidate variants with pg_trgm so the
// in-process matcher never scores the whole table. An empty category
// widens the prefilter to every category.
func (s *GraphDBStorage) similarVariants(
	ctx context.Context,
	tx pgxv5.Tx,
	category, normalized string,
) ([]resolve.Candidate, error) {
	rows, err := tx.Query(ctx, `
		SELECT node_id, normalized, occurrences
		FROM name_resolutions
		WHERE ($1 = '' OR category = $1) AND similarity(normalized, $2) > $3
		ORDER BY similarity(normalized, $2) DESC, normalized ASC
		LIMIT $4
	`, category, normalized, trigramFloor, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate variants: %w", err)
	}
	defer rows.Close()

	candidates := make([]resolve.Candidate, 0)
	for rows.Next() {
		var c resolve.Candidate
		if err := rows.Scan(&c.NodeID, &c.Normalized, &c.Occurrences); err != nil {
			return nil, fmt.Errorf("failed to scan candidate variant: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// markObserved upgrades an inferred stub once extraction sees the entity
// directly.
func (s *GraphDBStorage) markObserved(ctx context.Context, tx pgxv5.Tx, nodeID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE nodes SET provenance = $1
		WHERE id = $2 AND provenance = $3
	`, common.ProvenanceObserved, nodeID, common.ProvenanceInferred)
	return err
}
