package pgx

import (
	"context"
	"fmt"

	"github.com/openfilings/relgraph/backend/internal/util"
	"github.com/openfilings/relgraph/backend/pkg/common"
	"github.com/openfilings/relgraph/backend/pkg/logger"
	"github.com/openfilings/relgraph/backend/pkg/resolve"
	"github.com/openfilings/relgraph/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// mentionChunkSize bounds how many mentions one archive transaction
// touches, keeping lock footprints small on large filings.
const mentionChunkSize = 200

// ArchiveMentions resolves and archives a batch of extracted mentions,
// chunked into transactions. Non-node categories are skipped, and
// replaying a batch only bumps resolution bookkeeping: the (document,
// span, normalized) key keeps the archive append-only, which also makes
// a retried chunk safe.
func (s *GraphDBStorage) ArchiveMentions(
	ctx context.Context,
	mentions []common.MentionInput,
) ([]common.Mention, error) {
	out := make([]common.Mention, 0, len(mentions))
	err := store.ChunkRange(len(mentions), mentionChunkSize, func(start, end int) error {
		chunk, err := s.archiveChunk(ctx, mentions[start:end])
		if err != nil {
			return err
		}
		out = append(out, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GraphDBStorage) archiveChunk(
	ctx context.Context,
	mentions []common.MentionInput,
) ([]common.Mention, error) {
	var out []common.Mention
	err := s.inTxRetry(ctx, func(tx pgxv5.Tx) error {
		out = out[:0]
		for _, input := range mentions {
			if !common.IsNodeCategory(input.Category) {
				continue
			}
			// Extracted text can carry NUL bytes Postgres rejects.
			input.Surface = util.SanitizePostgresText(input.Surface)
			input.Context = util.SanitizePostgresText(input.Context)

			normalized := resolve.NormalizeName(input.Surface)
			if normalized == "" {
				logger.Warn("[Archive] Skipping mention with empty surface form",
					"document", input.DocumentRef)
				continue
			}

			nodeID, err := s.resolveName(ctx, tx, input.Surface, input.Category, common.ProvenanceObserved)
			if err != nil {
				return err
			}
			if err := s.markObserved(ctx, tx, nodeID); err != nil {
				return fmt.Errorf("failed to update node provenance: %w", err)
			}

			mention, err := s.archiveMention(ctx, tx, nodeID, normalized, input)
			if err != nil {
				return err
			}
			out = append(out, mention)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GraphDBStorage) archiveMention(
	ctx context.Context,
	tx pgxv5.Tx,
	nodeID, normalized string,
	input common.MentionInput,
) (common.Mention, error) {
	id, err := gonanoid.New()
	if err != nil {
		return common.Mention{}, fmt.Errorf("failed to generate mention ID: %w", err)
	}

	mention := common.Mention{
		NodeID:      nodeID,
		Surface:     input.Surface,
		Normalized:  normalized,
		Category:    input.Category,
		DocumentRef: input.DocumentRef,
		SpanStart:   input.SpanStart,
		SpanEnd:     input.SpanEnd,
		Context:     input.Context,
		Confidence:  input.Confidence,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO mentions
			(id, node_id, surface, normalized, category, document_ref,
			 span_start, span_end, context, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (document_ref, span_start, span_end, normalized) DO UPDATE
			SET normalized = mentions.normalized
		RETURNING id, node_id, created_at
	`, id, nodeID, input.Surface, normalized, input.Category, input.DocumentRef,
		input.SpanStart, input.SpanEnd, input.Context, input.Confidence,
	).Scan(&mention.ID, &mention.NodeID, &mention.CreatedAt)
	if err != nil {
		return common.Mention{}, fmt.Errorf("failed to archive mention: %w", err)
	}
	return mention, nil
}

func (s *GraphDBStorage) ListMentions(ctx context.Context, nodeID string) ([]common.Mention, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, node_id, surface, normalized, category, document_ref,
			span_start, span_end, context, confidence, created_at
		FROM mentions
		WHERE node_id = $1
		ORDER BY document_ref ASC, span_start ASC
	`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mentions: %w", err)
	}
	defer rows.Close()

	out := make([]common.Mention, 0)
	for rows.Next() {
		var m common.Mention
		err := rows.Scan(&m.ID, &m.NodeID, &m.Surface, &m.Normalized, &m.Category,
			&m.DocumentRef, &m.SpanStart, &m.SpanEnd, &m.Context, &m.Confidence, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mention: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
