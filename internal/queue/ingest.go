package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openfilings/relgraph/backend/pkg/graph"
	"github.com/openfilings/relgraph/backend/pkg/logger"
	"github.com/openfilings/relgraph/backend/pkg/relmodel"
	"github.com/openfilings/relgraph/backend/pkg/store"
)

// ProcessIngestMessage handles one ingest-queue message: it runs graph
// construction over the message's documents. Errors propagate so the
// consumer can route the message to retry or the DLQ.
func ProcessIngestMessage(
	ctx context.Context,
	g *graph.GraphClient,
	model relmodel.Client,
	storeClient store.GraphStorage,
	msg string,
) error {
	data := new(IngestDocumentsMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("failed to unmarshal ingest message: %w", err)
	}
	if len(data.Documents) == 0 {
		logger.Warn("[Queue] Ingest message without documents", "correlation_id", data.CorrelationID)
		return nil
	}

	stats, err := g.ProcessDocuments(ctx, data.Documents, model, storeClient)
	if err != nil {
		return err
	}

	logger.Info("[Queue] Ingest complete",
		"correlation_id", data.CorrelationID,
		"documents", stats.Documents,
		"mentions", stats.Mentions,
		"relationships", stats.Relationships)
	return nil
}
