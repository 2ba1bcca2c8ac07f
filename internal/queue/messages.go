package queue

import "github.com/openfilings/relgraph/backend/pkg/graph"

// IngestDocumentsMsg is the payload of the ingest queue: one or more
// documents' worth of extracted mentions, ready for graph construction.
type IngestDocumentsMsg struct {
	Message       string           `json:"message"`
	CorrelationID string           `json:"correlation_id"`
	Documents     []graph.Document `json:"documents"`
}

// RecalcMsg asks the worker to recompute aggregate metrics for flagged
// nodes.
type RecalcMsg struct {
	Message string `json:"message"`
	Limit   int    `json:"limit"`
}
