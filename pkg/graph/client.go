// Package graph drives relationship-graph construction: it archives
// extracted mentions, asks the relationship model about each observed
// entity, and commits the parsed relationships to storage.
package graph

// GraphClient manages document-processing parallelism and model-call
// behavior for graph construction.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	parallelDocs       int
	parallelModelCalls int
	maxRetries         int
	maxComentioned     int
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// ParallelDocs controls how many documents are processed in parallel.
// ParallelModelCalls controls how many inference requests run concurrently
// within one document.
// MaxComentioned caps how many co-mentioned entities one inference prompt
// carries.
type NewGraphClientParams struct {
	ParallelDocs       int
	ParallelModelCalls int
	MaxRetries         int
	MaxComentioned     int
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	parallelDocs := params.ParallelDocs
	if parallelDocs <= 0 {
		parallelDocs = 1
	}
	parallelModelCalls := params.ParallelModelCalls
	if parallelModelCalls <= 0 {
		parallelModelCalls = 1
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	maxComentioned := params.MaxComentioned
	if maxComentioned <= 0 {
		maxComentioned = 25
	}

	g := &GraphClient{
		parallelDocs:       parallelDocs,
		parallelModelCalls: parallelModelCalls,
		maxRetries:         maxRetries,
		maxComentioned:     maxComentioned,
	}

	return g, nil
}
