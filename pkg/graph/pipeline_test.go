package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/openfilings/relgraph/backend/pkg/common"
	"github.com/openfilings/relgraph/backend/pkg/relmodel"
	"github.com/openfilings/relgraph/backend/pkg/store/memory"
)

// fakeModel answers inference calls from canned payloads keyed by subject
// name. Subjects listed in failures error on every call.
type fakeModel struct {
	mu       sync.Mutex
	payloads map[string]string
	failures map[string]error
	calls    map[string]int
}

func (f *fakeModel) InferRelationships(ctx context.Context, subject relmodel.EntityContext, comentioned []relmodel.EntityContext) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[subject.Name]++
	if err, ok := f.failures[subject.Name]; ok {
		return "", err
	}
	if payload, ok := f.payloads[subject.Name]; ok {
		return payload, nil
	}
	return `{"relationships": []}`, nil
}

func (f *fakeModel) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func testClient(t *testing.T) *GraphClient {
	t.Helper()
	g, err := NewGraphClient(NewGraphClientParams{
		ParallelDocs:       2,
		ParallelModelCalls: 4,
		MaxRetries:         3,
		MaxComentioned:     25,
	})
	if err != nil {
		t.Fatalf("new graph client: %v", err)
	}
	return g
}

func orgMention(surface, docRef string, start int) common.MentionInput {
	return common.MentionInput{
		Surface:     surface,
		Category:    "ORGANIZATION",
		DocumentRef: docRef,
		SpanStart:   start,
		SpanEnd:     start + len(surface),
		Context:     surface + " entered into an agreement.",
		Confidence:  0.9,
	}
}

func TestProcessDocuments(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	g := testClient(t)

	model := &fakeModel{
		payloads: map[string]string{
			"Acme Therapeutics Inc.": `{"relationships": [{
				"source": "Acme Therapeutics Inc.",
				"targets": ["Beta Pharma"],
				"relationship_type": "LICENSING",
				"label": "licenses compound X to",
				"summary": "Exclusive license for compound X.",
				"monetary_value": "$75 million"
			}]}`,
			// Self-referential output is parseable but must not become
			// an edge.
			"Beta Pharma": `{"relationships": [{
				"source": "Beta Pharma",
				"targets": ["BETA PHARMA"],
				"relationship_type": "PARTNERSHIP"
			}]}`,
		},
		failures: map[string]error{
			"Gamma Bio": errors.New("model unavailable"),
		},
	}

	doc := Document{
		Ref: "filing-001",
		Mentions: []common.MentionInput{
			orgMention("Acme Therapeutics Inc.", "filing-001", 10),
			orgMention("Beta Pharma", "filing-001", 120),
			orgMention("Gamma Bio", "filing-001", 300),
			{Surface: "March 15, 2021", Category: "DATE", DocumentRef: "filing-001", SpanStart: 400, SpanEnd: 414},
		},
	}

	stats, err := g.ProcessDocuments(ctx, []Document{doc}, model, s)
	if err != nil {
		t.Fatalf("process documents: %v", err)
	}

	if stats.Documents != 1 {
		t.Fatalf("documents = %d, want 1", stats.Documents)
	}
	if stats.Mentions != 3 {
		t.Fatalf("mentions = %d, want 3 (date span excluded)", stats.Mentions)
	}
	if stats.Relationships != 1 {
		t.Fatalf("relationships = %d, want 1", stats.Relationships)
	}
	if stats.DroppedCalls != 1 {
		t.Fatalf("dropped calls = %d, want 1 (failed model call)", stats.DroppedCalls)
	}
	if stats.DroppedRecords != 1 {
		t.Fatalf("dropped records = %d, want 1 (self-referential output)", stats.DroppedRecords)
	}

	// A failing call is retried to exhaustion before being dropped.
	if got := model.callCount("Gamma Bio"); got != 3 {
		t.Fatalf("failing subject called %d times, want 3", got)
	}

	// Re-archiving is idempotent, which makes it a convenient way to
	// recover the canonical node ids.
	archived, err := s.ArchiveMentions(ctx, doc.Mentions[:2])
	if err != nil {
		t.Fatalf("re-archive: %v", err)
	}
	acmeID, betaID := archived[0].NodeID, archived[1].NodeID

	forward, err := s.GetEdge(ctx, acmeID, betaID, common.RelationLicensing)
	if err != nil {
		t.Fatalf("get forward edge: %v", err)
	}
	if forward.Deal.MonetaryValue == nil || *forward.Deal.MonetaryValue != 75_000_000 {
		t.Fatalf("monetary value not carried onto edge: %+v", forward.Deal)
	}
	if len(forward.DocumentRefs) != 1 || forward.DocumentRefs[0] != "filing-001" {
		t.Fatalf("document refs = %v, want the source filing", forward.DocumentRefs)
	}
	if _, err := s.GetEdge(ctx, betaID, acmeID, common.RelationLicensing); err != nil {
		t.Fatalf("reverse edge missing: %v", err)
	}
}

func TestProcessDocuments_SingleEntitySkipsInference(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	g := testClient(t)
	model := &fakeModel{}

	doc := Document{
		Ref: "filing-002",
		Mentions: []common.MentionInput{
			orgMention("Acme Therapeutics Inc.", "filing-002", 10),
		},
	}

	stats, err := g.ProcessDocuments(ctx, []Document{doc}, model, s)
	if err != nil {
		t.Fatalf("process documents: %v", err)
	}
	if stats.Mentions != 1 {
		t.Fatalf("mentions = %d, want 1", stats.Mentions)
	}
	if stats.Relationships != 0 || stats.DroppedCalls != 0 {
		t.Fatalf("stats = %+v, want no inference activity", stats)
	}
	if model.callCount("Acme Therapeutics Inc.") != 0 {
		t.Fatalf("model called for a single-entity document")
	}
}

func TestProcessDocuments_MergesAcrossDocuments(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	g := testClient(t)

	payload := `{"relationships": [{
		"source": "Acme Therapeutics Inc.",
		"targets": ["Beta Pharma"],
		"relationship_type": "SUPPLY"
	}]}`
	model := &fakeModel{
		payloads: map[string]string{
			"Acme Therapeutics Inc.": payload,
		},
	}

	docs := []Document{
		{Ref: "filing-001", Mentions: []common.MentionInput{
			orgMention("Acme Therapeutics Inc.", "filing-001", 10),
			orgMention("Beta Pharma", "filing-001", 120),
		}},
		{Ref: "filing-002", Mentions: []common.MentionInput{
			orgMention("Acme Therapeutics Inc.", "filing-002", 20),
			orgMention("Beta Pharma", "filing-002", 80),
		}},
	}

	stats, err := g.ProcessDocuments(ctx, docs, model, s)
	if err != nil {
		t.Fatalf("process documents: %v", err)
	}
	if stats.Relationships != 2 {
		t.Fatalf("relationships = %d, want one per document", stats.Relationships)
	}
	// Subjects that answer with an explicit empty relationship list are
	// valid empty results, not dropped calls.
	if stats.DroppedCalls != 0 {
		t.Fatalf("dropped calls = %d, want 0", stats.DroppedCalls)
	}

	archived, err := s.ArchiveMentions(ctx, docs[0].Mentions)
	if err != nil {
		t.Fatalf("re-archive: %v", err)
	}
	edge, err := s.GetEdge(ctx, archived[0].NodeID, archived[1].NodeID, common.RelationSupply)
	if err != nil {
		t.Fatalf("get edge: %v", err)
	}
	if edge.MentionCount != 2 {
		t.Fatalf("mention count = %d, want repeated observation merged", edge.MentionCount)
	}
	for _, ref := range []string{"filing-001", "filing-002"} {
		if !containsString(edge.DocumentRefs, ref) {
			t.Fatalf("document refs %v missing %s", edge.DocumentRefs, ref)
		}
	}
}

func TestEntityContexts(t *testing.T) {
	mentions := []common.Mention{
		{NodeID: "n2", Surface: "Beta Pharma", Category: "ORGANIZATION", Context: "Beta context."},
		{NodeID: "n1", Surface: "Acme Inc.", Category: "ORGANIZATION", Context: "First context."},
		{NodeID: "n1", Surface: "ACME INC.", Category: "ORGANIZATION", Context: "Second context."},
		{NodeID: "n1", Surface: "Acme Inc.", Category: "ORGANIZATION", Context: "First context."},
	}

	entities := entityContexts(mentions)
	if len(entities) != 2 {
		t.Fatalf("got %d entities, want 2", len(entities))
	}
	// Node-id order keeps runs deterministic regardless of mention order.
	if entities[0].Name != "Acme Inc." || entities[1].Name != "Beta Pharma" {
		t.Fatalf("entity order = %q, %q", entities[0].Name, entities[1].Name)
	}
	if !strings.Contains(entities[0].Context, "First context.") || !strings.Contains(entities[0].Context, "Second context.") {
		t.Fatalf("contexts not aggregated: %q", entities[0].Context)
	}
	if strings.Count(entities[0].Context, "First context.") != 1 {
		t.Fatalf("duplicate context not deduplicated: %q", entities[0].Context)
	}
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
