package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/openfilings/relgraph/backend/pkg/common"
	"github.com/openfilings/relgraph/backend/pkg/store"
)

func mentionInput(surface, docRef string, start int) common.MentionInput {
	return common.MentionInput{
		Surface:     surface,
		Category:    "ORGANIZATION",
		DocumentRef: docRef,
		SpanStart:   start,
		SpanEnd:     start + len(surface),
		Context:     "…" + surface + " announced…",
		Confidence:  0.95,
	}
}

func TestArchiveMentions_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := New()

	batch := []common.MentionInput{
		mentionInput("Acme Therapeutics Inc.", "filing-001", 10),
		mentionInput("Beta Pharma", "filing-001", 120),
	}

	first, err := s.ArchiveMentions(ctx, batch)
	if err != nil {
		t.Fatalf("first archive: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("first archive returned %d mentions, want 2", len(first))
	}

	second, err := s.ArchiveMentions(ctx, batch)
	if err != nil {
		t.Fatalf("replay archive: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("replay returned %d mentions, want 2", len(second))
	}
	for i := range first {
		if second[i].ID != first[i].ID {
			t.Fatalf("replay minted new mention %q, want existing %q", second[i].ID, first[i].ID)
		}
	}

	mentions, err := s.ListMentions(ctx, first[0].NodeID)
	if err != nil {
		t.Fatalf("list mentions: %v", err)
	}
	if len(mentions) != 1 {
		t.Fatalf("node has %d mentions after replay, want 1", len(mentions))
	}
}

func TestArchiveMentions_SkipsNonNodeCategories(t *testing.T) {
	ctx := context.Background()
	s := New()

	batch := []common.MentionInput{
		mentionInput("Acme Therapeutics Inc.", "filing-001", 10),
		{Surface: "March 15, 2021", Category: "DATE", DocumentRef: "filing-001", SpanStart: 40, SpanEnd: 54},
		{Surface: "$75 million", Category: "MONEY", DocumentRef: "filing-001", SpanStart: 60, SpanEnd: 71},
		{Surface: "   ", Category: "ORGANIZATION", DocumentRef: "filing-001", SpanStart: 80, SpanEnd: 83},
	}

	out, err := s.ArchiveMentions(ctx, batch)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("archived %d mentions, want only the organization", len(out))
	}
	if out[0].Surface != "Acme Therapeutics Inc." {
		t.Fatalf("kept mention = %q", out[0].Surface)
	}
}

func TestArchiveMentions_VariantsConverge(t *testing.T) {
	ctx := context.Background()
	s := New()

	// Same normalized form, then a trigram-close variant missing the
	// trailing period.
	batch := []common.MentionInput{
		mentionInput("Acme Therapeutics Inc.", "filing-001", 10),
		mentionInput("ACME   Therapeutics Inc.", "filing-002", 5),
		mentionInput("Acme Therapeutics Inc", "filing-003", 5),
	}

	out, err := s.ArchiveMentions(ctx, batch)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("archived %d mentions, want 3", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].NodeID != out[0].NodeID {
			t.Fatalf("variant %d resolved to node %q, want %q", i, out[i].NodeID, out[0].NodeID)
		}
	}

	records, err := s.ListNameRecords(ctx, out[0].NodeID)
	if err != nil {
		t.Fatalf("list name records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("node has %d name records, want 2 distinct normalized forms", len(records))
	}
	methods := map[string]bool{}
	for _, rec := range records {
		methods[rec.Method] = true
	}
	if !methods[common.ResolveNew] || !methods[common.ResolveFuzzy] {
		t.Fatalf("resolution methods = %v, want new + fuzzy", methods)
	}
}

func TestUpsertRelationship_CreatesDualEdges(t *testing.T) {
	ctx := context.Background()
	s := New()

	rel := common.Relationship{
		SourceName:  "Acme Therapeutics Inc.",
		TargetName:  "Beta Pharma",
		Type:        common.RelationLicensing,
		Label:       "licenses compound X to",
		Summary:     "Exclusive worldwide license",
		DocumentRef: "filing-001",
	}

	pair, err := s.UpsertRelationship(ctx, rel)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	forward, err := s.GetEdge(ctx, pair.Forward.SourceID, pair.Forward.TargetID, common.RelationLicensing)
	if err != nil {
		t.Fatalf("get forward edge: %v", err)
	}
	reverse, err := s.GetEdge(ctx, pair.Forward.TargetID, pair.Forward.SourceID, common.RelationLicensing)
	if err != nil {
		t.Fatalf("get reverse edge: %v", err)
	}
	if forward.Label != "licenses compound X to" {
		t.Fatalf("forward label = %q", forward.Label)
	}
	if reverse.Label != common.ReverseLabel(common.RelationLicensing) {
		t.Fatalf("reverse label = %q, want %q", reverse.Label, common.ReverseLabel(common.RelationLicensing))
	}

	// Endpoints that only exist because the model named them start as
	// inferred stubs.
	source, err := s.GetNode(ctx, pair.Forward.SourceID)
	if err != nil {
		t.Fatalf("get source node: %v", err)
	}
	if source.Provenance != common.ProvenanceInferred {
		t.Fatalf("stub provenance = %q, want inferred", source.Provenance)
	}

	// A later extraction that sees the entity directly upgrades it.
	if _, err := s.ArchiveMentions(ctx, []common.MentionInput{
		mentionInput("Acme Therapeutics Inc.", "filing-002", 10),
	}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	source, err = s.GetNode(ctx, pair.Forward.SourceID)
	if err != nil {
		t.Fatalf("get source node: %v", err)
	}
	if source.Provenance != common.ProvenanceObserved {
		t.Fatalf("provenance after direct observation = %q, want observed", source.Provenance)
	}
}

func TestUpsertRelationship_JoinsObservedNonOrgEndpoint(t *testing.T) {
	ctx := context.Background()
	s := New()

	archived, err := s.ArchiveMentions(ctx, []common.MentionInput{
		mentionInput("Acme Therapeutics Inc.", "filing-001", 10),
		{
			Surface:     "John Smith",
			Category:    "PERSON",
			DocumentRef: "filing-001",
			SpanStart:   90,
			SpanEnd:     100,
			Context:     "…John Smith was appointed CEO…",
			Confidence:  0.95,
		},
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	personID := archived[1].NodeID

	pair, err := s.UpsertRelationship(ctx, common.Relationship{
		SourceName:  "Acme Therapeutics Inc.",
		TargetName:  "John Smith",
		Type:        common.RelationEmployment,
		Label:       "employs",
		DocumentRef: "filing-001",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// The endpoint was already extracted as a person, so the edge must
	// land on that node rather than mint an organization stub.
	if pair.Forward.TargetID != personID {
		t.Fatalf("target resolved to %q, want archived person node %q", pair.Forward.TargetID, personID)
	}
	person, err := s.GetNode(ctx, personID)
	if err != nil {
		t.Fatalf("get person node: %v", err)
	}
	if person.Category != "PERSON" {
		t.Fatalf("person category = %q, want PERSON", person.Category)
	}
	if person.Provenance != common.ProvenanceObserved {
		t.Fatalf("person provenance = %q, want observed", person.Provenance)
	}

	records, err := s.ListNameRecords(ctx, personID)
	if err != nil {
		t.Fatalf("list name records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("person has %d name records, want 1", len(records))
	}
	if records[0].Occurrences != 2 {
		t.Fatalf("name record occurrences = %d, want the endpoint lookup counted", records[0].Occurrences)
	}
}

func TestUpsertRelationship_RepeatMergesNotDuplicates(t *testing.T) {
	ctx := context.Background()
	s := New()

	rel := common.Relationship{
		SourceName: "Acme Therapeutics Inc.",
		TargetName: "Beta Pharma",
		Type:       common.RelationSupply,
		Label:      "supplies to",
	}

	var pair common.EdgePair
	var err error
	for i := 0; i < 3; i++ {
		pair, err = s.UpsertRelationship(ctx, rel)
		if err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	if pair.Forward.MentionCount != 3 {
		t.Fatalf("forward mention count = %d, want 3", pair.Forward.MentionCount)
	}
	if pair.Reverse.MentionCount != 3 {
		t.Fatalf("reverse mention count = %d, want 3", pair.Reverse.MentionCount)
	}

	// A repeat observation through a name variant must land on the same
	// edge pair, not mint a parallel one.
	variant := rel
	variant.SourceName = "ACME Therapeutics Inc."
	merged, err := s.UpsertRelationship(ctx, variant)
	if err != nil {
		t.Fatalf("variant upsert: %v", err)
	}
	if merged.Forward.ID != pair.Forward.ID {
		t.Fatalf("variant upsert created edge %q, want merge into %q", merged.Forward.ID, pair.Forward.ID)
	}
	if merged.Forward.MentionCount != 4 {
		t.Fatalf("mention count after variant = %d, want 4", merged.Forward.MentionCount)
	}
}

func TestUpsertRelationship_RejectsSelfLoop(t *testing.T) {
	ctx := context.Background()
	s := New()

	rel := common.Relationship{
		SourceName: "Acme Therapeutics Inc.",
		TargetName: "ACME Therapeutics Inc.",
		Type:       common.RelationPartnership,
	}
	if _, err := s.UpsertRelationship(ctx, rel); err == nil {
		t.Fatalf("expected error when both endpoints resolve to the same node")
	}
}

func TestRecalculateMetrics(t *testing.T) {
	ctx := context.Background()
	s := New()

	mentions, err := s.ArchiveMentions(ctx, []common.MentionInput{
		mentionInput("Acme Therapeutics Inc.", "filing-001", 10),
		mentionInput("Acme Therapeutics Inc.", "filing-002", 15),
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	acmeID := mentions[0].NodeID

	for _, rel := range []common.Relationship{
		{SourceName: "Acme Therapeutics Inc.", TargetName: "Beta Pharma", Type: common.RelationLicensing},
		{SourceName: "Acme Therapeutics Inc.", TargetName: "Gamma Bio", Type: common.RelationPartnership},
	} {
		if _, err := s.UpsertRelationship(ctx, rel); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	flagged, err := s.ListNodesNeedingRecalc(ctx, 0)
	if err != nil {
		t.Fatalf("list flagged: %v", err)
	}
	if len(flagged) != 3 {
		t.Fatalf("%d nodes flagged, want 3", len(flagged))
	}

	n, err := s.RecalculateMetrics(ctx, 100)
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if n != 3 {
		t.Fatalf("recalculated %d nodes, want 3", n)
	}

	acme, err := s.GetNode(ctx, acmeID)
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if acme.Degree != 2 {
		t.Fatalf("degree = %d, want 2 outgoing edges", acme.Degree)
	}
	if acme.MentionTotal != 2 {
		t.Fatalf("mention total = %d, want 2", acme.MentionTotal)
	}
	if acme.NeedsRecalc {
		t.Fatalf("recalc flag not cleared")
	}

	n, err = s.RecalculateMetrics(ctx, 100)
	if err != nil {
		t.Fatalf("second recalculate: %v", err)
	}
	if n != 0 {
		t.Fatalf("second pass recalculated %d nodes, want 0", n)
	}
}

func TestUpsertRelationship_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := New()

	rel := common.Relationship{
		SourceName: "Acme Therapeutics Inc.",
		TargetName: "Beta Pharma",
		Type:       common.RelationLitigation,
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.UpsertRelationship(ctx, rel); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent upsert: %v", err)
	}

	pair, err := s.UpsertRelationship(ctx, rel)
	if err != nil {
		t.Fatalf("final upsert: %v", err)
	}
	if pair.Forward.MentionCount != workers+1 {
		t.Fatalf("mention count = %d, want %d", pair.Forward.MentionCount, workers+1)
	}
}

var _ store.GraphStorage = (*Storage)(nil)
