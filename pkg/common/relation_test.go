package common

import "testing"

func TestParseRelationType(t *testing.T) {
	tests := []struct {
		input string
		want  RelationType
	}{
		{"LICENSING", RelationLicensing},
		{"license", RelationLicensing},
		{"Licensing Deal", RelationLicensing},
		{"licensing-deal", RelationLicensing},
		{"joint venture", RelationPartnership},
		{"collaboration", RelationPartnership},
		{"acquisition", RelationOwnership},
		{"  subsidiary  ", RelationOwnership},
		{"executive", RelationEmployment},
		{"approval", RelationRegulatory},
		{"distribution", RelationSupply},
		{"funding", RelationFinancing},
		{"lawsuit", RelationLitigation},
		{"OTHER", RelationOther},
		{"STRATEGIC_ALLIANCE_XYZ", RelationOther},
		{"", RelationOther},
		{"merger of equals", RelationOther},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseRelationType(tt.input); got != tt.want {
				t.Fatalf("ParseRelationType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLabels(t *testing.T) {
	if got := DefaultLabel(RelationLicensing); got != "licenses to" {
		t.Fatalf("DefaultLabel(LICENSING) = %q", got)
	}
	if got := ReverseLabel(RelationLicensing); got != "licenses from" {
		t.Fatalf("ReverseLabel(LICENSING) = %q", got)
	}
	// Symmetric types read the same in both directions.
	if DefaultLabel(RelationPartnership) != ReverseLabel(RelationPartnership) {
		t.Fatalf("partnership labels differ by direction")
	}
	// Unknown types fall back to the OTHER label rather than empty.
	if got := DefaultLabel(RelationType("BOGUS")); got != "related to" {
		t.Fatalf("DefaultLabel(unknown) = %q", got)
	}
	if got := ReverseLabel(RelationType("BOGUS")); got != "related to" {
		t.Fatalf("ReverseLabel(unknown) = %q", got)
	}
}

func TestIsNodeCategory(t *testing.T) {
	tests := []struct {
		category string
		want     bool
	}{
		{"ORGANIZATION", true},
		{"PERSON", true},
		{"DRUG", true},
		{"DATE", false},
		{"date", false},
		{" money ", false},
		{"MONETARY_AMOUNT", false},
		{"", true},
	}
	for _, tt := range tests {
		if got := IsNodeCategory(tt.category); got != tt.want {
			t.Fatalf("IsNodeCategory(%q) = %v, want %v", tt.category, got, tt.want)
		}
	}
}
