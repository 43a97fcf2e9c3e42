package renderloop

import (
	"errors"
	"math"
	"testing"
)

func TestSortIssues(t *testing.T) {
	t.Parallel()

	in := []QualityIssue{
		{Category: "typography", Severity: IssueMinor},
		{Category: "overflow", Severity: IssueCritical, Description: "first"},
		{Category: "contrast", Severity: IssueMajor},
		{Category: "overflow", Severity: IssueCritical, Description: "second"},
		{Category: "blank", Severity: IssueCritical},
		{Category: "zzz", Severity: "cosmetic"},
	}
	got := SortIssues(in)

	want := []string{"blank", "overflow", "overflow", "contrast", "typography", "zzz"}
	for i, is := range got {
		if is.Category != want[i] {
			t.Fatalf("SortIssues()[%d] = %q, want %q (full %v)", i, is.Category, want[i], got)
		}
	}
	if got[1].Description != "first" || got[2].Description != "second" {
		t.Error("SortIssues() did not keep equal issues in input order")
	}
	if in[0].Category != "typography" {
		t.Error("SortIssues() modified its input")
	}
}

func TestQualityAnalysis_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		a       *QualityAnalysis
		wantErr bool
	}{
		{"valid", &QualityAnalysis{Score: 0.5, Issues: []QualityIssue{{Severity: IssueMajor}}}, false},
		{"bounds inclusive", &QualityAnalysis{Score: 1}, false},
		{"nil", nil, true},
		{"negative", &QualityAnalysis{Score: -0.1}, true},
		{"above one", &QualityAnalysis{Score: 1.01}, true},
		{"nan", &QualityAnalysis{Score: math.NaN()}, true},
		{"unknown severity", &QualityAnalysis{Score: 0.5, Issues: []QualityIssue{{Severity: "urgent"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.a.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrAnalyzerFailure) {
				t.Errorf("Validate() = %v, want ErrAnalyzerFailure", err)
			}
		})
	}
}
