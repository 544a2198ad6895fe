package types

import (
	"testing"
	"time"
)

func TestParseSectionList(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "git", want: "git"},
		{input: "app, git", want: "git,app"},
		{input: "APP,,infrastructure", want: "infrastructure,app"},
		{input: "git,metrics", wantErr: true},
		{input: " , ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSectionList(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSectionList(%q) failed: %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got.String())
			}
		})
	}
}

func TestSectionSetSortedUsesCanonicalOrder(t *testing.T) {
	set := NewSectionSet(SectionApp, SectionGit, SectionAssistantActivity)
	got := set.Sorted()
	want := []SectionName{SectionGit, SectionAssistantActivity, SectionApp}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestModeSections(t *testing.T) {
	if !ModeFull.IsValid() || !ModeRestricted.IsValid() || Mode("partial").IsValid() {
		t.Error("Unexpected mode validity")
	}
	if n := len(ModeFull.Sections()); n != len(AllSections) {
		t.Errorf("Full mode should request all %d sections, got %d", len(AllSections), n)
	}
	restricted := ModeRestricted.Sections()
	if restricted.Has(SectionAssistantActivity) {
		t.Error("Restricted mode must not request assistant_activity")
	}
	for _, name := range []SectionName{SectionGit, SectionInfrastructure, SectionApp} {
		if !restricted.Has(name) {
			t.Errorf("Restricted mode should request %s", name)
		}
	}
}

func TestPeriod(t *testing.T) {
	p := Period{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	cases := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), false},
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC), true},
		{time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), false},
	}
	for _, c := range cases {
		if got := p.Contains(c.at); got != c.want {
			t.Errorf("Contains(%s) = %v, want %v", c.at, got, c.want)
		}
	}

	if err := (Period{Start: p.End, End: p.Start}).Validate(); err == nil {
		t.Error("Expected error for inverted period")
	}
	if err := (Period{Start: p.Start}).Validate(); err == nil {
		t.Error("Expected error for missing end")
	}
}

func TestSectionAccessors(t *testing.T) {
	s := Section{
		"count":  float64(41.6),
		"name":   "widgets",
		"months": map[string]int{"2025-01": 3},
		"bogus":  []int{1},
	}
	if s.Int("count") != 42 {
		t.Errorf("Expected 42, got %d", s.Int("count"))
	}
	if s.Int("bogus") != 0 || s.Int("missing") != 0 {
		t.Error("Non-numeric values should read as 0")
	}
	if s.Text("name") != "widgets" || s.Text("count") != "" {
		t.Error("Unexpected Text result")
	}
	if got := s.Map("months"); got["2025-01"] != 3 {
		t.Errorf("Expected month count 3, got %v", got)
	}
}
