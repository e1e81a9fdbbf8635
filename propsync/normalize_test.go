package propsync

import (
	"errors"
	"testing"
)

func TestNormalizeAliasPrecedence(t *testing.T) {
	rec := Record{
		ID: "rec001",
		Fields: map[string]interface{}{
			"property_id":    "P-100",
			"fldPropName01":  "Old Schema Name",
			"Name":           "Bergstrasse 12",
			"Street Address": "Bergstrasse 12, Berlin",
		},
	}

	cp, err := Normalize(rec, nil)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if cp.ExternalId != "P-100" {
		t.Fatalf("expected external id P-100, got %q", cp.ExternalId)
	}
	if cp.Name != "Bergstrasse 12" {
		t.Fatalf("expected first alias to win, got %q", cp.Name)
	}
	if cp.Address != "Bergstrasse 12, Berlin" {
		t.Fatalf("expected fallback alias for address, got %q", cp.Address)
	}
	if cp.RemoteRecordId != "rec001" {
		t.Fatalf("expected remote record id rec001, got %q", cp.RemoteRecordId)
	}
}

func TestNormalizeSkipsEmptyAliasValues(t *testing.T) {
	rec := Record{
		ID: "rec002",
		Fields: map[string]interface{}{
			"Property ID": "  ",
			"External ID": "P-200",
			"Name":        "   ",
			"Object":      "Lindenhof 3",
		},
	}

	cp, err := Normalize(rec, nil)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if cp.ExternalId != "P-200" {
		t.Fatalf("blank alias should be skipped, got %q", cp.ExternalId)
	}
	if cp.Name != "Lindenhof 3" {
		t.Fatalf("blank alias should be skipped, got %q", cp.Name)
	}
}

func TestNormalizeMissingExternalId(t *testing.T) {
	rec := Record{ID: "rec003", Fields: map[string]interface{}{"Name": "No ID"}}
	_, err := Normalize(rec, nil)
	if !errors.Is(err, errMissingExternalId) {
		t.Fatalf("expected errMissingExternalId, got %v", err)
	}
}

func TestNormalizeNumericCoercion(t *testing.T) {
	rec := Record{
		ID: "rec004",
		Fields: map[string]interface{}{
			"Property ID":       "P-300",
			"Rooms":             float64(3),
			"Square Meters":     "72.5",
			"Purchase Price":    "1,250,000.50",
			"Renovation Budget": float64(80000),
		},
	}

	cp, err := Normalize(rec, nil)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if cp.Rooms == nil || *cp.Rooms != 3 {
		t.Fatalf("expected rooms 3, got %v", cp.Rooms)
	}
	if cp.SquareMeters == nil || *cp.SquareMeters != 72.5 {
		t.Fatalf("expected 72.5 sqm, got %v", cp.SquareMeters)
	}
	if cp.PurchasePrice.String() != "1250000.5" {
		t.Fatalf("expected purchase price 1250000.5, got %s", cp.PurchasePrice.String())
	}
	if cp.RenovationBudget.String() != "80000" {
		t.Fatalf("expected budget 80000, got %s", cp.RenovationBudget.String())
	}
}

func TestNormalizeBadNumbersDegradeToZero(t *testing.T) {
	rec := Record{
		ID: "rec005",
		Fields: map[string]interface{}{
			"Property ID":    "P-301",
			"Rooms":          "several",
			"Purchase Price": "ask agent",
		},
	}

	cp, err := Normalize(rec, nil)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if cp.Rooms != nil {
		t.Fatalf("unparsable rooms should be nil, got %v", *cp.Rooms)
	}
	if !cp.PurchasePrice.IsZero() {
		t.Fatalf("unparsable price should be zero, got %s", cp.PurchasePrice.String())
	}
}

func TestDateFieldLayouts(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string // empty means nil expected
	}{
		{"rfc3339", "2026-03-15T10:30:00Z", "2026-03-15"},
		{"iso date", "2026-03-15", "2026-03-15"},
		{"german date", "15.03.2026", "2026-03-15"},
		{"slash date", "2026/03/15", "2026-03-15"},
		{"garbage", "mid March", ""},
		{"non string", float64(20260315), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := map[string]interface{}{"Start Date": tt.value}
			got := dateField(fields, "start_date")
			if tt.want == "" {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %s, got nil", tt.want)
			}
			if got.Format("2006-01-02") != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got.Format("2006-01-02"))
			}
		})
	}
}

func TestFlattenURLs(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  []string
	}{
		{
			"attachment objects",
			[]interface{}{
				map[string]interface{}{"url": "https://cdn.example.com/a.pdf", "filename": "a.pdf"},
				map[string]interface{}{"url": "https://cdn.example.com/b.pdf"},
			},
			[]string{"https://cdn.example.com/a.pdf", "https://cdn.example.com/b.pdf"},
		},
		{
			"string array",
			[]interface{}{"https://x.test/1.jpg", "not-a-url", "http://x.test/2.jpg"},
			[]string{"https://x.test/1.jpg", "http://x.test/2.jpg"},
		},
		{
			"comma joined",
			"https://x.test/1.jpg, https://x.test/2.jpg",
			[]string{"https://x.test/1.jpg", "https://x.test/2.jpg"},
		},
		{
			"all invalid",
			"ftp://x.test/1.jpg, file.pdf",
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := flattenURLs(tt.value)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d urls, got %d (%v)", len(tt.want), len(got), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("url %d: expected %q, got %q", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestNormalizeProjectLink(t *testing.T) {
	lookup := map[string]uint{"recProjA": 42}

	rec := Record{
		ID: "rec006",
		Fields: map[string]interface{}{
			"Property ID":     "P-400",
			"Renovation Type": "Apartment",
			"Project":         []interface{}{"recProjA"},
		},
	}
	cp, err := Normalize(rec, lookup)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if cp.RenovationType != "apartment" {
		t.Fatalf("expected lowered type, got %q", cp.RenovationType)
	}
	if cp.ProjectId == nil || *cp.ProjectId != 42 {
		t.Fatalf("expected project id 42, got %v", cp.ProjectId)
	}

	// A type outside the allow-set never resolves a project id.
	rec.Fields["Renovation Type"] = "House"
	cp, err = Normalize(rec, lookup)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if cp.ProjectId != nil {
		t.Fatalf("non allow-set type must not link, got %v", *cp.ProjectId)
	}

	// An unknown remote project id resolves to nothing.
	rec.Fields["Renovation Type"] = "micro_apartment"
	rec.Fields["Project"] = []interface{}{"recUnknown"}
	cp, err = Normalize(rec, lookup)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if cp.ProjectId != nil {
		t.Fatalf("unknown project record must not link, got %v", *cp.ProjectId)
	}
}

func TestNormalizeUnitParentRecord(t *testing.T) {
	rec := Record{
		ID: "rec007",
		Fields: map[string]interface{}{
			"Property ID": "P-500",
			"Unit":        []interface{}{"recUnit9"},
		},
	}
	cp, err := Normalize(rec, nil)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if cp.RemoteParentRecordId != "recUnit9" {
		t.Fatalf("expected parent record recUnit9, got %q", cp.RemoteParentRecordId)
	}
}

func TestInferDocumentKind(t *testing.T) {
	tests := []struct {
		name  string
		tag   string
		file  string
		index int
		want  string
	}{
		{"explicit tag wins", "final", "initial_budget.pdf", 0, DocumentKindFinal},
		{"explicit tag case insensitive", " Initial ", "final.pdf", 2, DocumentKindInitial},
		{"final token in name", "", "Budget_FINAL_v2.pdf", 0, DocumentKindFinal},
		{"initial token in name", "", "initial-estimate.pdf", 3, DocumentKindInitial},
		{"first token in name", "", "first_pass.pdf", 3, DocumentKindInitial},
		{"position zero", "", "budget.pdf", 0, DocumentKindInitial},
		{"position later", "", "budget.pdf", 1, DocumentKindFinal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferDocumentKind(tt.tag, tt.file, tt.index); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
