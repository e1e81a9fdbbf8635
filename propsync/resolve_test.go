package propsync

import (
	"testing"

	"bitbucket.org/renovalabs/renovations_backend/models"
)

func viewByPhase(t *testing.T, phase string) (ViewDescriptor, int) {
	t.Helper()
	for i, v := range ViewOrder {
		if v.Phase == phase {
			return v, i
		}
	}
	t.Fatalf("no view for phase %s", phase)
	return ViewDescriptor{}, 0
}

func TestResolveHigherPriorityWins(t *testing.T) {
	offerView, offerPrio := viewByPhase(t, models.PhaseOffer)
	renoView, renoPrio := viewByPhase(t, models.PhaseRenovation)

	recOffer := propertyRecord("recA", "P-1", map[string]interface{}{"Status": "budget_confirmed"})
	recReno := propertyRecord("recA", "P-1", nil)

	// Same property in two views, lower priority listed last: the later view
	// in ViewOrder must still win regardless of fetch completion order.
	results := []viewResult{
		{View: renoView, Priority: renoPrio, Records: []Record{recReno}},
		{View: offerView, Priority: offerPrio, Records: []Record{recOffer}},
	}

	assignments := Resolve(results)
	a, ok := assignments["P-1"]
	if !ok {
		t.Fatalf("expected assignment for P-1")
	}
	if a.Phase != models.PhaseRenovation {
		t.Fatalf("expected renovation to win, got %s", a.Phase)
	}
	if a.Priority != renoPrio {
		t.Fatalf("expected priority %d, got %d", renoPrio, a.Priority)
	}
}

func TestResolveDuplicateInSameViewKeepsFirst(t *testing.T) {
	newView, newPrio := viewByPhase(t, models.PhaseNew)

	first := propertyRecord("recFirst", "P-2", map[string]interface{}{"Status": "budget_confirmed"})
	second := propertyRecord("recSecond", "P-2", map[string]interface{}{"Status": "budget_confirmed"})

	results := []viewResult{
		{View: newView, Priority: newPrio, Records: []Record{first, second}},
	}

	assignments := Resolve(results)
	a := assignments["P-2"]
	if a.RemoteRecordId != "recFirst" {
		t.Fatalf("expected first record at equal priority, got %s", a.RemoteRecordId)
	}
}

func TestResolveDropsRecordsWithoutExternalId(t *testing.T) {
	newView, newPrio := viewByPhase(t, models.PhaseNew)

	results := []viewResult{
		{View: newView, Priority: newPrio, Records: []Record{
			{ID: "recNoId", Fields: map[string]interface{}{"Name": "orphan fields"}},
			propertyRecord("recOk", "P-3", map[string]interface{}{"Status": "budget_confirmed"}),
		}},
	}

	assignments := Resolve(results)
	if len(assignments) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(assignments))
	}
	if _, ok := assignments["P-3"]; !ok {
		t.Fatalf("expected P-3 to survive")
	}
}

func TestResolveStatusOverride(t *testing.T) {
	tests := []struct {
		name   string
		phase  string
		status string
		want   string
	}{
		{"new without marker", models.PhaseNew, "Viewing Scheduled", models.PhasePendingBudget},
		{"new with marker", models.PhaseNew, "budget_confirmed", models.PhaseNew},
		{"marker case insensitive", models.PhaseOffer, "Budget_Confirmed", models.PhaseOffer},
		{"offer without marker", models.PhaseOffer, "", models.PhasePendingBudget},
		{"late phase untouched", models.PhaseCleaning, "whatever", models.PhaseCleaning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, prio := viewByPhase(t, tt.phase)
			extra := map[string]interface{}{}
			if tt.status != "" {
				extra["Status"] = tt.status
			}
			results := []viewResult{
				{View: view, Priority: prio, Records: []Record{propertyRecord("recS", "P-4", extra)}},
			}
			a := Resolve(results)["P-4"]
			if a.Phase != tt.want {
				t.Fatalf("expected phase %s, got %s", tt.want, a.Phase)
			}
		})
	}
}

func TestForcedStatusFor(t *testing.T) {
	if s, ok := forcedStatusFor(models.PhaseCleaning); !ok || s != "Cleaning" {
		t.Fatalf("expected forced status Cleaning, got %q %v", s, ok)
	}
	if s, ok := forcedStatusFor(models.PhaseCompleted); !ok || s != "Completed" {
		t.Fatalf("expected forced status Completed, got %q %v", s, ok)
	}
	if _, ok := forcedStatusFor(models.PhaseNew); ok {
		t.Fatalf("early phases must not force a status")
	}
	if _, ok := forcedStatusFor(models.PhasePendingBudget); ok {
		t.Fatalf("pending_budget must not force a status")
	}
}
