package propsync

import (
	"os"
	"strings"

	"bitbucket.org/renovalabs/renovations_backend/models"
)

// ViewOrder lists every tracked remote view in priority order: position in
// the slice IS the priority, and a later entry wins when a property appears
// in more than one view. Two views can therefore never share a priority.
// Read-only process-wide configuration.
var ViewOrder = []ViewDescriptor{
	{Phase: models.PhaseNew, ViewID: "viwNewProperties"},
	{Phase: models.PhaseOffer, ViewID: "viwOfferSent"},
	{Phase: models.PhasePendingBudget, ViewID: "viwPendingBudget"},
	{Phase: models.PhaseCleaning, ViewID: "viwCleaning"},
	{Phase: models.PhaseRenovation, ViewID: "viwRenovation"},
	{Phase: models.PhaseFurnishing, ViewID: "viwFurnishing"},
	{Phase: models.PhaseFinalCheck, ViewID: "viwFinalCheck"},
	{Phase: models.PhaseListed, ViewID: "viwListed"},
	{Phase: models.PhaseCompleted, ViewID: "viwCompleted"},
}

func init() {
	// View ids differ per base; allow env overrides VIEW_ID_<PHASE>.
	for i := range ViewOrder {
		key := "VIEW_ID_" + strings.ToUpper(ViewOrder[i].Phase)
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			ViewOrder[i].ViewID = v
		}
	}
}

// StatusBudgetConfirmed is the status marker that keeps a property in the
// two early phases. Without it the property is re-routed to pending_budget.
const StatusBudgetConfirmed = "budget_confirmed"

// phaseForcedStatus lists the phases whose view membership is the source of
// truth for the status attribute: once a property resolves into one of
// these, the status the remote record carried is overwritten. Deliberate
// normalization, not a bug.
var phaseForcedStatus = map[string]string{
	models.PhaseCleaning:   "Cleaning",
	models.PhaseRenovation: "Renovation",
	models.PhaseFurnishing: "Furnishing",
	models.PhaseFinalCheck: "Final Check",
	models.PhaseListed:     "Listed",
	models.PhaseCompleted:  "Completed",
}

func forcedStatusFor(phase string) (string, bool) {
	s, ok := phaseForcedStatus[phase]
	return s, ok
}

// Resolve merges per-view fetch results into one assignment per property.
// Iteration order is irrelevant: priority lives in the descriptor. The
// first assignment seen wins at equal priority; a higher priority replaces
// a lower one, never the reverse. Records without a resolvable external id
// are dropped silently.
func Resolve(results []viewResult) map[string]PhaseAssignment {
	assignments := make(map[string]PhaseAssignment)

	for _, res := range results {
		for _, rec := range res.Records {
			externalId := stringField(rec.Fields, "external_id")
			if externalId == "" {
				continue
			}
			if existing, ok := assignments[externalId]; ok && existing.Priority >= res.Priority {
				continue
			}
			assignments[externalId] = PhaseAssignment{
				ExternalId:     externalId,
				RemoteRecordId: strings.TrimSpace(rec.ID),
				Phase:          res.View.Phase,
				Priority:       res.Priority,
				Record:         rec,
			}
		}
	}

	applyStatusOverrides(assignments)
	return assignments
}

// applyStatusOverrides runs once per property after the priority merge.
// A property resolved into either early phase moves to pending_budget
// unless its status carries the budget-confirmed marker. The override only
// ever moves properties out of the early phases, never into them.
func applyStatusOverrides(assignments map[string]PhaseAssignment) {
	for id, a := range assignments {
		if a.Phase != models.PhaseNew && a.Phase != models.PhaseOffer {
			continue
		}
		status := stringField(a.Record.Fields, "status")
		if strings.EqualFold(status, StatusBudgetConfirmed) {
			continue
		}
		a.Phase = models.PhasePendingBudget
		assignments[id] = a
	}
}
