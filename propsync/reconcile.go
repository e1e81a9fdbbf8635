package propsync

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"bitbucket.org/renovalabs/renovations_backend/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Engine runs one full reconciliation pass against the remote base.
// Construct it once per run; it holds no state between runs.
type Engine struct {
	cfg     Config
	store   Store
	remote  RemoteAPI
	logger  *logrus.Logger
	webhook *http.Client

	webhookWarnOnce sync.Once
}

func NewEngine(cfg Config, store Store, remote RemoteAPI, logger *logrus.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		store:   store,
		remote:  remote,
		logger:  logger,
		webhook: &http.Client{Timeout: 30 * time.Second},
	}
}

// Sync is the whole run: concurrent per-view fetches, priority resolution,
// sequential reconciliation, project-group linking, and per-entity budget
// dispatch. A failure on one record never aborts the run; fatal errors
// (store unreachable) propagate, with prior writes retained.
func (e *Engine) Sync(ctx context.Context) (ReconcileResult, error) {
	result := ReconcileResult{PhaseCounts: make(map[string]int)}

	// Without credentials every fetch would come back empty, which must not
	// be mistaken for every property having vanished upstream.
	if !e.cfg.Configured() {
		e.logger.WithFields(logrus.Fields{
			"module": "propsync",
		}).Warn("remote credentials missing; sync run is a no-op")
		result.Success = true
		return result, nil
	}

	results, fetchErrors := e.fetchAllViews(ctx)
	for _, detail := range fetchErrors {
		result.recordError(detail)
	}

	groups, err := e.store.ListProjectGroups(ctx)
	if err != nil {
		return result, err
	}
	projectLookup := make(map[string]uint, len(groups))
	for _, g := range groups {
		if g.RemoteRecordId != nil && *g.RemoteRecordId != "" {
			projectLookup[*g.RemoteRecordId] = g.ID
		}
	}

	assignments := Resolve(results)

	// Orphan detection needs the union of every tracked view; with a view
	// missing, absence proves nothing.
	allViewsFetched := len(fetchErrors) == 0
	seenRemoteIDs := make(map[string]bool)
	for _, res := range results {
		for _, rec := range res.Records {
			seenRemoteIDs[rec.ID] = true
		}
	}

	if err := e.reconcile(ctx, assignments, projectLookup, seenRemoteIDs, allViewsFetched, &result); err != nil {
		return result, err
	}

	linked, linkErrors := e.LinkProjectGroups(ctx)
	result.TotalLinked = linked
	for _, detail := range linkErrors {
		result.recordError(detail)
	}

	result.Success = result.TotalErrors == 0
	return result, nil
}

// fetchAllViews issues every per-view fetch concurrently and awaits all. A
// failed view aborts only that view, never the run; the failure is reported
// as one error detail.
func (e *Engine) fetchAllViews(ctx context.Context) ([]viewResult, []SyncErrorDetail) {
	// Each goroutine owns one slot; no locking needed.
	results := make([]*viewResult, len(ViewOrder))
	failures := make([]*SyncErrorDetail, len(ViewOrder))

	g, gctx := errgroup.WithContext(ctx)
	for i, view := range ViewOrder {
		i, view := i, view
		g.Go(func() error {
			records, err := e.remote.ListRecords(gctx, e.cfg.PropertiesTableID, view.ViewID)
			if err != nil {
				e.logger.WithFields(logrus.Fields{
					"module": "propsync",
					"view":   view.ViewID,
					"phase":  view.Phase,
				}).Error(err.Error())
				failures[i] = &SyncErrorDetail{
					EntityType: "view",
					ExternalId: view.ViewID,
					Code:       "fetch_failed",
					Message:    err.Error(),
					Retryable:  true,
				}
				return nil
			}
			results[i] = &viewResult{View: view, Priority: i, Records: records}
			return nil
		})
	}
	_ = g.Wait()

	var fetched []viewResult
	var errs []SyncErrorDetail
	for i := range results {
		if failures[i] != nil {
			errs = append(errs, *failures[i])
			continue
		}
		if results[i] != nil {
			fetched = append(fetched, *results[i])
		}
	}
	return fetched, errs
}

// reconcile performs the idempotent upserts, one property at a time, then
// the orphan batch. Writes are deliberately sequential: concurrent upserts
// on the same external id would race on last-write-wins semantics.
func (e *Engine) reconcile(ctx context.Context, assignments map[string]PhaseAssignment, projectLookup map[string]uint, seenRemoteIDs map[string]bool, allViewsFetched bool, result *ReconcileResult) error {
	existing, err := e.store.ListProperties(ctx)
	if err != nil {
		return err
	}
	byExternalId := make(map[string]*models.Property, len(existing))
	for i := range existing {
		byExternalId[existing[i].ExternalId] = &existing[i]
	}

	for _, a := range assignments {
		cp, err := Normalize(a.Record, projectLookup)
		if err != nil {
			// Records without an external id were already dropped by the
			// resolver; anything else is a real per-record failure.
			result.recordError(SyncErrorDetail{
				EntityType: "property",
				ExternalId: a.ExternalId,
				Code:       "normalize_failed",
				Message:    err.Error(),
			})
			continue
		}

		if forced, ok := forcedStatusFor(a.Phase); ok {
			cp.Status = forced
		}

		row, exists := byExternalId[a.ExternalId]
		if !exists {
			created, err := e.createProperty(ctx, a, cp)
			if err != nil {
				result.recordError(SyncErrorDetail{
					EntityType: "property",
					ExternalId: a.ExternalId,
					Code:       "create_failed",
					Message:    err.Error(),
					Retryable:  true,
				})
				continue
			}
			row = created
			result.TotalCreated++
		} else {
			if err := e.updateProperty(ctx, row, a, cp); err != nil {
				result.recordError(SyncErrorDetail{
					EntityType: "property",
					ExternalId: a.ExternalId,
					Code:       "update_failed",
					Message:    err.Error(),
					Retryable:  true,
				})
				continue
			}
			result.TotalUpdated++
		}

		result.TotalProcessed++
		result.PhaseCounts[a.Phase]++

		// Budget dispatch happens synchronously right after the successful
		// sync of this one property, never deferred.
		if len(cp.DocumentURLs) > 0 {
			triggered, err := e.TriggerBudgetRequest(ctx, row, cp.DocumentURLs[0], 0)
			if err != nil {
				result.recordError(SyncErrorDetail{
					EntityType: "budget_request",
					ExternalId: a.ExternalId,
					Code:       "dispatch_failed",
					Message:    err.Error(),
					Retryable:  true,
				})
			} else if triggered {
				result.TotalDispatched++
			}
		}
	}

	if allViewsFetched {
		var orphanIDs []uint
		for i := range existing {
			row := &existing[i]
			if row.RemoteRecordId == nil || *row.RemoteRecordId == "" {
				// Manually created rows are never auto-orphaned.
				continue
			}
			if row.Phase == models.PhaseOrphaned {
				continue
			}
			if !seenRemoteIDs[*row.RemoteRecordId] {
				orphanIDs = append(orphanIDs, row.ID)
			}
		}
		moved, err := e.store.MarkOrphaned(ctx, orphanIDs)
		if err != nil {
			result.recordError(SyncErrorDetail{
				EntityType: "property",
				Code:       "orphan_batch_failed",
				Message:    err.Error(),
				Retryable:  true,
			})
		} else {
			result.TotalMovedToOrphaned = int(moved)
		}
	}

	return nil
}

func (e *Engine) createProperty(ctx context.Context, a PhaseAssignment, cp *CanonicalProperty) (*models.Property, error) {
	now := time.Now()
	row := &models.Property{
		ExternalId:       cp.ExternalId,
		Phase:            a.Phase,
		Name:             cp.Name,
		Address:          cp.Address,
		AreaCluster:      cp.AreaCluster,
		ClientName:       cp.ClientName,
		ClientEmail:      cp.ClientEmail,
		RenovationType:   cp.RenovationType,
		Status:           cp.Status,
		Notes:            cp.Notes,
		Rooms:            cp.Rooms,
		SquareMeters:     cp.SquareMeters,
		PurchasePrice:    cp.PurchasePrice,
		RenovationBudget: cp.RenovationBudget,
		StartDate:        cp.StartDate,
		HandoverDate:     cp.HandoverDate,
		PhotoURLsJSON:    models.EncodeURLList(cp.PhotoURLs),
		DocumentURLsJSON: models.EncodeURLList(cp.DocumentURLs),
		ProjectGroupId:   cp.ProjectId,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if cp.RemoteRecordId != "" {
		row.RemoteRecordId = &cp.RemoteRecordId
	}
	if cp.RemoteParentRecordId != "" {
		row.RemoteParentRecordId = &cp.RemoteParentRecordId
	}
	if err := e.store.CreateProperty(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// updateProperty writes the canonical attributes in place. Linkage ids the
// normalizer could not resolve this run are omitted: absence of new
// information is not evidence of deletion, so a previously stored non-nil
// value survives.
func (e *Engine) updateProperty(ctx context.Context, row *models.Property, a PhaseAssignment, cp *CanonicalProperty) error {
	updates := map[string]interface{}{
		"phase":              a.Phase,
		"name":               cp.Name,
		"address":            cp.Address,
		"area_cluster":       cp.AreaCluster,
		"client_name":        cp.ClientName,
		"client_email":       cp.ClientEmail,
		"renovation_type":    cp.RenovationType,
		"status":             cp.Status,
		"notes":              cp.Notes,
		"rooms":              cp.Rooms,
		"square_meters":      cp.SquareMeters,
		"purchase_price":     cp.PurchasePrice,
		"renovation_budget":  cp.RenovationBudget,
		"start_date":         cp.StartDate,
		"handover_date":      cp.HandoverDate,
		"photo_urls_json":    models.EncodeURLList(cp.PhotoURLs),
		"document_urls_json": models.EncodeURLList(cp.DocumentURLs),
		"updated_at":         time.Now(),
	}
	if cp.RemoteRecordId != "" {
		updates["remote_record_id"] = cp.RemoteRecordId
	}
	if cp.RemoteParentRecordId != "" {
		updates["remote_parent_record_id"] = cp.RemoteParentRecordId
	}
	if cp.ProjectId != nil {
		updates["project_group_id"] = *cp.ProjectId
	}

	if err := e.store.UpdateProperty(ctx, row.ID, updates); err != nil {
		return err
	}

	row.Phase = a.Phase
	row.Name = cp.Name
	row.Address = cp.Address
	row.AreaCluster = cp.AreaCluster
	row.ClientName = cp.ClientName
	row.ClientEmail = cp.ClientEmail
	row.RenovationType = cp.RenovationType
	row.Status = cp.Status
	if cp.RemoteRecordId != "" {
		row.RemoteRecordId = &cp.RemoteRecordId
	}
	if cp.RemoteParentRecordId != "" {
		row.RemoteParentRecordId = &cp.RemoteParentRecordId
	}
	return nil
}

func (r *ReconcileResult) recordError(detail SyncErrorDetail) {
	r.TotalErrors++
	r.Errors = append(r.Errors, detail)
	r.Details = append(r.Details, fmt.Sprintf("%s %s: %s (%s)", detail.EntityType, detail.ExternalId, detail.Message, detail.Code))
}
