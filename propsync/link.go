package propsync

import (
	"context"

	"github.com/sirupsen/logrus"
)

// linkBatchSize bounds each IN update; the remote schema mirrors the ids
// back in writes of at most 100 per call.
const linkBatchSize = 100

// LinkProjectGroups is the second pass, run after properties are persisted.
// For every local group with a known remote id it reads the remote link
// field, whose ids may point at the properties table or the intermediate
// units table depending on when the group row was created. Both resolution
// passes run unconditionally over the same batch: a group providing both
// kinds of links updates the maximum number of properties. Idempotent;
// rerunning never un-links unless the remote link itself changed.
func (e *Engine) LinkProjectGroups(ctx context.Context) (int, []SyncErrorDetail) {
	groups, err := e.store.ListProjectGroups(ctx)
	if err != nil {
		return 0, []SyncErrorDetail{{
			EntityType: "project_group",
			Code:       "list_failed",
			Message:    err.Error(),
			Retryable:  true,
		}}
	}

	linked := 0
	var errs []SyncErrorDetail

	for _, group := range groups {
		if group.RemoteRecordId == nil || *group.RemoteRecordId == "" {
			continue
		}

		rec, err := e.remote.GetRecord(ctx, e.cfg.ProjectsTableID, *group.RemoteRecordId)
		if err != nil {
			errs = append(errs, SyncErrorDetail{
				EntityType: "project_group",
				ExternalId: *group.RemoteRecordId,
				Code:       "remote_read_failed",
				Message:    err.Error(),
				Retryable:  true,
			})
			continue
		}
		if rec == nil {
			// Remote not configured; nothing to link.
			continue
		}

		linkIDs := linkedRecordIDs(rec.Fields, "linked_records")
		if len(linkIDs) == 0 {
			continue
		}

		for start := 0; start < len(linkIDs); start += linkBatchSize {
			end := start + linkBatchSize
			if end > len(linkIDs) {
				end = len(linkIDs)
			}
			batch := linkIDs[start:end]

			// Pass 1: ids pointing through the units table.
			n, err := e.store.AssignProjectGroup(ctx, group.ID, batch, true)
			if err != nil {
				errs = append(errs, SyncErrorDetail{
					EntityType: "project_group",
					ExternalId: *group.RemoteRecordId,
					Code:       "link_update_failed",
					Message:    err.Error(),
					Retryable:  true,
				})
			} else {
				linked += int(n)
			}

			// Pass 2: ids pointing directly at the properties table.
			n, err = e.store.AssignProjectGroup(ctx, group.ID, batch, false)
			if err != nil {
				errs = append(errs, SyncErrorDetail{
					EntityType: "project_group",
					ExternalId: *group.RemoteRecordId,
					Code:       "link_update_failed",
					Message:    err.Error(),
					Retryable:  true,
				})
			} else {
				linked += int(n)
			}
		}
	}

	if linked > 0 {
		e.logger.WithFields(logrus.Fields{
			"module": "propsync",
			"linked": linked,
		}).Info("project group links updated")
	}
	return linked, errs
}
