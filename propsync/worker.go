package propsync

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/renovalabs/renovations_backend/config"
	"bitbucket.org/renovalabs/renovations_backend/models"
	"bitbucket.org/renovalabs/renovations_backend/utils"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

const runLockKey = "propsync:run"
const runLockTTL = 10 * time.Minute

// ProcessSyncRun executes one queued run end to end. Terminal runs are
// skipped so the Pub/Sub push endpoint can be redelivered safely. A second
// concurrent worker leaves the run queued instead of reconciling twice.
func ProcessSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	if payload.RunId == 0 {
		return errors.New("invalid payload")
	}

	db := config.GetDB()
	if db == nil {
		return errors.New("db is nil")
	}
	logger := config.GetLogger()

	var run models.SyncRun
	if err := db.WithContext(ctx).Where("id = ?", payload.RunId).Take(&run).Error; err != nil {
		return err
	}
	if run.Status == models.SyncRunStatusSuccess || run.Status == models.SyncRunStatusFailed || run.Status == models.SyncRunStatusPartial {
		return nil
	}

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, runLockKey, runLockTTL, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				logger.WithFields(logrus.Fields{
					"module": "propsync",
					"run_id": run.ID,
				}).Warn("another sync run holds the lock; leaving run queued")
				return nil
			}
			return err
		}
		defer func() { _ = lock.Release(context.Background()) }()
	}

	now := time.Now()
	startedAt := run.StartedAt
	if startedAt == nil {
		startedAt = &now
	}
	if err := db.WithContext(ctx).Model(&run).Updates(map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": startedAt,
	}).Error; err != nil {
		return err
	}

	cfg := LoadConfig()
	engine := NewEngine(cfg, NewStore(db), newAirtableClient(cfg, logger), logger)

	result, runErr := engine.Sync(ctx)

	for _, detail := range result.Errors {
		errRec := models.SyncError{
			SyncRunId:  run.ID,
			EntityType: detail.EntityType,
			ExternalId: detail.ExternalId,
			ErrorCode:  detail.Code,
			Message:    detail.Message,
			Retryable:  detail.Retryable,
		}
		if err := db.WithContext(ctx).Create(&errRec).Error; err != nil {
			config.LogError(logger, "propsync", "ProcessSyncRun", "persist sync error", errRec, err)
		}
	}

	finishedAt := time.Now()
	durationMs := finishedAt.Sub(*startedAt).Milliseconds()

	status := models.SyncRunStatusSuccess
	if runErr != nil || (result.TotalErrors > 0 && result.TotalProcessed == 0) {
		status = models.SyncRunStatusFailed
	} else if result.TotalErrors > 0 {
		status = models.SyncRunStatusPartial
	}

	// Full detail goes to the logs; the stored stats keep the bounded
	// operator sample.
	logger.WithFields(logrus.Fields{
		"module":    "propsync",
		"run_id":    run.ID,
		"status":    status,
		"processed": result.TotalProcessed,
		"created":   result.TotalCreated,
		"updated":   result.TotalUpdated,
		"orphaned":  result.TotalMovedToOrphaned,
		"errors":    result.TotalErrors,
		"details":   result.Details,
	}).Info("sync run finished")

	stats := result
	stats.Details = result.SampleDetails()
	statsJSON, _ := utils.MarshalToJSON(stats)

	if err := db.WithContext(ctx).Model(&run).Updates(map[string]interface{}{
		"status":          status,
		"finished_at":     finishedAt,
		"duration_ms":     durationMs,
		"total_processed": result.TotalProcessed,
		"total_created":   result.TotalCreated,
		"total_updated":   result.TotalUpdated,
		"total_orphaned":  result.TotalMovedToOrphaned,
		"error_count":     result.TotalErrors,
		"stats_json":      statsJSON,
	}).Error; err != nil {
		return err
	}

	// The run is terminal; let the next manual trigger through immediately.
	_ = config.RemoveRedisKey(triggerDebounceKey)

	return runErr
}
