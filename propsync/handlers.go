package propsync

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/renovalabs/renovations_backend/config"
	"bitbucket.org/renovalabs/renovations_backend/models"
	"bitbucket.org/renovalabs/renovations_backend/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// requireServiceToken guards the sync surface with the static service
// token. An empty PROPSYNC_SERVICE_TOKEN leaves the surface open for local
// development; user authentication belongs to the surrounding back-office.
func requireServiceToken(c *gin.Context) bool {
	expected := strings.TrimSpace(os.Getenv("PROPSYNC_SERVICE_TOKEN"))
	if expected == "" {
		return true
	}
	token, _ := utils.GetTokenFromContext(c.Request.Context())
	if token == "" {
		token = strings.TrimSpace(c.GetHeader("token"))
	}
	if token != expected {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}
	return true
}

func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireServiceToken(c) {
			return
		}
		db := config.GetDB()

		resp := StatusResponse{RemoteConfigured: LoadConfig().Configured()}

		var run models.SyncRun
		err := db.WithContext(c.Request.Context()).Order("id desc").Take(&run).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err == nil {
			r := mapRunToResponse(run)
			resp.LastRun = &r
		}
		c.JSON(http.StatusOK, resp)
	}
}

// triggerDebounceKey holds the most recently queued run id for a short
// window so a double-clicked trigger button queues one run, not two. The
// worker clears it when the run finishes.
const triggerDebounceKey = "propsync:last_trigger"
const triggerDebounceTTL = 10 * time.Second

func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireServiceToken(c) {
			return
		}
		db := config.GetDB()

		if v, ok, _ := config.GetRedisValue(triggerDebounceKey); ok && v != "" {
			if id, err := strconv.Atoi(v); err == nil {
				c.JSON(http.StatusOK, gin.H{"id": uint(id), "deduped": true})
				return
			}
		}

		run := models.SyncRun{
			Status:      models.SyncRunStatusQueued,
			TriggeredBy: models.SyncTriggeredManual,
		}
		if v, ok := utils.GetTriggeredByFromContext(c.Request.Context()); ok && v != "" {
			run.TriggeredBy = v
		}
		if err := db.WithContext(c.Request.Context()).Create(&run).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		_ = config.SetRedisValue(triggerDebounceKey, strconv.Itoa(int(run.ID)), triggerDebounceTTL)

		if err := PublishSyncRun(c.Request.Context(), run.ID); err != nil {
			// No broker available; process in-process so manual triggers
			// still work on single-instance deployments.
			go func(payload SyncPubSubPayload) {
				_ = ProcessSyncRun(context.Background(), payload)
			}(SyncPubSubPayload{RunId: run.ID})
		}

		c.JSON(http.StatusOK, gin.H{"id": run.ID})
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireServiceToken(c) {
			return
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		db := config.GetDB()
		var runs []models.SyncRun
		if err := db.WithContext(c.Request.Context()).
			Order("id desc").
			Limit(limit).
			Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireServiceToken(c) {
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		db := config.GetDB()
		var run models.SyncRun
		if err := db.WithContext(c.Request.Context()).Where("id = ?", id).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var errs []models.SyncError
		if err := db.WithContext(c.Request.Context()).Where("sync_run_id = ?", run.ID).Order("id desc").Find(&errs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := SyncRunDetailResponse{
			SyncRunResponse: mapRunToResponse(run),
			Errors:          mapErrors(errs),
		}
		c.JSON(http.StatusOK, resp)
	}
}

func RetrySyncRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireServiceToken(c) {
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		db := config.GetDB()
		var run models.SyncRun
		if err := db.WithContext(c.Request.Context()).Where("id = ?", id).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		newRun := models.SyncRun{
			Status:      models.SyncRunStatusQueued,
			TriggeredBy: models.SyncTriggeredRetry,
			ParentRunId: &run.ID,
		}
		if err := db.WithContext(c.Request.Context()).Create(&newRun).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if err := PublishSyncRun(c.Request.Context(), newRun.ID); err != nil {
			go func(payload SyncPubSubPayload) {
				_ = ProcessSyncRun(context.Background(), payload)
			}(SyncPubSubPayload{RunId: newRun.ID})
		}

		c.JSON(http.StatusOK, gin.H{"id": newRun.ID})
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run models.SyncRun) SyncRunResponse {
	resp := SyncRunResponse{
		ID:             run.ID,
		Status:         run.Status,
		StartedAt:      formatTime(run.StartedAt),
		FinishedAt:     formatTime(run.FinishedAt),
		DurationMs:     run.DurationMs,
		TotalProcessed: run.TotalProcessed,
		TotalCreated:   run.TotalCreated,
		TotalUpdated:   run.TotalUpdated,
		TotalOrphaned:  run.TotalOrphaned,
		ErrorCount:     run.ErrorCount,
		TriggeredBy:    run.TriggeredBy,
	}
	if len(run.StatsJSON) > 0 {
		var stats ReconcileResult
		if err := utils.UnmarshalFromJSON(run.StatsJSON, &stats); err == nil {
			resp.Details = stats.SampleDetails()
		}
	}
	return resp
}

func mapErrors(errorsList []models.SyncError) []SyncErrorResponse {
	out := make([]SyncErrorResponse, 0, len(errorsList))
	for _, errItem := range errorsList {
		out = append(out, SyncErrorResponse{
			ID:         errItem.ID,
			EntityType: errItem.EntityType,
			ExternalId: errItem.ExternalId,
			Message:    errItem.Message,
			Retryable:  errItem.Retryable,
		})
	}
	return out
}
